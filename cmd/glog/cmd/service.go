/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/config"
)

const serviceName = "glog.service"

// unitPath is where the systemd unit is installed.
var unitPath = "/etc/systemd/system/" + serviceName

// runCommand runs a system command with the command's output streams.
var runCommand = func(cmd *cobra.Command, name string, args ...string) error {
	c := exec.Command(name, args...)
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	return c.Run()
}

func systemctl(cmd *cobra.Command, args ...string) error {
	return runCommand(cmd, "systemctl", args...)
}

// renderUnit returns a systemd unit running glog serve for configPath.
func renderUnit(cfg *config.Config, configPath, user, binary string) string {
	return fmt.Sprintf(`[Unit]
Description=glog log storage server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, cfg.RootDir, filepath.Dir(configPath))
}

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage glog serve as a systemd service",
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install glog serve as a systemd service",
		Long: `Install a systemd unit that runs glog serve, creating the configuration
first when it does not exist.

Examples:
  sudo glog service install
  sudo glog service install --root /var/lib/glog --user glog --start=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			root, _ := cmd.Flags().GetString("root")
			user, _ := cmd.Flags().GetString("user")
			binary, _ := cmd.Flags().GetString("binary")
			start, _ := cmd.Flags().GetBool("start")

			var cfg *config.Config
			var err error
			if config.ConfigExists(configPath) {
				cfg, err = config.LoadConfig(configPath)
			} else {
				cfg, err = config.BootstrapConfig(configPath, root)
			}
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("root") {
				cfg.RootDir = root
				if err := config.SaveConfig(cfg, configPath); err != nil {
					return err
				}
			}

			unit := renderUnit(cfg, configPath, user, binary)
			if err := os.WriteFile(unitPath, []byte(unit), 0644); err != nil {
				return fmt.Errorf("failed to write unit file: %w", err)
			}
			if err := systemctl(cmd, "daemon-reload"); err != nil {
				return err
			}
			if err := systemctl(cmd, "enable", serviceName); err != nil {
				return err
			}
			if start {
				if err := systemctl(cmd, "start", serviceName); err != nil {
					return err
				}
			}

			cmd.Printf("Service: %s\n", serviceName)
			cmd.Printf("Config: %s\n", configPath)
			cmd.Printf("Root: %s\n", cfg.RootDir)
			cmd.Printf("To view logs: sudo journalctl -u %s -f\n", serviceName)
			return nil
		},
	}
	installCmd.Flags().String("root", "/var/lib/glog", "Root directory for stream files")
	installCmd.Flags().String("user", "glog", "User to run the service as")
	installCmd.Flags().String("binary", "/usr/local/bin/glog", "Path of the glog binary")
	installCmd.Flags().Bool("start", true, "Start the service after installation")

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = systemctl(cmd, "stop", serviceName)
			if err := systemctl(cmd, "disable", serviceName); err != nil {
				container.Logger().Warn("could not disable service", "error", err)
			}
			if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove unit file: %w", err)
			}
			if err := systemctl(cmd, "daemon-reload"); err != nil {
				return err
			}
			cmd.Printf("Service removed; configuration and stream files were kept\n")
			return nil
		},
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show service logs using journalctl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			lines, _ := cmd.Flags().GetInt("lines")

			journalArgs := []string{"-u", serviceName}
			if follow {
				journalArgs = append(journalArgs, "-f")
			}
			if lines > 0 {
				journalArgs = append(journalArgs, fmt.Sprintf("-n%d", lines))
			}
			return runCommand(cmd, "journalctl", journalArgs...)
		},
	}
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")

	serviceCmd.AddCommand(installCmd, uninstallCmd, logsCmd)
	for _, action := range []string{"start", "stop", "restart", "status"} {
		serviceCmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("Run systemctl %s on the service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return systemctl(cmd, action, serviceName)
			},
		})
	}
	return serviceCmd
}
