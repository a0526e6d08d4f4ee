/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file and server key pair",
		Long: `Create a glog configuration file with a default stream, a generated API key
and a fresh secp256k1 server key pair.

The public key is stored in the configuration file. The private key is
written next to it with 0600 permissions and is only needed to read
encrypted archives.

Examples:
  glog init
  glog init --config ./glog.yaml --root ./data --print-keys`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			root, _ := cmd.Flags().GetString("root")
			force, _ := cmd.Flags().GetBool("force")
			printKeys, _ := cmd.Flags().GetBool("print-keys")

			if config.ConfigExists(configPath) && !force {
				cmd.Printf("Configuration already exists at %s. Use --force to replace it.\n", configPath)
				return nil
			}

			cfg, err := config.BootstrapConfig(configPath, root)
			if err != nil {
				return fmt.Errorf("bootstrap config: %w", err)
			}

			cmd.Printf("✅ Configuration created at %s\n", configPath)
			cmd.Printf("Root directory: %s\n", cfg.RootDir)
			cmd.Printf("Private key file: %s\n", cfg.Security.PrivateKeyFile)
			if printKeys {
				cmd.Printf("\n🔑 Generated Keys:\n")
				cmd.Printf("Public Key: %s\n", cfg.Security.PublicKey)
				cmd.Printf("API Key: %s\n", cfg.Server.APIKey)
				cmd.Printf("\n⚠️  Store these keys securely! They are also saved in %s\n", configPath)
			}
			return nil
		},
	}

	initCmd.Flags().String("root", "./data", "Root directory for stream files")
	initCmd.Flags().Bool("force", false, "Replace an existing configuration")
	initCmd.Flags().Bool("print-keys", false, "Print the generated public and API keys")
	return initCmd
}
