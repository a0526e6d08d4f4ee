package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/ssargent/glogstore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSystem redirects the unit path and records system commands.
func fakeSystem(t *testing.T) *[]string {
	t.Helper()
	var calls []string
	oldPath, oldRun := unitPath, runCommand
	unitPath = filepath.Join(t.TempDir(), serviceName)
	runCommand = func(_ *cobra.Command, name string, args ...string) error {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return nil
	}
	t.Cleanup(func() { unitPath, runCommand = oldPath, oldRun })
	return &calls
}

func TestRenderUnit(t *testing.T) {
	cfg := &config.Config{RootDir: "/var/lib/glog"}
	unit := renderUnit(cfg, "/etc/glog/config.yaml", "logger", "/opt/glog")

	assert.Contains(t, unit, "User=logger\nGroup=logger\n")
	assert.Contains(t, unit, "ExecStart=/opt/glog serve --config /etc/glog/config.yaml\n")
	assert.Contains(t, unit, "ReadWritePaths=/var/lib/glog\nReadWritePaths=/etc/glog\n")
}

func TestServiceInstall(t *testing.T) {
	calls := fakeSystem(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	root := filepath.Join(dir, "data")

	out, _, err := run(t, "", "service", "install", "--config", configPath, "--root", root, "--start=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Root: "+root)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.RootDir)

	unit, err := os.ReadFile(unitPath)
	require.NoError(t, err)
	assert.Contains(t, string(unit), "serve --config "+configPath)
	assert.Equal(t, []string{"systemctl daemon-reload", "systemctl enable glog.service"}, *calls)
}

func TestServiceUninstallAndActions(t *testing.T) {
	calls := fakeSystem(t)
	require.NoError(t, os.WriteFile(unitPath, []byte("[Unit]\n"), 0644))

	_, _, err := run(t, "", "service", "uninstall")
	require.NoError(t, err)
	assert.NoFileExists(t, unitPath)

	_, _, err = run(t, "", "service", "restart")
	require.NoError(t, err)
	_, _, err = run(t, "", "service", "logs", "-n", "20")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"systemctl stop glog.service",
		"systemctl disable glog.service",
		"systemctl daemon-reload",
		"systemctl restart glog.service",
		"journalctl -u glog.service -n20",
	}, *calls)
}
