package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()
	require.NotNil(t, cmd)
	assert.Equal(t, "irrigctl", cmd.Use)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Use] = true
	}
	assert.True(t, names["run"], "should have 'run' command")
	assert.True(t, names["task"], "should have 'task' command")
	assert.True(t, names["status"], "should have 'status' command")
	assert.True(t, names["wipe"], "should have 'wipe' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestTaskCommandHasCreateSubcommand(t *testing.T) {
	cmd := BuildCLI()

	var found bool
	for _, c := range cmd.Commands() {
		if c.Use != "task" {
			continue
		}
		for _, sub := range c.Commands() {
			if sub.Use == "create" {
				found = true
			}
		}
	}
	assert.True(t, found, "task command should have a create subcommand")
}

func TestWipeCommandHasRequestAndConfirm(t *testing.T) {
	cmd := BuildCLI()

	var names []string
	for _, c := range cmd.Commands() {
		if c.Use != "wipe" {
			continue
		}
		for _, sub := range c.Commands() {
			names = append(names, sub.Use)
		}
	}
	assert.Contains(t, names, "request")
	assert.Contains(t, names, "confirm")
}

func TestLoadConfigDefaultsWhenPathEmpty(t *testing.T) {
	configPath = ""
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.StoreDir)
}
