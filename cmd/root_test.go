package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "analyze", "overlay", "runs", "export", "lakes", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lakewatch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	refresh := serveCmd.Flags().Lookup("refresh-overlay")
	require.NotNil(t, refresh)
	assert.Equal(t, "true", refresh.DefValue)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"lake", "years", "json"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s flag", name)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	limit := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
}

func TestExportCommand_RequiresRunID(t *testing.T) {
	assert.Error(t, exportCmd.Args(exportCmd, nil))
	assert.NoError(t, exportCmd.Args(exportCmd, []string{"run-1"}))
}
