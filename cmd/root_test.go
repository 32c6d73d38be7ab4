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
	for _, name := range []string{"serve", "migrate", "research", "score", "export", "businesses", "crm", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "hvac-targets", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"serve", "port", "0"},
		{"score", "id", "0"},
		{"export", "format", "standard"},
		{"export", "output", ""},
		{"research", "region", ""},
		{"research", "enrich", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestNestedCommands(t *testing.T) {
	for _, path := range [][]string{
		{"businesses", "list"},
		{"businesses", "show"},
		{"crm", "sync"},
		{"config", "show"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[1], c.Name())
	}

	f := crmSyncCmd.Flags().Lookup("min-tier")
	require.NotNil(t, f)
	assert.Equal(t, "HIGH_PRIORITY", f.DefValue)
}
