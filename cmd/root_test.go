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

	for _, name := range []string{"impute", "attributes", "runs", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "eqasim-income", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestImputeCommand_Flags(t *testing.T) {
	for _, name := range []string{"persons", "homes", "workbook", "table", "output", "seed", "workers", "attribute"} {
		require.NotNil(t, imputeCmd.Flags().Lookup(name), "impute command should have --%s flag", name)
	}
}

func TestAttributesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range attributesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["build"])
	assert.True(t, names["validate"])

	flag := attributesBuildCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "filosofi_income.csv", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "export"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
