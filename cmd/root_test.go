package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"render", "catalog", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ratemap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCatalogCommand_HasSubcommands(t *testing.T) {
	cmds := catalogCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"load", "status", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRenderCommand_Flags(t *testing.T) {
	for _, name := range []string{
		"output", "year", "categories", "breakpoints", "palette",
		"hatch", "county-b", "tract-b", "hsa-b", "seer-b", "us48",
		"coerce-levels", "id-column", "value-column", "sheet",
	} {
		require.NotNil(t, renderCmd.Flags().Lookup(name), "render command should have --%s flag", name)
	}
}

func TestCatalogLoadCommand_Flags(t *testing.T) {
	flag := catalogLoadCmd.Flags().Lookup("incremental")
	require.NotNil(t, flag)
	assert.Equal(t, "true", flag.DefValue)

	require.NotNil(t, catalogLoadCmd.Flags().Lookup("levels"))
	require.NotNil(t, catalogLoadCmd.Flags().Lookup("states"))
	require.NotNil(t, catalogLoadCmd.Flags().Lookup("dry-run"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestParseLevels(t *testing.T) {
	levels, err := parseLevels("state, county,registry")
	require.NoError(t, err)
	assert.Len(t, levels, 3)

	_, err = parseLevels("state,block")
	assert.Error(t, err)
}

func TestParseStates(t *testing.T) {
	states, err := parseStates("CA, 13, tx")
	require.NoError(t, err)
	assert.Equal(t, []string{"06", "13", "48"}, states)

	_, err = parseStates("ZZ")
	assert.Error(t, err)
}

func TestParseBreakpoints(t *testing.T) {
	spec, err := parseBreakpoints("0.6, 0.8,1.0")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.6, 0.8, 1.0}, spec.Breakpoints)

	_, err = parseBreakpoints("0.6,abc")
	assert.Error(t, err)
}
