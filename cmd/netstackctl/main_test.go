package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmdHasExpectedSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "routes", "devices", "stats"} {
		require.True(t, names[want], "missing subcommand %q", want)
	}
}
