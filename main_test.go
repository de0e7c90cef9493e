package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorCommands_OnlyWritersRelayEvents(t *testing.T) {
	writers := map[string]bool{
		"close": true, "deposit": true, "withdraw": true, "amend": true, "cancel": true,
		"queue": false, "request": false, "report": false, "audit": false, "status": false,
	}

	require.Len(t, operatorCommands, len(writers))
	for name, writes := range writers {
		command, ok := operatorCommands[name]
		require.True(t, ok, name)
		assert.Equal(t, writes, command.writes, name)
	}
}

func TestRunOperatorCommand_Unknown(t *testing.T) {
	assert.Equal(t, 1, runOperatorCommand(context.Background(), "settle", nil))
}
