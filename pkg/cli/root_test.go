package cli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "gaia-authz", root.Name)
	assert.NotNil(t, root.Subcommands)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{
		"check",
		"grant",
		"revoke",
		"assignments",
		"allow",
		"deny",
		"permissions",
		"permission-remove",
		"team-create",
		"team-add",
		"team-remove",
		"roles",
	}

	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
		assert.NotNil(t, root.Subcommands[cmdName], "Expected subcommand %s to be non-nil", cmdName)
	}

	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandUsage(t *testing.T) {
	root := NewRootCommand()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := root.usage()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	output := buf.String()

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage: gaia-authz <command> [args]")
	assert.Contains(t, output, "Commands:")
	assert.Contains(t, output, "check")
	assert.Contains(t, output, "grant")
	assert.Contains(t, output, "team-create")
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root := NewRootCommand()

	oldArgs := os.Args
	os.Args = []string{"gaia-authz", "frobnicate"}
	defer func() { os.Args = oldArgs }()

	err := root.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: frobnicate")
}
