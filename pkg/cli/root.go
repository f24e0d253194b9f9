package cli

import (
	"flag"
	"fmt"
	"os"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "gaia-authz",
		Description: "Knowledge store authorization administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("gaia-authz", flag.ExitOnError),
	}

	root.Subcommands["check"] = newCheckCommand()
	root.Subcommands["grant"] = newGrantCommand()
	root.Subcommands["revoke"] = newRevokeCommand()
	root.Subcommands["assignments"] = newAssignmentsCommand()
	root.Subcommands["allow"] = newAllowCommand()
	root.Subcommands["deny"] = newDenyCommand()
	root.Subcommands["permissions"] = newPermissionsCommand()
	root.Subcommands["permission-remove"] = newPermissionRemoveCommand()
	root.Subcommands["team-create"] = newTeamCreateCommand()
	root.Subcommands["team-add"] = newTeamAddCommand()
	root.Subcommands["team-remove"] = newTeamRemoveCommand()
	root.Subcommands["roles"] = newRolesCommand()

	return root
}

// Execute runs the command
func (c *Command) Execute() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for name, cmd := range c.Subcommands {
		fmt.Printf("  %-20s %s\n", name, cmd.Description)
	}
	return nil
}
