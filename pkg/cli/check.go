package cli

import (
	"flag"
	"fmt"
)

func newCheckCommand() *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Resolve a permission query",
		Flags:       flag.NewFlagSet("check", flag.ExitOnError),
		Run:         runCheck,
	}

	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("type", "kb", "Resource type")
	cmd.Flags.String("path", "", "Resource path")
	cmd.Flags.String("action", "read", "Capability to check")
	addCommonFlags(cmd)

	return cmd
}

func runCheck(args []string) error {
	cmd := newCheckCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	user := cmd.Flags.Lookup("user").Value.String()
	resourceType := cmd.Flags.Lookup("type").Value.String()
	path := cmd.Flags.Lookup("path").Value.String()
	action := cmd.Flags.Lookup("action").Value.String()

	if user == "" || path == "" {
		return fmt.Errorf("user and path are required")
	}

	var result struct {
		Decision string      `json:"decision"`
		Rule     interface{} `json:"rule,omitempty"`
	}
	err := clientFromFlags(cmd).do("POST", "/api/v1/authorize", map[string]string{
		"user_id":       user,
		"resource_type": resourceType,
		"resource_path": path,
		"action":        action,
	}, &result)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func newRolesCommand() *Command {
	cmd := &Command{
		Name:        "roles",
		Description: "List registry roles and their capabilities",
		Flags:       flag.NewFlagSet("roles", flag.ExitOnError),
		Run:         runRoles,
	}
	addCommonFlags(cmd)
	return cmd
}

func runRoles(args []string) error {
	cmd := newRolesCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	var roles []interface{}
	if err := clientFromFlags(cmd).do("GET", "/api/v1/roles", nil, &roles); err != nil {
		return err
	}
	return printJSON(roles)
}
