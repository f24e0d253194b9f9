package cli

import (
	"flag"
	"fmt"
	"time"
)

func newGrantCommand() *Command {
	cmd := &Command{
		Name:        "grant",
		Description: "Grant a role to a user within a context",
		Flags:       flag.NewFlagSet("grant", flag.ExitOnError),
		Run:         runGrant,
	}

	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("role", "", "Role name")
	cmd.Flags.String("context-type", "global", "Context type: global, team, or user")
	cmd.Flags.String("context-id", "", "Context ID (team ID for team context)")
	cmd.Flags.String("expires", "", "Expiry as a duration from now, e.g. 720h")
	addCommonFlags(cmd)

	return cmd
}

func runGrant(args []string) error {
	cmd := newGrantCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	user := cmd.Flags.Lookup("user").Value.String()
	role := cmd.Flags.Lookup("role").Value.String()
	if user == "" || role == "" {
		return fmt.Errorf("user and role are required")
	}

	body := map[string]interface{}{
		"user_id":      user,
		"role":         role,
		"context_type": cmd.Flags.Lookup("context-type").Value.String(),
		"context_id":   cmd.Flags.Lookup("context-id").Value.String(),
	}
	if expires := cmd.Flags.Lookup("expires").Value.String(); expires != "" {
		d, err := time.ParseDuration(expires)
		if err != nil {
			return fmt.Errorf("invalid expires duration: %w", err)
		}
		body["expires_at"] = time.Now().UTC().Add(d)
	}

	var assignment interface{}
	if err := clientFromFlags(cmd).do("POST", "/api/v1/assignments", body, &assignment); err != nil {
		return err
	}
	log.Info("role granted")
	return printJSON(assignment)
}

func newRevokeCommand() *Command {
	cmd := &Command{
		Name:        "revoke",
		Description: "Revoke a role assignment by ID",
		Flags:       flag.NewFlagSet("revoke", flag.ExitOnError),
		Run:         runRevoke,
	}

	cmd.Flags.Int64("id", 0, "Assignment ID")
	addCommonFlags(cmd)

	return cmd
}

func runRevoke(args []string) error {
	cmd := newRevokeCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id := cmd.Flags.Lookup("id").Value.String()
	if id == "0" || id == "" {
		return fmt.Errorf("id is required")
	}

	if err := clientFromFlags(cmd).do("DELETE", "/api/v1/assignments/"+id, nil, nil); err != nil {
		return err
	}
	log.Info("assignment revoked")
	return nil
}

func newAssignmentsCommand() *Command {
	cmd := &Command{
		Name:        "assignments",
		Description: "List a user's role assignments",
		Flags:       flag.NewFlagSet("assignments", flag.ExitOnError),
		Run:         runAssignments,
	}

	cmd.Flags.String("user", "", "User ID")
	addCommonFlags(cmd)

	return cmd
}

func runAssignments(args []string) error {
	cmd := newAssignmentsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	user := cmd.Flags.Lookup("user").Value.String()
	if user == "" {
		return fmt.Errorf("user is required")
	}

	var assignments []interface{}
	if err := clientFromFlags(cmd).do("GET", "/api/v1/users/"+user+"/assignments", nil, &assignments); err != nil {
		return err
	}
	return printJSON(assignments)
}
