package cli

import (
	"flag"
	"fmt"
	"strings"
)

func newAllowCommand() *Command {
	cmd := newPermissionCommand("allow", "Add an allow rule for a path prefix")
	cmd.Run = func(args []string) error { return runPermission("allow", args) }
	return cmd
}

func newDenyCommand() *Command {
	cmd := newPermissionCommand("deny", "Add a deny rule for a path prefix")
	cmd.Run = func(args []string) error { return runPermission("deny", args) }
	return cmd
}

func newPermissionCommand(name, description string) *Command {
	cmd := &Command{
		Name:        name,
		Description: description,
		Flags:       flag.NewFlagSet(name, flag.ExitOnError),
	}

	cmd.Flags.String("type", "kb", "Resource type")
	cmd.Flags.String("prefix", "", "Path prefix the rule covers")
	cmd.Flags.String("principal-type", "user", "Principal type: user, team, or any")
	cmd.Flags.String("principal", "", "Principal ID (empty for any)")
	cmd.Flags.String("capabilities", "read", "Comma-separated capabilities")
	addCommonFlags(cmd)

	return cmd
}

func runPermission(effect string, args []string) error {
	cmd := newPermissionCommand(effect, "")
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	prefix := cmd.Flags.Lookup("prefix").Value.String()
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}

	var caps []string
	for _, c := range strings.Split(cmd.Flags.Lookup("capabilities").Value.String(), ",") {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			caps = append(caps, trimmed)
		}
	}

	body := map[string]interface{}{
		"resource_type":  cmd.Flags.Lookup("type").Value.String(),
		"path_prefix":    prefix,
		"principal_type": cmd.Flags.Lookup("principal-type").Value.String(),
		"principal_id":   cmd.Flags.Lookup("principal").Value.String(),
		"capabilities":   caps,
		"effect":         effect,
	}

	var perm interface{}
	if err := clientFromFlags(cmd).do("POST", "/api/v1/permissions", body, &perm); err != nil {
		return err
	}
	log.WithField("effect", effect).Info("permission added")
	return printJSON(perm)
}

func newPermissionsCommand() *Command {
	cmd := &Command{
		Name:        "permissions",
		Description: "List permission rules under a path prefix",
		Flags:       flag.NewFlagSet("permissions", flag.ExitOnError),
		Run:         runPermissions,
	}

	cmd.Flags.String("type", "kb", "Resource type")
	cmd.Flags.String("prefix", "/", "Path prefix to list under")
	addCommonFlags(cmd)

	return cmd
}

func runPermissions(args []string) error {
	cmd := newPermissionsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	resourceType := cmd.Flags.Lookup("type").Value.String()
	prefix := cmd.Flags.Lookup("prefix").Value.String()

	var perms []interface{}
	path := fmt.Sprintf("/api/v1/permissions?resource_type=%s&prefix=%s", resourceType, prefix)
	if err := clientFromFlags(cmd).do("GET", path, nil, &perms); err != nil {
		return err
	}
	return printJSON(perms)
}

func newPermissionRemoveCommand() *Command {
	cmd := &Command{
		Name:        "permission-remove",
		Description: "Remove a permission rule by ID",
		Flags:       flag.NewFlagSet("permission-remove", flag.ExitOnError),
		Run:         runPermissionRemove,
	}

	cmd.Flags.Int64("id", 0, "Permission ID")
	addCommonFlags(cmd)

	return cmd
}

func runPermissionRemove(args []string) error {
	cmd := newPermissionRemoveCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id := cmd.Flags.Lookup("id").Value.String()
	if id == "0" || id == "" {
		return fmt.Errorf("id is required")
	}

	if err := clientFromFlags(cmd).do("DELETE", "/api/v1/permissions/"+id, nil, nil); err != nil {
		return err
	}
	log.Info("permission removed")
	return nil
}
