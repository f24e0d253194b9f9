package cli

import (
	"flag"
	"fmt"
)

func newTeamCreateCommand() *Command {
	cmd := &Command{
		Name:        "team-create",
		Description: "Create a team",
		Flags:       flag.NewFlagSet("team-create", flag.ExitOnError),
		Run:         runTeamCreate,
	}

	cmd.Flags.String("id", "", "Team ID")
	cmd.Flags.String("name", "", "Team display name")
	cmd.Flags.String("description", "", "Team description")
	addCommonFlags(cmd)

	return cmd
}

func runTeamCreate(args []string) error {
	cmd := newTeamCreateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id := cmd.Flags.Lookup("id").Value.String()
	name := cmd.Flags.Lookup("name").Value.String()
	if id == "" || name == "" {
		return fmt.Errorf("id and name are required")
	}

	var team interface{}
	err := clientFromFlags(cmd).do("POST", "/api/v1/teams", map[string]string{
		"id":          id,
		"name":        name,
		"description": cmd.Flags.Lookup("description").Value.String(),
	}, &team)
	if err != nil {
		return err
	}
	log.WithField("team", id).Info("team created")
	return printJSON(team)
}

func newTeamAddCommand() *Command {
	cmd := &Command{
		Name:        "team-add",
		Description: "Add a user to a team",
		Flags:       flag.NewFlagSet("team-add", flag.ExitOnError),
		Run:         runTeamAdd,
	}

	cmd.Flags.String("team", "", "Team ID")
	cmd.Flags.String("user", "", "User ID")
	cmd.Flags.String("role", "member", "Team role: owner or member")
	addCommonFlags(cmd)

	return cmd
}

func runTeamAdd(args []string) error {
	cmd := newTeamAddCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	team := cmd.Flags.Lookup("team").Value.String()
	user := cmd.Flags.Lookup("user").Value.String()
	if team == "" || user == "" {
		return fmt.Errorf("team and user are required")
	}

	var member interface{}
	err := clientFromFlags(cmd).do("POST", "/api/v1/teams/"+team+"/members", map[string]string{
		"user_id": user,
		"role":    cmd.Flags.Lookup("role").Value.String(),
	}, &member)
	if err != nil {
		return err
	}
	log.Info("member added")
	return printJSON(member)
}

func newTeamRemoveCommand() *Command {
	cmd := &Command{
		Name:        "team-remove",
		Description: "Remove a user from a team",
		Flags:       flag.NewFlagSet("team-remove", flag.ExitOnError),
		Run:         runTeamRemove,
	}

	cmd.Flags.String("team", "", "Team ID")
	cmd.Flags.String("user", "", "User ID")
	addCommonFlags(cmd)

	return cmd
}

func runTeamRemove(args []string) error {
	cmd := newTeamRemoveCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	team := cmd.Flags.Lookup("team").Value.String()
	user := cmd.Flags.Lookup("user").Value.String()
	if team == "" || user == "" {
		return fmt.Errorf("team and user are required")
	}

	if err := clientFromFlags(cmd).do("DELETE", "/api/v1/teams/"+team+"/members/"+user, nil, nil); err != nil {
		return err
	}
	log.Info("member removed")
	return nil
}
