package main

import (
	"context"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "adduser <username>",
		Short: "Create a user, or update it when the username or email is taken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !core.ContainsString(user.AllRoles, role) {
				return errors.Errorf("role must be one of [%s]", strings.Join(user.AllRoles, " "))
			}
			pwd, err := cli.readPassword()
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, args[0], email, pwd, role)
			if err != nil {
				return err
			}
			cli.printf("%s %s (%s)\n", color.GreenString("saved"), usr.Username, strings.Join(usr.Roles, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", user.RoleAdminOwner, "role granted to the user")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser updates or creates an active user.User with a single role.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd, role string) (user.User, error) {
	usr, err := cli.usrSvc.Lookup(ctx, uname, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
		usr = user.User{
			Username: core.CleanString(uname, true /* lower */),
			Email:    core.CleanString(email, true /* lower */),
		}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	usr.Roles = []string{role}
	usr.IsActive = true
	if err := usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.UpdateOrCreate(ctx, usr)
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resetpassword <username|email>",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.readPassword()
			if err != nil {
				return err
			}
			if err := cli.resetPassword(cmd.Context(), args[0], pwd); err != nil {
				return err
			}
			cli.printf("%s\n", color.GreenString("password updated"))
			return nil
		},
	}
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.Lookup(ctx, uname, uname)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrSvc.UpdateOrCreate(ctx, usr)
	return err
}
