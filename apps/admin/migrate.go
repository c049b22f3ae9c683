package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/kiongozi/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command> [args...]",
		Short: "Run a goose migration command (up, down, status, redo, version, ...)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.repos.DB == nil {
				return errNoDatabase
			}
			return runMigrationsFunc(cli.repos.DB.DB, args[0], args[1:]...)
		},
	}
}
