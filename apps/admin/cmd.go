package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/kiongozi/core/content"
	"github.com/trezcool/kiongozi/core/user"
	"github.com/trezcool/kiongozi/storage"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password cannot be empty")
	errNoDatabase    = errors.New("migrations need the postgres engine")
)

type commandLine struct {
	repos      *storage.Repositories
	usrSvc     *user.Service
	contentSvc *content.Service
	out        io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Kiongozi administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.importCmd(),
		cli.publishCmd(),
	)
	return root
}

// run executes the command named by args (without the program name).
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	return root.Execute()
}

func (cli *commandLine) printf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, a...)
}

// readPassword prompts for a password twice, without echo.
func (cli *commandLine) readPassword() (string, error) {
	cli.printf("Password: ")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	cli.printf("\n")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}

	cli.printf("Password (again): ")
	again, err := readPasswordFunc(int(os.Stdin.Fd()))
	cli.printf("\n")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if string(again) != string(pwd) {
		return "", errors.New("passwords do not match")
	}
	return string(pwd), nil
}
