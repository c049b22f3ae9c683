package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/content"
)

func (cli *commandLine) importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <bundle.yaml>",
		Short: "Import programs and cases from a YAML bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "opening bundle")
			}
			defer f.Close()

			b, err := content.Parse(f)
			if err != nil {
				return err
			}
			report, err := cli.contentSvc.Import(cmd.Context(), b, dryRun)
			if err != nil {
				var verr *core.ValidationError
				if errors.As(err, &verr) {
					for _, fld := range verr.Fields {
						cli.printf("%s %s: %s\n", color.RedString("invalid"), fld.Field, fld.Error)
					}
				}
				return err
			}
			cli.printReport(report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without writing")
	return cmd
}

func (cli *commandLine) printReport(r content.Report) {
	if r.DryRun {
		cli.printf("%s\n", color.YellowString("DRY RUN - nothing was written"))
	}
	for _, key := range r.Created {
		cli.printf("%s %s\n", color.GreenString("created  "), key)
	}
	for _, key := range r.Updated {
		cli.printf("%s %s\n", color.CyanString("updated  "), key)
	}
	for _, key := range r.Unchanged {
		cli.printf("%s %s\n", color.New(color.Faint).Sprint("unchanged"), key)
	}
	cli.printf("%d created, %d updated, %d unchanged\n", len(r.Created), len(r.Updated), len(r.Unchanged))
}

func (cli *commandLine) publishCmd() *cobra.Command {
	var unpublish bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish or unpublish content",
	}
	cmd.PersistentFlags().BoolVar(&unpublish, "unpublish", false, "hide the content from learners")

	state := func() string {
		if unpublish {
			return color.YellowString("unpublished")
		}
		return color.GreenString("published")
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "program <slug>",
			Short: "Publish a program",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := cli.contentSvc.PublishProgram(cmd.Context(), args[0], !unpublish)
				if err != nil {
					return err
				}
				cli.printf("%s program %s\n", state(), p.Slug)
				return nil
			},
		},
		&cobra.Command{
			Use:   "case <slug>",
			Short: "Publish a case",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := cli.contentSvc.PublishCase(cmd.Context(), args[0], !unpublish)
				if err != nil {
					return err
				}
				cli.printf("%s case %s\n", state(), c.Slug)
				return nil
			},
		},
	)
	return cmd
}
