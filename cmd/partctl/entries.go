package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binnyhq/part-namer/pkg/api"
	"github.com/binnyhq/part-namer/pkg/nametemplate"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

var entryHeaders = []string{"Code", "Description", "Format"}

func entryRows(views ...api.EntryView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Code, truncate(v.Description, 60), v.FormatTemplate})
	}
	return rows
}

func newEntriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "entries <prefix|material> [code]",
		Short: "List registry entries, or show one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				entry, err := a.engine.LookupEntry(a.ctx(cmd), kind, args[1])
				if err != nil {
					return err
				}
				v := api.NewEntryView(entry)
				return a.print(cmd, v, entryHeaders, entryRows(v))
			}

			entries, err := a.engine.ListEntries(a.ctx(cmd), kind)
			if err != nil {
				return fmt.Errorf("failed to list %s entries: %w", kind, err)
			}
			views := api.NewEntryViews(entries)
			return a.print(cmd, views, entryHeaders, entryRows(views...))
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	var description, format string

	cmd := &cobra.Command{
		Use:   "validate <prefix|material> <code>",
		Short: "Check whether a code exists, or what proposal it would need",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			d, err := a.engine.ValidateName(a.ctx(cmd), kind, args[1], description, format)
			if err != nil {
				return err
			}
			v := api.NewDecisionView(d)
			if a.format != outputTable {
				return a.print(cmd, v, nil, nil)
			}

			out := cmd.OutOrStdout()
			if d.Result == workflow.DecisionExists {
				fmt.Fprintf(out, "%s %s exists\n", kind, args[1])
				return printTable(out, entryHeaders, entryRows(*v.Entry))
			}
			fmt.Fprintf(out, "%s %s is not registered; propose it with:\n", kind, args[1])
			fmt.Fprintf(out, "  partctl propose %s %s --description %q", kind, args[1], v.Candidate.Description)
			if v.Candidate.FormatTemplate != "" {
				fmt.Fprintf(out, " --format %q", v.Candidate.FormatTemplate)
			}
			fmt.Fprintln(out, " --reasoning ...")
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Description for the candidate proposal")
	cmd.Flags().StringVar(&format, "format", "", "Format template for a candidate prefix")
	return cmd
}

func newRenderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "render <template> [NAME=VALUE...]",
		Short: "Substitute values into a name template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			name, err := nametemplate.Render(args[0], values)
			if err != nil {
				return err
			}
			return a.printName(cmd, name)
		},
	}
}

func newNameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "name <prefix> [NAME=VALUE...]",
		Short: "Generate a part name from a registered prefix's template",
		Long: `Generate a part name from a registered prefix's format template.

A MATERIAL value must be a registered material code.

  partctl name SCREW MATERIAL=SS118 THREAD=M8 LENGTH=20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			name, err := a.engine.GenerateName(a.ctx(cmd), args[0], values)
			if err != nil {
				return err
			}
			return a.printName(cmd, name)
		},
	}
}

func (a *app) printName(cmd *cobra.Command, name string) error {
	if a.format == outputTable {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), name)
		return err
	}
	return a.print(cmd, map[string]string{"name": name}, nil, nil)
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.cfg
			rows := [][]string{
				{"prefixes_file", c.PrefixesFile},
				{"materials_file", c.MaterialsFile},
				{"prefix_proposals_file", c.PrefixProposalsFile},
				{"material_proposals_file", c.MaterialProposalsFile},
				{"lock_timeout", c.LockTimeout.String()},
				{"audit_db", c.AuditDB},
				{"listen", c.Listen},
			}
			return a.print(cmd, c, []string{"Key", "Value"}, rows)
		},
	}
}
