package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/binnyhq/part-namer/pkg/api"
	"github.com/binnyhq/part-namer/pkg/proposal"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/watch"
)

var proposalHeaders = []string{"ID", "Code", "Status", "Created", "Description", "Reasoning"}

func proposalRows(views ...api.ProposalView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		code := v.Prefix
		if v.Kind == registry.KindMaterial {
			code = v.MaterialCode
		}
		rows = append(rows, []string{
			v.ID,
			code,
			string(v.Status),
			v.CreatedAt.Local().Format(time.DateTime),
			truncate(v.Description, 40),
			truncate(v.Reasoning, 40),
		})
	}
	return rows
}

func (a *app) printProposal(cmd *cobra.Command, p proposal.Proposal) error {
	v := api.NewProposalView(p)
	return a.print(cmd, v, proposalHeaders, proposalRows(v))
}

func newProposeCmd(a *app) *cobra.Command {
	var description, format, reasoning string

	cmd := &cobra.Command{
		Use:   "propose <prefix|material> <code>",
		Short: "Queue a new prefix or material for review",
		Example: `  partctl propose prefix SCREW --description "Socket head cap screws" \
    --format "SCREW-{MATERIAL}-{THREAD}-{LENGTH}" --reasoning "Needed for the gearbox"
  partctl propose material SS118 --description "18-8 stainless steel" --reasoning "Common fastener stock"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			req := api.ProposalRequest{Description: description, FormatTemplate: format}
			if kind == registry.KindPrefix {
				req.Prefix = args[1]
			} else {
				req.MaterialCode = args[1]
			}
			fields, err := req.Fields(kind)
			if err != nil {
				return err
			}
			p, err := a.engine.Propose(a.ctx(cmd), fields, reasoning)
			if err != nil {
				return fmt.Errorf("failed to create proposal: %w", err)
			}
			return a.printProposal(cmd, p)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "What the code stands for (required)")
	cmd.Flags().StringVar(&format, "format", "", "Name format template, prefixes only")
	cmd.Flags().StringVar(&reasoning, "reasoning", "", "Why the code is needed (required)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("reasoning")
	return cmd
}

func newProposalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proposals",
		Aliases: []string{"proposal"},
		Short:   "Review queued proposals",
	}
	cmd.AddCommand(
		newProposalsListCmd(a),
		newProposalsGetCmd(a),
		newProposalsApproveCmd(a),
		newProposalsRejectCmd(a),
		newProposalsDeferCmd(a),
		newProposalsEditCmd(a),
		newProposalsWatchCmd(a),
	)
	return cmd
}

func newProposalsListCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list <prefix|material>",
		Short: "List pending proposals, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			return a.listProposals(cmd, kind, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include approved and rejected proposals")
	return cmd
}

func (a *app) listProposals(cmd *cobra.Command, kind registry.Kind, all bool) error {
	var (
		ps  []proposal.Proposal
		err error
	)
	if all {
		ps, err = a.engine.ListProposals(a.ctx(cmd), kind)
	} else {
		ps, err = a.engine.ListPending(a.ctx(cmd), kind)
	}
	if err != nil {
		return fmt.Errorf("failed to list %s proposals: %w", kind, err)
	}
	views := api.NewProposalViews(ps)
	if err := a.print(cmd, views, proposalHeaders, proposalRows(views...)); err != nil {
		return err
	}
	if a.format == outputTable {
		fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\n", len(views))
	}
	return nil
}

func newProposalsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <prefix|material> <id>",
		Short: "Show one proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			p, err := a.engine.Get(a.ctx(cmd), kind, args[1])
			if err != nil {
				return err
			}
			return a.printProposal(cmd, p)
		},
	}
}

func newProposalsApproveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <prefix|material> <id>",
		Short: "Approve a proposal and append its entry to the registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			entry, err := a.engine.Approve(a.ctx(cmd), kind, args[1])
			if err != nil {
				return fmt.Errorf("failed to approve %s: %w", args[1], err)
			}
			v := api.NewEntryView(entry)
			return a.print(cmd, v, entryHeaders, entryRows(v))
		},
	}
}

func newProposalsRejectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <prefix|material> <id>",
		Short: "Reject a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			if err := a.engine.Reject(a.ctx(cmd), kind, args[1]); err != nil {
				return fmt.Errorf("failed to reject %s: %w", args[1], err)
			}
			if a.format == outputTable {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", args[1])
				return err
			}
			return a.print(cmd, map[string]string{"proposal_id": args[1], "status": string(proposal.StatusRejected)}, nil, nil)
		},
	}
}

func newProposalsDeferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "defer <prefix|material> <id>",
		Short: "Leave a proposal pending without deciding",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			p, err := a.engine.Defer(a.ctx(cmd), kind, args[1])
			if err != nil {
				return err
			}
			return a.printProposal(cmd, p)
		},
	}
}

func newProposalsEditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <prefix|material> <id>",
		Short: "Change fields of a pending proposal",
		Long: `Change fields of a pending proposal. Only the flags given are changed; the
proposal keeps its ID and stays pending.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			var patch proposal.Patch
			for flag, dst := range map[string]**string{
				"prefix":        &patch.Prefix,
				"material-code": &patch.MaterialCode,
				"description":   &patch.Description,
				"format":        &patch.FormatTemplate,
				"reasoning":     &patch.Reasoning,
			} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					*dst = &v
				}
			}
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to change: pass at least one of --prefix, --material-code, --description, --format, --reasoning")
			}

			p, err := a.engine.Edit(a.ctx(cmd), kind, args[1], patch)
			if err != nil {
				return fmt.Errorf("failed to edit %s: %w", args[1], err)
			}
			return a.printProposal(cmd, p)
		},
	}
	cmd.Flags().String("prefix", "", "New prefix code")
	cmd.Flags().String("material-code", "", "New material code")
	cmd.Flags().String("description", "", "New description")
	cmd.Flags().String("format", "", "New format template")
	cmd.Flags().String("reasoning", "", "New reasoning")
	return cmd
}

func newProposalsWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <prefix|material>",
		Short: "Reprint the pending queue whenever it or the registry changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args[0])
			if err != nil {
				return err
			}
			registryPath, proposalsPath, err := a.engine.Paths(kind)
			if err != nil {
				return err
			}

			w, err := watch.New(watch.Config{Paths: []string{registryPath, proposalsPath}, Logger: a.logger})
			if err != nil {
				return err
			}
			changes, err := w.Start()
			if err != nil {
				return err
			}
			defer w.Stop()

			if err := a.listProposals(cmd, kind, false); err != nil {
				return err
			}
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changes:
					fmt.Fprintln(cmd.OutOrStdout())
					if err := a.listProposals(cmd, kind, false); err != nil {
						a.logger.Warn("failed to refresh proposals", "kind", kind, "error", err)
					}
				}
			}
		},
	}
}
