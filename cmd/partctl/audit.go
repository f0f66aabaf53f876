package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/binnyhq/part-namer/pkg/audit"
)

var errAuditDisabled = errors.New("audit trail is disabled: set audit_db or pass --audit-db")

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the decision audit trail",
	}
	cmd.AddCommand(newAuditListCmd(a), newAuditPruneCmd(a))
	return cmd
}

func newAuditListCmd(a *app) *cobra.Command {
	var (
		filter    audit.Filter
		pageSize  int
		pageToken string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded decisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.audit == nil {
				return errAuditDisabled
			}
			if filter.Kind != "" {
				kind, err := kindArg(filter.Kind)
				if err != nil {
					return err
				}
				filter.Kind = string(kind)
			}

			records, next, total, err := a.audit.List(a.ctx(cmd), filter, pageSize, pageToken)
			if err != nil {
				return fmt.Errorf("failed to list audit events: %w", err)
			}
			if a.format != outputTable {
				return a.print(cmd, map[string]any{
					"events":        records,
					"nextPageToken": next,
					"totalSize":     total,
				}, nil, nil)
			}

			headers := []string{"Time", "Kind", "Proposal", "Code", "Action", "Outcome", "Actor"}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.CreatedAt.Local().Format(time.DateTime),
					r.Kind,
					r.ProposalID,
					r.Code,
					r.Action,
					r.Outcome,
					r.Actor,
				})
			}
			if err := printTable(cmd.OutOrStdout(), headers, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\n", total)
			if next != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Next page: --page-token %s\n", next)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "Only events for prefix or material")
	cmd.Flags().StringVar(&filter.ProposalID, "proposal", "", "Only events for this proposal ID")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Events per page")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")
	return cmd
}

func newAuditPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit events older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.audit == nil {
				return errAuditDisabled
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			n, err := a.audit.DeleteOlderThan(a.ctx(cmd), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age beyond which events are deleted")
	return cmd
}
