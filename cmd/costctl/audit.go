package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carmen/internal/domain/audit"
	"carmen/internal/infrastructure/http/v1/dto"
)

func newAuditCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	var limit int
	history := &cobra.Command{
		Use:   "history <entity-type> <entity-id>",
		Short: fmt.Sprintf("List audit entries of an entity, newest first (%s or %s)", audit.EntityInventorySettings, audit.EntityCostPosting),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := a.Audit.History(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewListResponse(entries))
		},
	}
	history.Flags().IntVar(&limit, "limit", 50, "maximum number of entries, 0 for all")

	cmd.AddCommand(history)
	return cmd
}
