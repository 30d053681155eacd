package main

import (
	"github.com/spf13/cobra"

	"carmen/internal/domain/costing"
	"carmen/internal/infrastructure/http/v1/dto"
)

func newSettingsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-scope costing settings",
	}

	get := &cobra.Command{
		Use:   "get <scope>",
		Short: "Show the active costing method of a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.Settings.GetSettings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromSettings(st))
		},
	}

	set := &cobra.Command{
		Use:   "set <scope> <method>",
		Short: "Change the costing method of a scope (FIFO or PERIODIC_AVERAGE)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := costing.ParseMethod(args[1])
			if err != nil {
				return err
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.Settings.SetCostingMethod(cmd.Context(), args[0], method)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromSettings(st))
		},
	}

	history := &cobra.Command{
		Use:   "history <scope>",
		Short: "List every settings version of a scope, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			versions, err := a.Settings.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items := make([]dto.SettingsResponse, 0, len(versions))
			for _, v := range versions {
				items = append(items, dto.FromSettings(v))
			}
			return printJSON(cmd.OutOrStdout(), dto.NewListResponse(items))
		},
	}

	cmd.AddCommand(get, set, history)
	return cmd
}
