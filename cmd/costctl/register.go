package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carmen/internal/core/types"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/http/v1/dto"
	"carmen/internal/infrastructure/storage/postgres"
)

func newReceiptCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Record goods receipts in the cost register",
	}

	var item, location, date, qty, unitCost string
	post := &cobra.Command{
		Use:   "post",
		Short: "Record one receipt line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := e.parseDate(date)
			if err != nil {
				return err
			}
			q, err := types.ParseQuantity(qty)
			if err != nil {
				return err
			}
			c, err := types.ParseMoney(unitCost)
			if err != nil {
				return err
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			m, err := a.Register.PostReceipt(cmd.Context(), cost.ReceiptInput{
				ItemID:     item,
				LocationID: location,
				Date:       at,
				Quantity:   q,
				UnitCost:   c,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromMovement(m))
		},
	}
	post.Flags().StringVar(&item, "item", "", "item id (required)")
	post.Flags().StringVar(&location, "location", "", "store or location id")
	post.Flags().StringVar(&date, "date", "", "receipt date, YYYY-MM-DD (default now)")
	post.Flags().StringVar(&qty, "qty", "", "received quantity (required)")
	post.Flags().StringVar(&unitCost, "unit-cost", "", "purchase cost per unit (required)")
	_ = post.MarkFlagRequired("item")
	_ = post.MarkFlagRequired("qty")
	_ = post.MarkFlagRequired("unit-cost")

	cmd.AddCommand(post)
	return cmd
}

func newIssueCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Record issues in the cost register",
	}

	var item, location, date, qty string
	post := &cobra.Command{
		Use:   "post",
		Short: "Record one issue line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := e.parseDate(date)
			if err != nil {
				return err
			}
			q, err := types.ParseQuantity(qty)
			if err != nil {
				return err
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			m, err := a.Register.PostIssue(cmd.Context(), cost.IssueInput{
				ItemID:     item,
				LocationID: location,
				Date:       at,
				Quantity:   q,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromMovement(m))
		},
	}
	post.Flags().StringVar(&item, "item", "", "item id (required)")
	post.Flags().StringVar(&location, "location", "", "store or location id")
	post.Flags().StringVar(&date, "date", "", "issue date, YYYY-MM-DD (default now)")
	post.Flags().StringVar(&qty, "qty", "", "issued quantity (required)")
	_ = post.MarkFlagRequired("item")
	_ = post.MarkFlagRequired("qty")

	cmd.AddCommand(post)
	return cmd
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.memory {
				return fmt.Errorf("migrate needs DATABASE_URL, not --memory")
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			if a.Pool == nil {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			if err := postgres.ApplySchema(cmd.Context(), a.Pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return err
		},
	}
}
