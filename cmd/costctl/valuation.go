package main

import (
	"github.com/spf13/cobra"

	"carmen/internal/core/types"
	"carmen/internal/domain/costing"
	"carmen/internal/infrastructure/http/v1/dto"
)

func newCostCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Query unit costs under a scope's costing method",
	}

	var scope, item, asOf, qty string
	get := &cobra.Command{
		Use:   "get",
		Short: "Cost of a quantity of an item as of a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := e.parseDate(asOf)
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
			res, err := a.Valuation.GetCost(cmd.Context(), costing.CostRequest{
				ScopeID:  scope,
				ItemID:   item,
				AsOf:     at,
				Quantity: q,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromCostResult(res))
		},
	}
	get.Flags().StringVar(&scope, "scope", "", "organisational scope (required)")
	get.Flags().StringVar(&item, "item", "", "item id (required)")
	get.Flags().StringVar(&asOf, "as-of", "", "valuation date, YYYY-MM-DD (default now)")
	get.Flags().StringVar(&qty, "qty", "1", "quantity to value")
	_ = get.MarkFlagRequired("scope")
	_ = get.MarkFlagRequired("item")

	var lotsItem, lotsAsOf string
	lots := &cobra.Command{
		Use:   "lots",
		Short: "Remaining FIFO cost layers of an item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := e.parseDate(lotsAsOf)
			if err != nil {
				return err
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			layers, err := a.FIFO.Lots(cmd.Context(), lotsItem, at)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewListResponse(dto.FromLayers(layers)))
		},
	}
	lots.Flags().StringVar(&lotsItem, "item", "", "item id (required)")
	lots.Flags().StringVar(&lotsAsOf, "as-of", "", "date, YYYY-MM-DD (default now)")
	_ = lots.MarkFlagRequired("item")

	cmd.AddCommand(get, lots)
	return cmd
}

func newAverageCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "average",
		Short: "Inspect periodic average costs",
	}

	var item, start, end string
	get := &cobra.Command{
		Use:   "get",
		Short: "Average unit cost of an item over a calendar month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := e.parseDate(start)
			if err != nil {
				return err
			}
			to, err := e.parseDate(end)
			if err != nil {
				return err
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := a.Calculator.GetAverageRecord(cmd.Context(), item, from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromAverage(rec))
		},
	}
	get.Flags().StringVar(&item, "item", "", "item id (required)")
	get.Flags().StringVar(&start, "start", "", "first day of the month, YYYY-MM-DD (required)")
	get.Flags().StringVar(&end, "end", "", "last day of the month, YYYY-MM-DD (required)")
	_ = get.MarkFlagRequired("item")
	_ = get.MarkFlagRequired("start")
	_ = get.MarkFlagRequired("end")

	var rItem, rAsOf string
	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute and re-cache the average of the month containing a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := e.parseDate(rAsOf)
			if err != nil {
				return err
			}
			a, err := e.application(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := a.Calculator.Recompute(cmd.Context(), rItem, at)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.FromAverage(rec))
		},
	}
	recompute.Flags().StringVar(&rItem, "item", "", "item id (required)")
	recompute.Flags().StringVar(&rAsOf, "as-of", "", "any date in the month (default now)")
	_ = recompute.MarkFlagRequired("item")

	cmd.AddCommand(get, recompute)
	return cmd
}
