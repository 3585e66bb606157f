package main

import (
	"context"

	"github.com/spf13/cobra"

	"wastelink/internal/model"
)

func newCollectorsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "collectors", Short: "Approve, reject, activate or deactivate collectors"}
	cmd.AddCommand(
		collectorCmd(a, "approve", "Approve a collector registration", func(ctx context.Context, id string) (model.Collector, error) {
			return a.session.ApproveCollector(ctx, id, true)
		}),
		collectorCmd(a, "reject", "Reject a collector registration and deactivate it", func(ctx context.Context, id string) (model.Collector, error) {
			return a.session.ApproveCollector(ctx, id, false)
		}),
		collectorCmd(a, "activate", "Activate a collector account", func(ctx context.Context, id string) (model.Collector, error) {
			return a.session.SetCollectorActive(ctx, id, true)
		}),
		collectorCmd(a, "deactivate", "Deactivate a collector account", func(ctx context.Context, id string) (model.Collector, error) {
			return a.session.SetCollectorActive(ctx, id, false)
		}),
	)
	return cmd
}

func collectorCmd(a *app, use, short string, fn func(context.Context, string) (model.Collector, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <collector-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			c, err := fn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		}),
	}
}
