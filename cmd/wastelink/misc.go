package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"wastelink/internal/auth"
	"wastelink/internal/buildinfo"
	"wastelink/internal/dashboard"
)

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show system metrics",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, _ []string) error {
			if !a.session.Role.Can(dashboard.ViewMetrics) {
				return errors.New("only admins can view system metrics")
			}
			if err := a.store.LoadSystemMetrics(cmd.Context()); err != nil {
				return err
			}
			m, _ := a.store.Metrics()
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"totalRequests":     m.TotalRequests,
				"completedRequests": m.CompletedRequests,
				"activeCollectors":  m.ActiveCollectors,
				"recyclingRate":     m.RecyclingRate.String(),
				"monthlyGrowth":     m.MonthlyGrowth.String(),
			})
		}),
	}
}

func newRecommendationsCmd(a *app) *cobra.Command {
	var wasteType string
	cmd := &cobra.Command{
		Use:   "recommendations",
		Short: "Show pickup recommendations",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, _ []string) error {
			hint := map[string]any{"residentId": a.user}
			if wasteType != "" {
				hint["wasteType"] = wasteType
			}
			recs, err := a.session.Recommendations(cmd.Context(), hint)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		}),
	}
	cmd.Flags().StringVar(&wasteType, "type", "", "waste type to get advice for")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the acting role's dashboard",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, _ []string) error {
			v, err := a.session.Build(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), v); perr != nil {
				return perr
			}
			return err
		}),
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user and --role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			p, err := a.principal()
			if err != nil {
				return err
			}
			tok, err := auth.NewVerifier(a.cfg.Auth.Mode, a.cfg.Auth.Secret).Issue(p, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"token": tok, "userId": p.UserID, "role": p.Role})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime (hmac mode)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), buildinfo.Info())
		},
	}
}
