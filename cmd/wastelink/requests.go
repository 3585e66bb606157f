package main

import (
	"github.com/spf13/cobra"

	"wastelink/internal/model"
)

func newRequestsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "requests", Short: "List, create and update pickup requests"}
	cmd.AddCommand(newRequestsListCmd(a), newRequestsCreateCmd(a), newRequestsStatusCmd(a), newRequestsCancelCmd(a))
	return cmd
}

func newRequestsListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the pickup requests visible to the acting role",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, _ []string) error {
			var want model.RequestStatus
			if status != "" {
				st, err := model.ParseStatus(status)
				if err != nil {
					return err
				}
				want = st
			}
			v, err := a.session.Build(cmd.Context())
			if err != nil {
				return err
			}
			out := []model.PickupRequest{}
			for _, r := range v.Requests {
				if want == "" || r.Status == want {
					out = append(out, r)
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "only requests in this status")
	return cmd
}

func newRequestsCreateCmd(a *app) *cobra.Command {
	var in model.PickupRequestInput
	var wasteType, volume, urgency string
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a pickup request as the acting resident",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, _ []string) error {
			in.WasteType = model.WasteType(wasteType)
			in.Volume = model.Volume(volume)
			in.Urgency = model.Urgency(urgency)
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				in.Location = &model.GeoPoint{Lat: lat, Lng: lng}
			}
			if err := in.Validate(); err != nil {
				return err
			}
			r, err := a.session.CreateRequest(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		}),
	}
	f := cmd.Flags()
	f.StringVar(&wasteType, "type", "", "waste type: organic, plastic, metal, glass, paper, mixed or ewaste")
	f.StringVar(&volume, "volume", "", "small, medium or large")
	f.Float64Var(&in.VolumeKg, "kg", 0, "estimated weight in kg (overrides --volume)")
	f.Float64Var(&lat, "lat", 0, "pickup latitude")
	f.Float64Var(&lng, "lng", 0, "pickup longitude")
	f.StringVar(&in.Address, "address", "", "pickup address")
	f.StringVar(&in.Notes, "notes", "", "notes for the collector")
	f.StringVar(&urgency, "urgency", "", "standard, urgent or emergency")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newRequestsStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id> <status>",
		Short: "Move a pickup request to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			st, err := model.ParseStatus(args[1])
			if err != nil {
				return err
			}
			// the cached status is needed to check the transition locally
			_ = a.store.LoadPickupRequests(cmd.Context())
			if err := a.session.UpdateStatus(cmd.Context(), args[0], st); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"requestId": args[0], "status": st})
		}),
	}
}

func newRequestsCancelCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel a pickup request",
		Args:  cobra.ExactArgs(1),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			_ = a.store.LoadPickupRequests(cmd.Context())
			if err := a.session.CancelRequest(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"requestId": args[0], "status": model.StatusCancelled})
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the request is cancelled")
	return cmd
}
