package main

import (
	"github.com/spf13/cobra"

	"wastelink/internal/dashboard"
)

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "tasks", Short: "List and assign collector tasks"}
	cmd.AddCommand(newTasksListCmd(a), newTasksAssignCmd(a))
	return cmd
}

func newTasksListCmd(a *app) *cobra.Command {
	var collector string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collector tasks; collectors always see their own",
		Args:  cobra.NoArgs,
		RunE: a.with(func(cmd *cobra.Command, _ []string) error {
			if a.session.Role == dashboard.RoleCollector {
				collector = a.user
			}
			if err := a.store.LoadCollectorTasks(cmd.Context(), collector); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a.store.Tasks())
		}),
	}
	cmd.Flags().StringVar(&collector, "collector", "", "only tasks of this collector")
	return cmd
}

func newTasksAssignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <collector-id>",
		Short: "Assign a task to a collector",
		Args:  cobra.ExactArgs(2),
		RunE: a.with(func(cmd *cobra.Command, args []string) error {
			// load so started and ended tasks are rejected before the remote call
			_ = a.store.LoadCollectorTasks(cmd.Context(), "")
			if err := a.session.AssignTask(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			for _, t := range a.store.Tasks() {
				if t.ID == args[0] {
					return printJSON(cmd.OutOrStdout(), t)
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"taskId": args[0], "collectorId": args[1]})
		}),
	}
}
