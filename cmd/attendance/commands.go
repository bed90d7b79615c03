package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and ensure the single global tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.store.Migrate(ctx); err != nil {
				a.logger.ErrorContext(ctx, "failed to apply schema", "error", err)
				return err
			}
			global, err := a.services.trackers.Bootstrap(ctx, application.GlobalTrackerSeed{
				Name: a.cfg.GlobalTrackerName,
				Days: a.cfg.GlobalTrackerDays,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "global tracker %d %q %s..%s\n", global.ID, global.Name,
				global.StartDate.Format(persistence.DateLayout), global.EndDate.Format(persistence.DateLayout))
			return nil
		},
	}
}

type actorFlags struct {
	user      string
	trackerID int64
	asJSON    bool
}

func (f *actorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "user id as issued by the identity provider")
	cmd.Flags().Int64Var(&f.trackerID, "tracker", 0, "tracker id")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tracker")
}

// actor resolves --user and records the id so sessions can reference it.
func (f *actorFlags) actor(ctx context.Context, a *app) (application.Actor, error) {
	user := strings.TrimSpace(f.user)
	if user == "" {
		return application.Actor{}, errors.New("--user must not be empty")
	}
	if _, err := a.services.users.Ensure(ctx, user, ""); err != nil {
		return application.Actor{}, err
	}
	return application.Actor{UserID: user, SessionID: "cli"}, nil
}

func newStatsCommand(a *app) *cobra.Command {
	var flags actorFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-subject attendance for a user on a tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := flags.actor(cmd.Context(), a)
			if err != nil {
				return err
			}
			stats, err := a.services.attendance.CourseStats(cmd.Context(), actor, flags.trackerID)
			if err != nil {
				return err
			}
			if flags.asJSON {
				return writeJSON(a, stats)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBJECT\tATTENDED\tMISSED\tCANCELLED\tPERCENT")
			for _, stat := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f\n", stat.Subject, stat.Attended, stat.Missed, stat.Cancelled, stat.Percentage)
			}
			return tw.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func newPromptsCommand(a *app) *cobra.Command {
	var flags actorFlags
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List sessions of a user that are due for an answer, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := flags.actor(cmd.Context(), a)
			if err != nil {
				return err
			}
			prompts, err := a.services.attendance.Prompts(cmd.Context(), actor, flags.trackerID)
			if err != nil {
				return err
			}
			if flags.asJSON {
				return writeJSON(a, prompts)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tDATE\tTIME\tSUBJECT")
			for _, p := range prompts {
				fmt.Fprintf(tw, "%d\t%s\t%s-%s\t%s\n", p.ID, p.Date.Format(persistence.DateLayout), p.StartTime, p.EndTime, p.Subject)
			}
			return tw.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func writeJSON(a *app, value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
