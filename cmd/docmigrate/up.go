package main

import (
	"fmt"
	"io"
	"time"

	"github.com/loykin/docmigrate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUpCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run every pending changeset under the migration lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, v)
		},
	}
	cmd.Flags().Bool("dry-run", false, "list what would run without taking the lock")
	_ = v.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))
	return cmd
}

func runUp(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()
	m, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close(ctx) }()
	out := cmd.OutOrStdout()

	if m.Config.DryRun {
		plan, err := m.Plan(ctx)
		if err != nil {
			return err
		}
		printPlan(out, plan)
		return nil
	}

	report, err := m.Up(ctx)
	if report != nil {
		printReport(out, report)
	}
	return err
}

func printPlan(w io.Writer, plan []docmigrate.PlanItem) {
	if len(plan) == 0 {
		_, _ = fmt.Fprintln(w, "no changesets registered")
		return
	}
	for _, p := range plan {
		action := "skip"
		if p.WillRun {
			action = "run"
		}
		_, _ = fmt.Fprintf(w, "%-4s %-6s %s (%s)\n", action, p.Order, p.Key, p.Policy)
	}
}

func printReport(w io.Writer, r *docmigrate.Report) {
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%-8s %-6s %s %s", o.Status, o.Order, o.Key, o.Duration.Round(time.Millisecond))
		if o.Err != nil {
			line += ": " + o.Err.Error()
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_, _ = fmt.Fprintf(w, "%s: executed=%d skipped=%d\n", r.Result, r.Executed(), r.Skipped())
}
