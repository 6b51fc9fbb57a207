package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/planner"
	"github.com/p-n-ai/pai-planner/internal/scheduler"
	"github.com/p-n-ai/pai-planner/internal/task"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the batch a learner would be assigned (no database)",
		Long: `Plan a weekly batch against the curriculum catalog without persisting it.

Tags come from the placeholder lists, since no question bank is consulted.`,
		RunE: runPreview,
	}
	cmd.Flags().String("learner", "preview", "Learner id to plan for")
	cmd.Flags().StringSlice("completed", nil, "Comma-separated unit ids already completed")
	cmd.Flags().String("date", "", "Plan as of this date (YYYY-MM-DD); default today")
	cmd.Flags().Bool("json", false, "Print tasks as JSON")
	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	learner, _ := cmd.Flags().GetString("learner")
	completed, _ := cmd.Flags().GetStringSlice("completed")
	dateVal, _ := cmd.Flags().GetString("date")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	now := time.Now().In(loc)
	if dateVal != "" {
		d, err := time.ParseInLocation(time.DateOnly, dateVal, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateVal, err)
		}
		now = d.Add(12 * time.Hour)
	}

	catalog, err := curriculum.Load(cfg.Curriculum.Path)
	if err != nil {
		return err
	}
	store := task.NewMemoryStore()
	sched, err := scheduler.New(scheduler.Config{
		Catalog:  catalog,
		Store:    store,
		Location: loc,
		MaxTags:  cfg.Tags.MaxCount,
	})
	if err != nil {
		return err
	}
	e, err := planner.NewEngine(planner.EngineConfig{
		Catalog:   catalog,
		Store:     store,
		Scheduler: sched,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		return err
	}

	if completed == nil {
		completed = []string{}
	}
	tasks, err := e.Preview(cmd.Context(), learner, completed)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}

	fmt.Fprintf(out, "Week of %s, %d tasks\n", task.WeekStart(now).Format(time.DateOnly), len(tasks))
	fmt.Fprintf(out, "%-3s  %-9s  %-18s  %-10s  %s\n", "#", "Type", "Subject", "Due", "Title")
	fmt.Fprintln(out, strings.Repeat("─", 72))
	for _, t := range tasks {
		fmt.Fprintf(out, "%-3d  %-9s  %-18s  %-10s  %s\n",
			t.TaskNumber, t.Type(), t.Subject, t.DueDate.Format("Mon 01-02"), t.Title)
	}
	return nil
}
