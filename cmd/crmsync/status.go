package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mkoziy/contratos/crmsync/internal/models"
)

var (
	statusOutput  string
	statusHistory int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Long: `Display whether today's automatic sync already completed, the latest
run and the latest completed run. With --history, list recent runs.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format: text, json, yaml")
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "Also list the N most recent runs")
}

type statusReport struct {
	Today              string           `json:"today"`
	AutoCompletedToday bool             `json:"auto_completed_today"`
	LastRun            *models.SyncRun  `json:"last_run,omitempty"`
	LastCompleted      *models.SyncRun  `json:"last_completed,omitempty"`
	History            []models.SyncRun `json:"history,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	switch statusOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", statusOutput)
	}

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.sync.Status(cmd.Context())
	if err != nil {
		return err
	}
	report := statusReport{
		Today:              st.Today,
		AutoCompletedToday: st.AutoCompletedToday,
		LastRun:            st.LastRun,
		LastCompleted:      st.LastCompleted,
	}
	if statusHistory > 0 {
		if report.History, err = a.runs.History(cmd.Context(), statusHistory); err != nil {
			return err
		}
	}

	switch statusOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		return writeYAML(report)
	}
	printStatus(report)
	return nil
}

// writeYAML goes through JSON so the YAML keys match the JSON field names.
func writeYAML(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func printStatus(r statusReport) {
	auto := "pending"
	if r.AutoCompletedToday {
		auto = "completed"
	}
	fmt.Printf("\nSync status for %s\n\n", r.Today)
	fmt.Printf("Automatic sync today: %s\n", auto)

	fmt.Printf("Last run:             %s\n", describeRun(r.LastRun))
	fmt.Printf("Last completed run:   %s\n", describeRun(r.LastCompleted))

	if len(r.History) > 0 {
		fmt.Printf("\nRecent runs:\n")
		for i := range r.History {
			fmt.Printf("  %s\n", describeRun(&r.History[i]))
		}
	}
	fmt.Println()
}

func describeRun(run *models.SyncRun) string {
	if run == nil {
		return "none"
	}
	s := fmt.Sprintf("%s %s [%s] %s → %s, started %s",
		run.RunID, run.SyncType, run.Status, run.DateFrom, run.DateTo, humanize.Time(run.StartedAt))
	if run.Succeeded() {
		s += fmt.Sprintf(", %s processed (%s new, %s updated, %s hidden) in %s",
			humanize.Comma(int64(run.TotalProcessed)),
			humanize.Comma(int64(run.NewCount)),
			humanize.Comma(int64(run.UpdatedCount)),
			humanize.Comma(int64(run.HiddenCount)),
			run.Duration().Round(time.Millisecond))
	}
	if run.ErrorMessage != nil {
		s += ": " + *run.ErrorMessage
	}
	return s
}
