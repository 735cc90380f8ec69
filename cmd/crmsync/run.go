package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkoziy/contratos/crmsync/internal/models"
	"github.com/mkoziy/contratos/crmsync/internal/syncer"
)

var (
	runType  string
	runFrom  string
	runTo    string
	runForce bool
	runJSON  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one CRM sync",
	Long: `Fetch sales from the CRM for a date window and reconcile them into the
local mirror.

Types:
  manual       operator-triggered, forced by default
  auto         scheduled, skipped when one already completed today
  full         explicit --from/--to window
  incremental  starts where the last completed run ended

Without --from/--to the configured default window is used.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runType, "type", "t", string(models.SyncManual), "Sync type: manual, auto, full, incremental")
	runCmd.Flags().StringVar(&runFrom, "from", "", "Window start (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runTo, "to", "", "Window end (YYYY-MM-DD)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Run even if a sync already completed today (default true for manual)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the result as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireCRM(); err != nil {
		return err
	}
	syncType, err := models.ParseSyncType(runType)
	if err != nil {
		return err
	}

	req := syncer.Request{Type: syncType, Force: syncType == models.SyncManual}
	if cmd.Flags().Changed("force") {
		req.Force = runForce
	}
	if req.From, err = dayFlag("from", runFrom); err != nil {
		return err
	}
	if req.To, err = dayFlag("to", runTo); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sync.RunSync(cmd.Context(), req)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(res)
	return nil
}

func printResult(res *syncer.Result) {
	if res.Skipped {
		fmt.Printf("Sync %s skipped: %s\n", res.Type, res.Reason)
		return
	}
	fmt.Printf("Sync %s completed (%s → %s)\n", res.RunID, res.From, res.To)
	fmt.Printf("  Processed: %d\n", res.Processed)
	fmt.Printf("  New:       %d\n", res.New)
	fmt.Printf("  Updated:   %d\n", res.Updated)
	fmt.Printf("  Hidden:    %d\n", res.Hidden)
	fmt.Printf("  Duration:  %s\n", res.Duration.Round(time.Millisecond))
}

func dayFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DayLayout, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return &t, nil
}
