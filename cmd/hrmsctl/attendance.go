package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Query the attendance ledger",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List check-ins and check-outs for a day",
	Example: `  hrmsctl attendance list
  hrmsctl attendance list --date 2026-10-19 --json`,
	Args: cobra.NoArgs,
	RunE: runAttendanceList,
}

func init() {
	attendanceListCmd.Flags().String("date", "", "Day to list as YYYY-MM-DD (default today)")
	attendanceListCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceCmd.AddCommand(attendanceListCmd)
	rootCmd.AddCommand(attendanceCmd)
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dateStr, _ := cmd.Flags().GetString("date")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	loc, err := cfg.Attendance.Location()
	if err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger := attendance.NewLedger(store, store, loc)

	var (
		day  time.Time
		recs []models.AttendanceRecord
	)
	if dateStr == "" {
		now := time.Now()
		day = models.DateOf(now, loc)
		recs, err = ledger.Today(ctx, now)
	} else {
		day, err = time.Parse(models.DateLayout, dateStr)
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		recs, err = ledger.ListByDate(ctx, day)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tROLE\tCHECK IN\tCHECK OUT")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Email, r.Role,
			models.FormatClock(r.CheckIn, loc), models.FormatClock(r.CheckOut, loc))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d records on %s\n", len(recs), day.Format(models.DateLayout))
	return nil
}
