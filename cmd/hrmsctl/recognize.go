package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/api/handlers"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/attendance"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/directory"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/recognition"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognise a face image and record attendance, like the kiosk",
	Long: `Run one recognition against the gallery and record the attendance
transition exactly as POST /v1/attendance/recognize would, printing the
same JSON response.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	img, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	loc, err := cfg.Attendance.Location()
	if err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, release, err := newProvider()
	if err != nil {
		return err
	}
	defer release()

	g, err := scanGallery(cmd, provider)
	if err != nil {
		return err
	}

	ledger := attendance.NewLedger(store, store, loc)
	svc := recognition.NewService(provider, matcher.New(g, cfg.Vision.MatchThreshold), directory.NewResolver(store), ledger)

	res, err := svc.Recognize(ctx, img)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(handlers.RecognizeResponse(res, loc))
}
