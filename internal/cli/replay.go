package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"interview-copilot-service/internal/app"
	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/observability/logging"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/transcript"
)

func NewReplayCmd(deps *Dependencies) *cobra.Command {
	var (
		realtime bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Run a recorded interview through the copilot and print the transcript",
		Long: "Replays a 16-bit PCM WAV file through segmentation and the configured AI backend. " +
			"Every turn is analysed (boundaries queue instead of being dropped) and outstanding " +
			"turns finish before the transcript is printed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *deps.Config
			logging.InitWriter(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"}, cmd.ErrOrStderr())

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			track, err := audio.NewWAVTrack(data, cfg.Audio.BlockSize)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			// The monitor follows the file.
			cfg.Audio.SampleRateHz = track.SampleRate()

			p, err := app.NewPipeline(cmd.Context(), &cfg, nil,
				app.WithDrainOnEnd(), app.WithBoundaryPolicy(copilot.PolicyQueue, 0))
			if err != nil {
				return err
			}
			defer p.Close()

			var t audio.Track = track
			if realtime {
				t = audio.Paced(track)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if err := p.Session.Start(ctx, audio.NewSource(t)); err != nil {
				return err
			}
			<-p.Session.Done()
			if err := p.Session.Err(); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			return printTranscript(cmd.OutOrStdout(), p.Store.Turns(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "Replay at real-time speed instead of as fast as possible")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the transcript as JSON")
	return cmd
}

func printTranscript(w io.Writer, turns []transcript.Turn, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(turns)
	}
	if len(turns) == 0 {
		_, err := fmt.Fprintln(w, "No questions detected.")
		return err
	}
	for i, t := range turns {
		if _, err := fmt.Fprintf(w, "[%d] Q: %s\n    A: %s\n\n", i+1, t.Question, t.Answer); err != nil {
			return err
		}
	}
	return nil
}
