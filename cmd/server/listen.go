package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/listen"
	"github.com/Sahaa21/MindMend/internal/microphone"
)

var (
	listenInput    string
	listenDuration float64
	listenNoRecord bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for the wake phrase once, then record and transcribe",
	Long: `Run a single wake cycle and print the outcome as JSON.

Audio comes from the default microphone, or from a 16-bit PCM WAV file
given with --input. After the wake phrase a recording of --duration
seconds is transcribed, unless --no-record is set.

Examples:
  server listen
  server listen --input testdata/hello.wav --no-record
  server -c configs/config.yaml listen --duration 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListen(cmd.Context())
	},
}

func init() {
	listenCmd.Flags().StringVarP(&listenInput, "input", "i", "", "WAV file to replay instead of the microphone")
	listenCmd.Flags().Float64VarP(&listenDuration, "duration", "d", 0, "Seconds to record after the wake phrase (default listen.record_duration)")
	listenCmd.Flags().BoolVar(&listenNoRecord, "no-record", false, "Stop after the wake phrase")
}

func openSource(logger *slog.Logger) (audio.Source, error) {
	if listenInput == "" {
		return microphone.NewSource(logger), nil
	}

	data, err := os.ReadFile(listenInput)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	blob, err := audio.NewBlobSourceFromWAV(data)
	if err != nil {
		return nil, err
	}

	logger.Info("Replaying recording",
		slog.String("input", listenInput),
		slog.Duration("duration", blob.Duration()),
	)

	return blob, nil
}

func runListen(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := openSource(logger)
	if err != nil {
		return err
	}

	eng, closeEngine, err := newEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer closeEngine()

	detector, err := newDetector(cfg, eng, nil, logger)
	if err != nil {
		return err
	}

	loop, err := newLoopFactory(cfg, source, detector, nil, logger)()
	if err != nil {
		return fmt.Errorf("failed to create listen loop: %w", err)
	}

	if err := loop.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Listening for %v...\n", cfg.Wake.Phrases)

	select {
	case <-loop.Done():
	case <-ctx.Done():
		loop.Stop()
		<-loop.Done()
	}

	output := map[string]interface{}{
		"status": loop.Status(),
	}

	if loop.State() == listen.StateAwake && !listenNoRecord {
		duration := cfg.Listen.GetRecordDuration()
		if listenDuration > 0 {
			duration = time.Duration(listenDuration * float64(time.Second))
		}

		recorder, err := newRecorder(cfg, source, eng, logger)
		if err != nil {
			return fmt.Errorf("failed to create recorder: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Recording %v...\n", duration)
		transcript, err := recorder.RecordAndTranscribe(ctx, duration)
		if err != nil {
			output["error"] = err.Error()
		} else {
			output["transcript"] = transcript
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
