// Command whisperstub is a local stand-in for a Whisper-compatible
// transcription server. It answers verbose_json requests with scripted
// replies so the wake loop and recorder can be exercised without a model.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sahaa21/MindMend/internal/audio"
)

var (
	listenAddr     string
	replies        []string
	language       string
	delay          time.Duration
	silenceLevel   float64
	maxUploadBytes int64 = 32 << 20
)

var rootCmd = &cobra.Command{
	Use:   "whisperstub",
	Short: "Scripted Whisper-compatible transcription server",
	Long: `Serve POST /v1/audio/transcriptions with scripted replies.

Replies are returned in order and wrap around. Uploads whose RMS level is
below --silence get an empty transcript when vad_filter is true.

Examples:
  whisperstub --reply "hey there" --reply "how do I sleep better"
  whisperstub --addr :9000 --delay 500ms`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		stub := newStub(replies, language, delay, silenceLevel, logger)

		mux := http.NewServeMux()
		mux.HandleFunc("POST /v1/audio/transcriptions", stub.handleTranscribe)

		logger.Info("Whisper stub listening",
			slog.String("address", listenAddr),
			slog.Int("replies", len(replies)),
		)

		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return server.ListenAndServe()
	},
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "Listen address")
	rootCmd.Flags().StringArrayVar(&replies, "reply", []string{"hello", "what can I do when I feel anxious"}, "Scripted reply, repeatable")
	rootCmd.Flags().StringVar(&language, "language", "en", "Language reported when the request has no hint")
	rootCmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "Simulated processing time")
	rootCmd.Flags().Float64Var(&silenceLevel, "silence", 0.01, "RMS level below which audio counts as silence")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type verboseResponse struct {
	Text                string    `json:"text"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
	Segments            []segment `json:"segments"`
}

// stub hands out replies in order
type stub struct {
	replies  []string
	language string
	delay    time.Duration
	silence  float64
	logger   *slog.Logger

	mu   sync.Mutex
	next int
}

func newStub(replies []string, language string, delay time.Duration, silence float64, logger *slog.Logger) *stub {
	return &stub{
		replies:  replies,
		language: language,
		delay:    delay,
		silence:  silence,
		logger:   logger,
	}
}

func (s *stub) nextReply() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replies) == 0 {
		return ""
	}
	reply := s.replies[s.next%len(s.replies)]
	s.next++
	return reply
}

func (s *stub) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	pcm, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		http.Error(w, "Invalid WAV upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	samples := audio.PCM16ToFloat32(pcm)
	duration := audio.SamplesDuration(len(samples), sampleRate).Seconds()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	lang := r.FormValue("language")
	if lang == "" {
		lang = s.language
	}

	resp := verboseResponse{
		Language:            lang,
		LanguageProbability: 0.95,
		Duration:            duration,
		Segments:            []segment{},
	}

	level := rms(samples)
	if r.FormValue("vad_filter") == "true" && level < s.silence {
		s.logger.Info("Silent upload", slog.Float64("rms", level), slog.Float64("duration", duration))
	} else {
		resp.Text = s.nextReply()
		resp.Segments = append(resp.Segments, segment{Start: 0, End: duration, Text: resp.Text})
	}

	s.logger.Info("Transcription request",
		slog.String("model", r.FormValue("model")),
		slog.String("language", lang),
		slog.Float64("duration", duration),
		slog.String("text", resp.Text),
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
