package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// whisperHandler mimics a Whisper-compatible server and records the form it received
func whisperHandler(t *testing.T, received *map[string]string, body map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing audio file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		form := map[string]string{
			"filename":        header.Filename,
			"audio":           string(data),
			"language":        r.FormValue("language"),
			"vad_filter":      r.FormValue("vad_filter"),
			"model":           r.FormValue("model"),
			"response_format": r.FormValue("response_format"),
			"authorization":   r.Header.Get("Authorization"),
		}
		if received != nil {
			*received = form
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

func TestClientTranscribe(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(whisperHandler(t, &received, map[string]interface{}{
		"text":                 " um hey assistant please",
		"language":             "en",
		"language_probability": 0.97,
		"segments": []map[string]interface{}{
			{"start": 0.0, "end": 0.8, "text": " um hey"},
			{"start": 0.8, "end": 1.9, "text": " assistant please"},
		},
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint: server.URL,
		APIKey:   "secret",
		Model:    "small",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result := client.Transcribe(context.Background(), Request{
		Audio:     []byte("RIFF-fake"),
		Language:  "en",
		VADFilter: true,
	})

	if !result.OK {
		t.Fatalf("Expected success, got failure: %s", result.Reason)
	}

	if len(result.Segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(result.Segments))
	}

	if result.Segments[1].Start != 800*time.Millisecond {
		t.Errorf("Expected second segment at 800ms, got %v", result.Segments[1].Start)
	}

	if result.Text() != "um hey assistant please" {
		t.Errorf("Unexpected text %q", result.Text())
	}

	if result.Language != "en" || result.Confidence != 0.97 {
		t.Errorf("Unexpected language %s/%f", result.Language, result.Confidence)
	}

	if received["language"] != "en" || received["vad_filter"] != "true" {
		t.Errorf("Language hint and VAD flag not forwarded: %v", received)
	}

	if received["model"] != "small" || received["response_format"] != "verbose_json" {
		t.Errorf("Unexpected model/format fields: %v", received)
	}

	if received["audio"] != "RIFF-fake" || !strings.HasSuffix(received["filename"], ".wav") {
		t.Errorf("Audio not uploaded as WAV file: %v", received)
	}

	if received["authorization"] != "Bearer secret" {
		t.Errorf("Expected bearer token, got %q", received["authorization"])
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestClientTextOnlyResponse(t *testing.T) {
	server := httptest.NewServer(whisperHandler(t, nil, map[string]interface{}{
		"text":     "Hello there",
		"language": "en",
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result := client.Transcribe(context.Background(), Request{Audio: []byte("x")})
	if !result.OK || result.Text() != "Hello there" {
		t.Errorf("Expected flat text to become a segment, got %+v", result)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts int32
	ok := whisperHandler(t, nil, map[string]interface{}{"text": "hi"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint:   server.URL,
		MaxRetries: 3,
		Backoff:    5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result := client.Transcribe(context.Background(), Request{Audio: []byte("x")})
	if !result.OK {
		t.Fatalf("Expected success after retries, got %s", result.Reason)
	}

	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	if stats := client.GetStats(); stats.TotalRetries != 2 {
		t.Errorf("Expected 2 retries, got %d", stats.TotalRetries)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "unsupported audio", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint:   server.URL,
		MaxRetries: 3,
		Backoff:    5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result := client.Transcribe(context.Background(), Request{Audio: []byte("x")})
	if result.OK {
		t.Fatal("Expected failure for a 400 response")
	}

	if !strings.Contains(result.Reason, "HTTP error 400") {
		t.Errorf("Expected reason to mention the status, got %q", result.Reason)
	}

	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts)
	}

	if err := result.Err(); err == nil {
		t.Error("Expected Err() to return a Failure")
	}

	if stats := client.GetStats(); stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestClientUnreachableServer(t *testing.T) {
	client, err := NewClient(Config{
		Endpoint: "http://127.0.0.1:1/v1/audio/transcriptions",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result := client.Transcribe(context.Background(), Request{Audio: []byte("x")})
	if result.OK {
		t.Fatal("Expected failure for an unreachable server")
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestResultText(t *testing.T) {
	result := Succeeded([]Segment{
		{Text: "  Hey "},
		{Text: ""},
		{Text: "Assistant"},
	}, "en", 0.9)

	if result.Text() != "Hey Assistant" {
		t.Errorf("Expected %q, got %q", "Hey Assistant", result.Text())
	}

	if got := result.Concatenated(); got != "  Hey Assistant" {
		t.Errorf("Expected raw concatenation %q, got %q", "  Hey Assistant", got)
	}

	if result.Err() != nil {
		t.Errorf("Successful result should have no error")
	}

	failed := Failed("model crashed: %d", 7)
	if failed.OK || failed.Reason != "model crashed: 7" {
		t.Errorf("Unexpected failed result %+v", failed)
	}

	var failure *Failure
	if f, ok := failed.Err().(*Failure); !ok {
		t.Errorf("Expected *Failure, got %T", failed.Err())
	} else {
		failure = f
	}

	if failure != nil && !strings.Contains(failure.Error(), "model crashed") {
		t.Errorf("Unexpected error text %q", failure.Error())
	}
}
