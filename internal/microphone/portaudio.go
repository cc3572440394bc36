package microphone

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/Sahaa21/MindMend/internal/audio"
)

// Source captures from the default PortAudio input device
type Source struct {
	logger *slog.Logger
}

// DeviceInfo describes an input-capable device
type DeviceInfo struct {
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	Default           bool    `json:"default"`
}

// NewSource creates a microphone source
func NewSource(logger *slog.Logger) *Source {
	return &Source{logger: logger}
}

// Open initializes PortAudio and starts a callback stream on the default
// input device. Each callback delivers one chunk of format.ChunkDuration.
func (s *Source) Open(format audio.Format, sink audio.Sink) (audio.Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, &audio.AcquisitionError{Device: "default", Err: err}
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.AcquisitionError{Device: "default", Err: err}
	}

	channels := format.Channels
	frames := format.FramesPerChunk()

	callback := func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 {
			sink.OnError(&audio.TransientError{Op: "capture", Err: audio.ErrInputOverflow})
			return
		}

		// PortAudio reuses in between callbacks; NewChunk copies it.
		sink.OnChunk(audio.NewChunk(downmix(in, channels), format.SampleRate, time.Now()))
	}

	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(format.SampleRate), frames, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, &audio.AcquisitionError{Device: "default", Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, &audio.AcquisitionError{Device: "default", Err: err}
	}

	s.logger.Debug("Microphone stream opened",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("channels", channels),
		slog.Int("frames_per_chunk", frames),
	)

	return &micStream{stream: stream, logger: s.logger}, nil
}

type micStream struct {
	stream *portaudio.Stream
	logger *slog.Logger
	once   sync.Once
	err    error
}

// Close stops the stream, releases the device and terminates PortAudio
func (s *micStream) Close() error {
	s.once.Do(func() {
		if err := s.stream.Stop(); err != nil {
			s.logger.Warn("Failed to stop microphone stream", slog.String("error", err.Error()))
		}
		if err := s.stream.Close(); err != nil {
			s.err = fmt.Errorf("failed to close microphone stream: %w", err)
		}
		if err := portaudio.Terminate(); err != nil && s.err == nil {
			s.err = fmt.Errorf("failed to terminate portaudio: %w", err)
		}
		s.logger.Debug("Microphone stream closed")
	})
	return s.err
}

// Devices lists input-capable devices
func Devices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = def.Name
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}

		hostAPI := ""
		if d.HostApi != nil {
			hostAPI = d.HostApi.Name
		}

		infos = append(infos, DeviceInfo{
			Name:              d.Name,
			HostAPI:           hostAPI,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.Name == defaultName,
		})
	}

	return infos, nil
}

// downmix averages interleaved frames into mono
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}

	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
