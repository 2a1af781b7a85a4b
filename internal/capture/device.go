package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/session"
)

// ErrNoInputDevice is returned when the host has no usable input device
var ErrNoInputDevice = errors.New("no default input device")

// Device opens input streams on the host's default input device
type Device struct {
	logger *slog.Logger
}

// NewDevice creates a capture device
func NewDevice(logger *slog.Logger) *Device {
	return &Device{logger: logger}
}

// Open negotiates a sample rate with the default input device. The
// preferred rate is used when the device supports it, otherwise the
// device's default rate. The stream is not started.
func (d *Device) Open(preferredSampleRate, framesPerBuffer int) (session.InputStream, error) {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInputDevice, err)
	}
	if dev == nil || dev.MaxInputChannels < 1 {
		return nil, ErrNoInputDevice
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	if framesPerBuffer > 0 {
		params.FramesPerBuffer = framesPerBuffer
	}

	rate := chooseSampleRate(preferredSampleRate, dev.DefaultSampleRate, func(rate float64) bool {
		p := params
		p.SampleRate = rate
		return portaudio.IsFormatSupported(p, func([]float32) {}) == nil
	})
	if rate <= 0 {
		return nil, fmt.Errorf("device %s reports no usable sample rate", dev.Name)
	}
	params.SampleRate = float64(rate)

	d.logger.Info("Input device selected",
		slog.String("device", dev.Name),
		slog.Int("channels", params.Input.Channels),
		slog.Int("sample_rate", rate),
		slog.Int("preferred_sample_rate", preferredSampleRate),
	)

	return &Stream{
		params:     params,
		channels:   params.Input.Channels,
		sampleRate: rate,
		device:     dev.Name,
		logger:     d.logger,
	}, nil
}

// chooseSampleRate returns the preferred rate when supported, otherwise the
// device default
func chooseSampleRate(preferred int, deviceDefault float64, supported func(float64) bool) int {
	if preferred > 0 && float64(preferred) != deviceDefault && supported(float64(preferred)) {
		return preferred
	}
	if deviceDefault > 0 {
		return int(deviceDefault)
	}
	if preferred > 0 && supported(float64(preferred)) {
		return preferred
	}
	return 0
}

// Stream is one PortAudio input stream
type Stream struct {
	params     portaudio.StreamParameters
	channels   int
	sampleRate int
	device     string
	logger     *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// SampleRate returns the negotiated sample rate
func (s *Stream) SampleRate() int {
	return s.sampleRate
}

// Start opens the stream and begins delivering mono samples to callback
func (s *Stream) Start(callback func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return fmt.Errorf("stream already started")
	}

	channels := s.channels
	stream, err := portaudio.OpenStream(s.params, func(in []float32) {
		callback(audio.Downmix(in, channels))
	})
	if err != nil {
		return fmt.Errorf("failed to open input stream on %s: %w", s.device, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream on %s: %w", s.device, err)
	}

	s.stream = stream
	return nil
}

// Stop halts the stream and releases it. It returns after the last
// callback has finished.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	s.stream = nil

	if stopErr != nil {
		return fmt.Errorf("failed to stop input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close input stream: %w", closeErr)
	}
	return nil
}
