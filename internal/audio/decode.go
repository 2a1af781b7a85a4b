package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Decode failures reported by MediaDecoder
var (
	ErrNoAudioTrack      = errors.New("no audio track found")
	ErrUnsupportedCodec  = errors.New("unsupported or unreadable codec parameters")
	ErrMissingSampleRate = errors.New("missing sample rate")
)

// DecoderConfig contains media decoder configuration
type DecoderConfig struct {
	FFmpegPath       string // defaults to "ffmpeg" on PATH
	TargetSampleRate int    // 0 keeps the source rate
}

// MediaDecoder turns an audio or video file into mono float samples.
// WAV files are read directly; anything else is converted to a temporary
// WAV by ffmpeg first.
type MediaDecoder struct {
	config DecoderConfig
	logger *slog.Logger
}

// NewMediaDecoder creates a media decoder
func NewMediaDecoder(config DecoderConfig, logger *slog.Logger) *MediaDecoder {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	return &MediaDecoder{config: config, logger: logger}
}

// Decode returns the file's samples down-mixed to mono and its sample rate
func (d *MediaDecoder) Decode(ctx context.Context, path string) ([]float32, int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, 0, fmt.Errorf("failed to open media file %s: %w", path, err)
	}

	var (
		samples []float32
		rate    int
		err     error
	)

	if isWAVPath(path) {
		samples, rate, err = DecodeWAVFile(path)
		if errors.Is(err, ErrUnsupportedCodec) {
			d.logger.Debug("WAV not readable directly, converting with ffmpeg",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			samples, rate, err = d.decodeWithFFmpeg(ctx, path)
		}
	} else {
		samples, rate, err = d.decodeWithFFmpeg(ctx, path)
	}
	if err != nil {
		return nil, 0, err
	}

	if d.config.TargetSampleRate > 0 && rate != d.config.TargetSampleRate {
		resampled, err := Resample(samples, rate, d.config.TargetSampleRate)
		if err != nil {
			return nil, 0, err
		}
		d.logger.Debug("Resampled media audio",
			slog.String("path", path),
			slog.Int("from_rate", rate),
			slog.Int("to_rate", d.config.TargetSampleRate),
		)
		samples, rate = resampled, d.config.TargetSampleRate
	}

	d.logger.Info("Decoded media file",
		slog.String("path", path),
		slog.Int("sample_rate", rate),
		slog.Int("samples", len(samples)),
	)

	return samples, rate, nil
}

// decodeWithFFmpeg converts the input to a temporary mono 16-bit WAV
func (d *MediaDecoder) decodeWithFFmpeg(ctx context.Context, path string) ([]float32, int, error) {
	dir, err := os.MkdirTemp("", "voicetranscript-media-")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "audio.wav")
	args := []string{"-y", "-i", path, "-vn", "-ac", "1", "-c:a", "pcm_s16le"}
	if d.config.TargetSampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(d.config.TargetSampleRate))
	}
	args = append(args, "-f", "wav", out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: ffmpeg is required to decode %s: %v",
				ErrUnsupportedCodec, filepath.Ext(path), err)
		}
		return nil, 0, classifyFFmpegError(stderr.String(), err)
	}

	return DecodeWAVFile(out)
}

// classifyFFmpegError maps ffmpeg diagnostics onto decode errors
func classifyFFmpegError(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "does not contain any stream"),
		strings.Contains(lower, "matches no streams"),
		strings.Contains(lower, "no audio"):
		return fmt.Errorf("%w: %s", ErrNoAudioTrack, lastLine(stderr))
	case strings.Contains(lower, "sample rate"):
		return fmt.Errorf("%w: %s", ErrMissingSampleRate, lastLine(stderr))
	default:
		return fmt.Errorf("%w: ffmpeg failed: %v: %s", ErrUnsupportedCodec, err, lastLine(stderr))
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DecodeWAVFile reads an integer PCM WAV file into mono float samples
func DecodeWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedCodec, path)
	}

	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("%w: WAV audio format %d (only integer PCM is read directly)",
			ErrUnsupportedCodec, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read PCM data: %v", ErrUnsupportedCodec, err)
	}

	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, ErrMissingSampleRate
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, 0, fmt.Errorf("%w: channel count %d", ErrUnsupportedCodec, channels)
	}

	if len(buf.Data) < channels {
		return nil, 0, ErrNoAudioTrack
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("%w: bit depth %d", ErrUnsupportedCodec, bitDepth)
	}

	interleaved := make([]float32, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV samples are unsigned
		for i, v := range buf.Data {
			interleaved[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			interleaved[i] = float32(v) / scale
		}
	}

	return Downmix(interleaved, channels), buf.Format.SampleRate, nil
}

// Downmix averages interleaved frames into mono. Mono input is returned as is.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts mono samples between sample rates. The filter tail is
// flushed and the result trimmed to len(samples)*toRate/fromRate.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}

	// ResampleMono drains every stage; the pipeline resampler's Flush does not
	// feed one stage's tail through the next
	output, err := resampling.ResampleMono(input, float64(fromRate), float64(toRate), resampling.QualityHigh)
	if err != nil {
		return nil, fmt.Errorf("failed to resample audio: %w", err)
	}

	// Zero padding on flush overshoots by a few samples
	want := int((int64(len(samples))*int64(toRate) + int64(fromRate)/2) / int64(fromRate))
	if len(output) > want {
		output = output[:want]
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}

func isWAVPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return true
	default:
		return false
	}
}
