package vad

import (
	"fmt"
	"math"
	"strings"
)

// Detector kinds accepted by New
const (
	KindAmplitude = "amplitude"
	KindRMS       = "rms"
)

// Detector classifies samples as silent or not, one sample at a time.
// Implementations are not safe for concurrent use.
type Detector interface {
	// Silent consumes one sample and reports whether it counts as silence
	Silent(sample float32) bool
	// Reset clears any history carried between samples
	Reset()
}

// New creates a detector by kind. An empty kind selects the amplitude detector.
func New(kind string, threshold float32, windowSamples int) (Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindAmplitude:
		return NewAmplitudeDetector(threshold), nil
	case KindRMS:
		return NewRMSDetector(threshold, windowSamples)
	default:
		return nil, fmt.Errorf("unknown silence detector %q", kind)
	}
}

// AmplitudeDetector treats a sample as silent when its absolute value is
// strictly below the threshold. No averaging is applied.
type AmplitudeDetector struct {
	threshold float32
}

// NewAmplitudeDetector creates a per-sample amplitude detector
func NewAmplitudeDetector(threshold float32) *AmplitudeDetector {
	return &AmplitudeDetector{threshold: threshold}
}

// Silent reports whether abs(sample) < threshold
func (d *AmplitudeDetector) Silent(sample float32) bool {
	if sample < 0 {
		sample = -sample
	}
	return sample < d.threshold
}

// Reset is a no-op; the amplitude test carries no state
func (d *AmplitudeDetector) Reset() {}

// RMSDetector treats a sample as silent when the RMS energy of the trailing
// window (including the sample) is strictly below the threshold. Until the
// window fills, the RMS is taken over the samples seen so far.
type RMSDetector struct {
	threshold float32
	squares   []float64 // ring buffer of squared samples
	pos       int
	filled    int
	sum       float64
}

// NewRMSDetector creates a sliding-window RMS detector
func NewRMSDetector(threshold float32, windowSamples int) (*RMSDetector, error) {
	if windowSamples <= 0 {
		return nil, fmt.Errorf("rms window must be positive, got %d samples", windowSamples)
	}

	return &RMSDetector{
		threshold: threshold,
		squares:   make([]float64, windowSamples),
	}, nil
}

// Silent pushes the sample into the window and compares the window RMS
func (d *RMSDetector) Silent(sample float32) bool {
	sq := float64(sample) * float64(sample)

	d.sum -= d.squares[d.pos]
	d.squares[d.pos] = sq
	d.sum += sq
	d.pos = (d.pos + 1) % len(d.squares)
	if d.filled < len(d.squares) {
		d.filled++
	}

	// Running sums drift slightly below zero after long runs of silence
	if d.sum < 0 {
		d.sum = 0
	}

	return d.RMS() < float64(d.threshold)
}

// RMS returns the current window energy
func (d *RMSDetector) RMS() float64 {
	if d.filled == 0 {
		return 0
	}
	return math.Sqrt(d.sum / float64(d.filled))
}

// Reset empties the window
func (d *RMSDetector) Reset() {
	for i := range d.squares {
		d.squares[i] = 0
	}
	d.pos = 0
	d.filled = 0
	d.sum = 0
}
