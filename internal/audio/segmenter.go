package audio

import (
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/youtonghy/Voice-transcript/internal/vad"
)

const (
	// Lower bounds applied to configured durations
	minSilenceFloorSeconds = 0.1
	maxSegmentFloorSeconds = 1.0
)

// Segment is a contiguous span of speech cut from a sample stream.
// Segments are immutable once emitted.
type Segment struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"` // capture order within one segmenter, starting at 1
	Samples    []float32 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Duration returns the segment length as a time.Duration
func (s Segment) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// SegmenterParams configures a Segmenter
type SegmenterParams struct {
	SampleRate        int
	SilenceThreshold  float32 // amplitude in [0,1]
	MinSilenceSeconds float64
	MaxSegmentSeconds float64

	// Detector selects the silence test: "amplitude" (default) or "rms"
	Detector string
	// RMSWindow is the averaging window for the rms detector
	RMSWindow time.Duration
}

// SegmenterStats represents segmenter statistics
type SegmenterStats struct {
	SegmentsEmitted  uint64 `json:"segments_emitted"`
	SamplesConsumed  uint64 `json:"samples_consumed"`
	DiscardedCuts    uint64 `json:"discarded_cuts"`
	BufferedSamples  int    `json:"buffered_samples"`
	SilenceRun       int    `json:"silence_run"`
	MinSilenceLength int    `json:"min_silence_samples"`
	MaxSegmentLength int    `json:"max_segment_samples"`
}

// Segmenter cuts a stream of normalized samples into speech segments using
// a run of consecutive silent samples or a maximum segment length.
// It is not safe for concurrent use.
type Segmenter struct {
	sampleRate        int
	minSilenceSamples int
	maxSegmentSamples int
	detector          vad.Detector

	buffer     []float32
	silenceRun int
	startedAt  time.Time
	seq        uint64

	now func() time.Time

	// Statistics
	segmentsEmitted uint64
	samplesConsumed uint64
	discardedCuts   uint64
}

// NewSegmenter creates a segmenter from params
func NewSegmenter(params SegmenterParams) (*Segmenter, error) {
	if params.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", params.SampleRate)
	}

	windowSamples := int(params.RMSWindow.Seconds() * float64(params.SampleRate))
	detector, err := vad.New(params.Detector, params.SilenceThreshold, windowSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to create silence detector: %w", err)
	}

	minSilence := math.Max(minSilenceFloorSeconds, params.MinSilenceSeconds)
	maxSegment := math.Max(maxSegmentFloorSeconds, params.MaxSegmentSeconds)

	return &Segmenter{
		sampleRate:        params.SampleRate,
		minSilenceSamples: int(math.Round(minSilence * float64(params.SampleRate))),
		maxSegmentSamples: int(math.Round(maxSegment * float64(params.SampleRate))),
		detector:          detector,
		buffer:            make([]float32, 0, params.SampleRate),
		now:               time.Now,
	}, nil
}

// SampleRate returns the rate the segmenter was built for
func (s *Segmenter) SampleRate() int {
	return s.sampleRate
}

// Push feeds samples into the segmenter and returns the segments they
// complete. The sequence is lazy: samples are consumed only while it is
// ranged over. It is not restartable; ranging it again after an early
// break resumes with the unconsumed samples.
func (s *Segmenter) Push(samples []float32) iter.Seq[Segment] {
	pos := 0
	return func(yield func(Segment) bool) {
		for pos < len(samples) {
			sample := samples[pos]
			pos++

			if seg, ok := s.consume(sample); ok {
				if !yield(seg) {
					return
				}
			}
		}
	}
}

// consume applies one sample and cuts when a boundary is reached
func (s *Segmenter) consume(sample float32) (Segment, bool) {
	if len(s.buffer) == 0 {
		s.startedAt = s.now()
	}

	if s.detector.Silent(sample) {
		s.silenceRun++
	} else {
		s.silenceRun = 0
	}

	s.buffer = append(s.buffer, sample)
	s.samplesConsumed++

	if len(s.buffer) >= s.maxSegmentSamples ||
		(s.silenceRun >= s.minSilenceSamples && len(s.buffer) > s.sampleRate/2) {
		return s.cut()
	}

	return Segment{}, false
}

// Flush cuts whatever is buffered regardless of length. It emits at most one
// segment and always leaves the segmenter empty.
func (s *Segmenter) Flush() (Segment, bool) {
	seg, ok := s.cut()
	s.detector.Reset()
	return seg, ok
}

// cut trims the trailing silence run from the buffer and emits the rest.
// A buffer that is entirely trailing silence is discarded.
func (s *Segmenter) cut() (Segment, bool) {
	buf := s.buffer
	run := s.silenceRun
	startedAt := s.startedAt

	s.silenceRun = 0
	s.startedAt = time.Time{}

	if len(buf) == 0 {
		return Segment{}, false
	}
	s.buffer = make([]float32, 0, s.sampleRate)

	if run >= len(buf) {
		s.discardedCuts++
		return Segment{}, false
	}
	buf = buf[:len(buf)-run]

	s.seq++
	s.segmentsEmitted++

	return Segment{
		ID:         uuid.NewString(),
		Seq:        s.seq,
		Samples:    buf,
		SampleRate: s.sampleRate,
		StartedAt:  startedAt,
		DurationMs: int64(len(buf)) * 1000 / int64(s.sampleRate),
	}, true
}

// Stats returns current segmenter statistics
func (s *Segmenter) Stats() SegmenterStats {
	return SegmenterStats{
		SegmentsEmitted:  s.segmentsEmitted,
		SamplesConsumed:  s.samplesConsumed,
		DiscardedCuts:    s.discardedCuts,
		BufferedSamples:  len(s.buffer),
		SilenceRun:       s.silenceRun,
		MinSilenceLength: s.minSilenceSamples,
		MaxSegmentLength: s.maxSegmentSamples,
	}
}

// SegmentAll runs a whole decoded buffer through a fresh segmenter and
// flushes the tail.
func SegmentAll(samples []float32, params SegmenterParams) ([]Segment, error) {
	s, err := NewSegmenter(params)
	if err != nil {
		return nil, err
	}

	var segments []Segment
	for seg := range s.Push(samples) {
		segments = append(segments, seg)
	}
	if seg, ok := s.Flush(); ok {
		segments = append(segments, seg)
	}

	return segments, nil
}
