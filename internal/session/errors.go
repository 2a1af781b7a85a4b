package session

import "errors"

// Session-level failures
var (
	ErrNoAudioInputDevice      = errors.New("no audio input device available")
	ErrRecordingAlreadyRunning = errors.New("recording already running")
	ErrRecordingNotRunning     = errors.New("recording not running")
	ErrEmptyMedia              = errors.New("media file contains no audio")
)
