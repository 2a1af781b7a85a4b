// Package vad provides the silence detectors used by the audio segmenter.
// The default detector compares each sample's absolute amplitude with a
// threshold; the RMS detector averages energy over a sliding window of
// recent samples before comparing.
package vad
