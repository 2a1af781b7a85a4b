// Package session owns the single capture slot. It starts and stops
// recording sessions, hands completed segments from the realtime capture
// callback to asynchronous pipelines, and runs each segment through
// recognition, persistence, optional translation and event emission.
//
// File transcription jobs and manual text operations reuse the same
// pipeline and collaborators.
package session
