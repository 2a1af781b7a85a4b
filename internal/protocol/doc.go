// Package protocol defines the event payloads streamed to UI listeners and
// the envelope that carries them over the WebSocket event stream.
// Payload field names are camelCase to match what existing UIs consume.
package protocol
