// Package server implements the HTTP API. It starts and stops capture
// sessions, submits media jobs, manages conversations, runs manual text
// operations and serves the WebSocket event stream and Prometheus metrics.
package server
