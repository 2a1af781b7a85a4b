// Package events delivers session events to listeners on a best-effort
// basis. Emitters never block the caller and never report delivery errors.
package events
