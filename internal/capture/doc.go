// Package capture opens the default audio input device through PortAudio
// and delivers mono float samples to a callback on the device thread.
// portaudio.Initialize must be called before a Device is used.
package capture
