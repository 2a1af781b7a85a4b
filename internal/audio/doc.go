// Package audio turns sample streams into speech segments and packages them
// for recognition providers. It holds the streaming silence/duration
// segmenter, 16-bit PCM WAV encoding, and decoding of media files into mono
// float samples.
package audio
