// Package audio inspects uploaded clone samples: container sniffing and
// duration extraction for the registry's input validation.
package audio

import (
	"bytes"
	"time"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"kani-tts-server/internal/platform/errors"
)

// Info describes a probed audio sample.
type Info struct {
	Container string // "wav" | "mp3"
	Duration  time.Duration
}

// Probe sniffs the container and computes the sample duration. Unsupported
// or undecodable input yields an invalid_input error.
func Probe(data []byte) (Info, error) {
	const op = "audio.probe"

	if len(data) < 12 {
		return Info{}, errors.New(errors.KindInvalidInput, op, "audio sample too small to identify")
	}

	switch {
	case isWAV(data):
		return probeWAV(data)
	case isMP3(data):
		return probeMP3(data)
	default:
		return Info{}, errors.New(errors.KindInvalidInput, op,
			"unsupported audio container, expected WAV or MP3")
	}
}

func isWAV(data []byte) bool {
	return bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

func isMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	// Bare MPEG frame sync.
	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func probeWAV(data []byte) (Info, error) {
	const op = "audio.probe"

	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return Info{}, errors.New(errors.KindInvalidInput, op, "malformed WAV file")
	}
	duration, err := decoder.Duration()
	if err != nil {
		return Info{}, errors.Wrap(errors.KindInvalidInput, op, "compute WAV duration", err)
	}
	return Info{Container: "wav", Duration: duration}, nil
}

func probeMP3(data []byte) (Info, error) {
	const op = "audio.probe"

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Info{}, errors.Wrap(errors.KindInvalidInput, op, "malformed MP3 file", err)
	}
	// Length reports the decoded stream size: 16-bit stereo, 4 bytes per
	// sample frame.
	samples := decoder.Length() / 4
	if decoder.SampleRate() <= 0 {
		return Info{}, errors.New(errors.KindInvalidInput, op, "MP3 reports no sample rate")
	}
	duration := time.Duration(samples) * time.Second / time.Duration(decoder.SampleRate())
	return Info{Container: "mp3", Duration: duration}, nil
}
