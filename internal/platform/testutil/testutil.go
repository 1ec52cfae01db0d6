// Package testutil holds fixtures shared by tests: synthetic audio and a
// quiet logger.
package testutil

import (
	"io"
	"math"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"kani-tts-server/internal/platform/logging"
)

// Logger returns a logger that only surfaces errors.
func Logger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("create test logger: %v", err)
	}
	return logger
}

// WAV renders a mono 16-bit sine tone of the given duration.
func WAV(t *testing.T, seconds float64, sampleRate int) []byte {
	t.Helper()

	samples := int(seconds * float64(sampleRate))
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, samples),
	}
	for i := range buf.Data {
		buf.Data[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	var out memWriteSeeker
	enc := wav.NewEncoder(&out, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode test wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close test wav: %v", err)
	}
	return out.data
}

type memWriteSeeker struct {
	data []byte
	pos  int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.data) {
		grown := make([]byte, need)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = int(offset)
	case io.SeekCurrent:
		m.pos += int(offset)
	case io.SeekEnd:
		m.pos = len(m.data) + int(offset)
	}
	return int64(m.pos), nil
}
