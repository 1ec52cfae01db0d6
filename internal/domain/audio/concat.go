package audio

import (
	"bytes"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"kani-tts-server/internal/platform/errors"
)

// ConcatWAV joins rendered WAV segments into one file. All segments must
// share the same sample rate, bit depth and channel count.
func ConcatWAV(segments [][]byte) ([]byte, error) {
	const op = "audio.concat"

	if len(segments) == 0 {
		return nil, errors.New(errors.KindInvalidInput, op, "no segments to join")
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	var (
		merged *goaudio.IntBuffer
		depth  int
	)
	for _, seg := range segments {
		decoder := wav.NewDecoder(bytes.NewReader(seg))
		if !decoder.IsValidFile() {
			return nil, errors.New(errors.KindInvalidInput, op, "segment is not a WAV file")
		}
		buf, err := decoder.FullPCMBuffer()
		if err != nil {
			return nil, errors.Wrap(errors.KindInvalidInput, op, "decode segment", err)
		}
		if merged == nil {
			merged = buf
			depth = int(decoder.BitDepth)
			continue
		}
		if buf.Format.SampleRate != merged.Format.SampleRate ||
			buf.Format.NumChannels != merged.Format.NumChannels {
			return nil, errors.New(errors.KindInvalidInput, op, "segments disagree on audio format")
		}
		merged.Data = append(merged.Data, buf.Data...)
	}

	var out seekBuffer
	encoder := wav.NewEncoder(&out, merged.Format.SampleRate, depth, merged.Format.NumChannels, 1)
	if err := encoder.Write(merged); err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "encode joined audio", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "finalize joined audio", err)
	}
	return out.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, errors.New(errors.KindUnknown, "audio.concat", "bad seek whence")
	}
	if next < 0 {
		return 0, errors.New(errors.KindUnknown, "audio.concat", "seek before start")
	}
	b.pos = int(next)
	return next, nil
}
