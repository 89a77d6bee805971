package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	CanonicalSampleRate = 16000
	ChallengeLeadTrim   = 1500 * time.Millisecond
)

var ErrAudioTooShort = errors.New("audio shorter than the trimmed lead-in and lead-out")

// Preparer turns fetched challenge audio into the waveform sent for recognition.
type Preparer interface {
	Prepare(ctx context.Context, raw []byte) ([]byte, error)
}

// WavPreparer decodes MP3 or WAV input, downmixes to mono at SampleRate,
// trims Trim from both ends and encodes 16-bit PCM WAV.
type WavPreparer struct {
	SampleRate int
	Trim       time.Duration
}

func NewWavPreparer() *WavPreparer {
	return &WavPreparer{SampleRate: CanonicalSampleRate, Trim: ChallengeLeadTrim}
}

func (p *WavPreparer) Prepare(ctx context.Context, raw []byte) ([]byte, error) {
	samples, rate, err := decodeMono(raw)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples = resample(samples, rate, p.SampleRate)

	cut := int(p.Trim.Seconds() * float64(p.SampleRate))
	if len(samples) <= 2*cut {
		return nil, ErrAudioTooShort
	}
	samples = samples[cut : len(samples)-cut]

	return encodeWav(samples, p.SampleRate)
}

// decodeMono returns samples in int16 range.
func decodeMono(raw []byte) ([]float64, int, error) {
	if bytes.HasPrefix(raw, []byte("RIFF")) {
		return decodeWav(raw)
	}
	return decodeMP3(raw)
}

func decodeWav(raw []byte) ([]float64, int, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	if !d.IsValidFile() {
		return nil, 0, errors.New("invalid wav data")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	shift := buf.SourceBitDepth - 16
	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := buf.Data[i*channels+c]
			// 8-bit PCM is unsigned with silence at 128
			if buf.SourceBitDepth == 8 {
				v -= 128
			}
			switch {
			case shift > 0:
				v >>= shift
			case shift < 0:
				v <<= -shift
			}
			sum += float64(v)
		}
		out[i] = sum / float64(channels)
	}
	return out, buf.Format.SampleRate, nil
}

func decodeMP3(raw []byte) ([]float64, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	// go-mp3 always yields 16-bit little endian stereo.
	frames := len(pcm) / 4
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(pcm[4*i]) | uint16(pcm[4*i+1])<<8)
		r := int16(uint16(pcm[4*i+2]) | uint16(pcm[4*i+3])<<8)
		out[i] = (float64(l) + float64(r)) / 2
	}
	return out, d.SampleRate(), nil
}

// resample uses linear interpolation.
func resample(in []float64, from, to int) []float64 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float64, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		a := in[j]
		b := a
		if j+1 < len(in) {
			b = in[j+1]
		}
		out[i] = a + (b-a)*frac
	}
	return out
}

func encodeWav(samples []float64, rate int) ([]byte, error) {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(s))))
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return out.Bytes(), nil
}

// memFile is an in-memory io.WriteSeeker for the wav encoder, which patches
// the RIFF header sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: bad whence")
	}
	if next < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte { return m.buf }
