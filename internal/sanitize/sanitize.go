// Package sanitize repairs RIFF container headers before media is stored.
package sanitize

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	headerLen    = 12
	formatOffset = 8
)

var riffMagic = []byte("RIFF")

// Result is the outcome of a repair attempt. Data is the input slice itself
// when Changed is false.
type Result struct {
	Data    []byte
	Changed bool
	Notes   []string
}

type Sanitizer struct {
	format []byte
}

type Option func(*Sanitizer)

// WithFormat overrides the expected 4-byte format tag (default "WEBP").
func WithFormat(tag string) Option {
	return func(s *Sanitizer) {
		if len(tag) == 4 {
			s.format = []byte(tag)
		}
	}
}

func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{format: []byte("WEBP")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var webp = New()

// Sanitize repairs a WEBP RIFF buffer. See Sanitizer.Sanitize.
func Sanitize(buf []byte) Result {
	return webp.Sanitize(buf)
}

// Sanitize trims garbage before the RIFF header, realigns to the RIFF start
// that precedes a misplaced format tag and patches the declared chunk size.
// It never fails: anything it cannot repair comes back untouched.
func (s *Sanitizer) Sanitize(buf []byte) Result {
	unchanged := Result{Data: buf}
	if len(buf) < headerLen {
		return unchanged
	}

	riff := bytes.Index(buf, riffMagic)
	if riff < 0 {
		return unchanged
	}

	var notes []string
	start := riff
	if start > 0 {
		notes = append(notes, fmt.Sprintf("trimmed %d leading byte(s) before RIFF header", start))
	}

	tag := indexFrom(buf, s.format, riff)
	if tag < 0 {
		return unchanged
	}
	if tag != start+formatOffset {
		candidate := tag - formatOffset
		if candidate >= 0 && bytes.Equal(buf[candidate:candidate+4], riffMagic) && candidate != start {
			start = candidate
			notes = append(notes, fmt.Sprintf("realigned %s signature to RIFF header at offset %d", s.format, start))
		}
	}

	trimmed := buf[start:]
	if len(trimmed) < headerLen || !bytes.Equal(trimmed[formatOffset:formatOffset+4], s.format) {
		return unchanged
	}

	declared := binary.LittleEndian.Uint32(trimmed[4:8])
	actual := uint32(len(trimmed) - formatOffset)
	if declared == actual && start == 0 {
		return unchanged
	}

	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	if declared != actual {
		binary.LittleEndian.PutUint32(out[4:8], actual)
		notes = append(notes, fmt.Sprintf("fixed RIFF chunk size from %d to %d", declared, actual))
	}
	return Result{Data: out, Changed: true, Notes: notes}
}

func indexFrom(buf, sep []byte, from int) int {
	i := bytes.Index(buf[from:], sep)
	if i < 0 {
		return -1
	}
	return from + i
}
