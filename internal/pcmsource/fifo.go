//go:build unix

// Package pcmsource opens the PCM FIFO non-blockingly and yields
// fixed-size windows of mono samples per spec section 4.B.
package pcmsource

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// WindowFrames is the fixed window size in stereo frames (spec section 3).
const WindowFrames = 1024

// bytesPerFrame is 2 channels * 2 bytes/sample (s16le stereo).
const bytesPerFrame = 4

// WindowBytes is the number of raw bytes one window spans.
const WindowBytes = WindowFrames * bytesPerFrame

// Status reports the outcome of a ReadWindow call.
type Status int

const (
	// StatusWindow means Samples holds exactly WindowFrames mono samples.
	StatusWindow Status = iota
	// StatusSilent means fewer bytes than one window were available.
	StatusSilent
	// StatusClosed means the source is unusable; the caller should stop.
	StatusClosed
)

// Source is a non-blocking reader over a named PCM FIFO.
type Source struct {
	fd   int
	path string
}

// Open opens path in non-blocking mode. Failures are wrapped in an
// *os.PathError, so os.IsNotExist still lets callers distinguish
// "missing" (pattern-only fallback, spec section 4.B) from other open
// errors.
func Open(path string) (*Source, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &Source{fd: fd, path: path}, nil
}

// Close releases the underlying file descriptor.
func (s *Source) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// ReadWindow attempts a single non-blocking read of exactly WindowBytes.
// A short read (including EAGAIN, and a zero-byte read while no writer
// has the FIFO open) is discarded, never padded, and reported as
// StatusSilent — this call never buffers across
// invocations.
func (s *Source) ReadWindow() (Status, []float32) {
	if s.fd < 0 {
		return StatusClosed, nil
	}

	buf := make([]byte, WindowBytes)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return StatusSilent, nil
		}
		// Transient read error after a successful open: treat as silent,
		// do not close the source (spec section 4.B failure semantics).
		return StatusSilent, nil
	}
	if n < WindowBytes {
		// Includes n == 0: no writer currently has the FIFO open. That is
		// a silent stream, not an unusable source.
		return StatusSilent, nil
	}

	return StatusWindow, toMono(buf)
}

// toMono reinterprets buf as interleaved little-endian s16 stereo
// samples, averages left/right per frame, and normalizes to [-1, 1].
func toMono(buf []byte) []float32 {
	out := make([]float32, WindowFrames)
	for i := 0; i < WindowFrames; i++ {
		off := i * bytesPerFrame
		left := int16(uint16(buf[off]) | uint16(buf[off+1])<<8)
		right := int16(uint16(buf[off+2]) | uint16(buf[off+3])<<8)
		mono := (float32(left) + float32(right)) / 2
		out[i] = mono / 32768
	}
	return out
}
