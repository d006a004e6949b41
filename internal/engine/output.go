package engine

import (
	"bufio"
	"io"
	"math"
	"strconv"
)

// Header is the first line of the series
const Header = "Local Remote"

// TextWriter writes the latency series one flushed line per reading
type TextWriter struct {
	w   *bufio.Writer
	buf []byte
}

// NewTextWriter wraps w
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w), buf: make([]byte, 0, 64)}
}

// WriteHeader emits the column header
func (t *TextWriter) WriteHeader() error {
	if _, err := t.w.WriteString(Header + "\n"); err != nil {
		return err
	}
	return t.w.Flush()
}

// WriteReading emits "<local> <remote>\n" and flushes
func (t *TextWriter) WriteReading(local, remote float64) error {
	b := AppendLatency(t.buf[:0], local)
	b = append(b, ' ')
	b = AppendLatency(b, remote)
	b = append(b, '\n')
	t.buf = b
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.Flush()
}

// AppendLatency formats v with six decimals; non-finite values become nan,
// inf or -inf so plotting tools can read them.
func AppendLatency(b []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(b, "nan"...)
	case math.IsInf(v, 1):
		return append(b, "inf"...)
	case math.IsInf(v, -1):
		return append(b, "-inf"...)
	}
	return strconv.AppendFloat(b, v, 'f', 6, 64)
}
