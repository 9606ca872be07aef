package wire

import (
	"io"

	"github.com/bford/cofo/cbe"
)

// WriteFrame writes payload to w as a single cbe length-prefixed
// record, the same compact binary encoding on-disk state records in
// this family use for a length-prefixed byte field.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(cbe.Encode(nil, payload))
	return err
}

// FrameReader decodes a stream of cbe length-prefixed records read
// from r. A single underlying Read can return bytes belonging to
// several already-written records at once, so FrameReader keeps
// whatever cbe.Decode left unconsumed (its rest return) across calls
// instead of discarding it: a socket carrying back-to-back envelopes
// must not lose any but the first.
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader wraps r for framed reads via ReadFrame.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame returns the next complete record, reading more from the
// underlying reader only once the buffered bytes don't yet hold one.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	chunk := make([]byte, 4096)
	for {
		if val, rest, err := cbe.Decode(f.buf); err == nil {
			f.buf = rest
			return val, nil
		}
		n, err := f.r.Read(chunk)
		if n > 0 {
			f.buf = append(f.buf, chunk[:n]...)
		}
		if err != nil {
			return nil, err
		}
	}
}
