package ncm

import (
	"encoding/binary"
	"fmt"
	"io"
)

// reader is a forward-only cursor over the container bytes. It only
// checks that enough bytes remain, never their content.
type reader struct {
	src io.Reader
}

func newReader(src io.Reader) *reader {
	return &reader{src: src}
}

func (r *reader) skip(n int64) error {
	if n == 0 {
		return nil
	}

	if _, err := io.CopyN(io.Discard, r.src, n); err != nil {
		return fmt.Errorf("%w: skipping %d bytes: %v", ErrTruncated, n, err)
	}
	return nil
}

func (r *reader) readExact(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes: %v", ErrTruncated, n, err)
	}
	return buf, nil
}

func (r *reader) readUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.src, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: reading length field: %v", ErrTruncated, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
