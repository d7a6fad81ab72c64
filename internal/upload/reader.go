package upload

import "io"

// countingReader counts the bytes the backend consumed so a retry knows
// whether the body has to be rewound first.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// rewind prepares the body to be read again from the start.
func (c *countingReader) rewind() error {
	if c.n == 0 {
		return nil
	}
	seeker, ok := c.r.(io.Seeker)
	if !ok {
		return errNotRewindable
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return err
	}
	c.n = 0
	return nil
}
