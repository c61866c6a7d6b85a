// Package procutil holds small helpers for supervising child processes.
package procutil

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// MaxLine is the longest line ScanLines delivers in one piece; longer runs
// without a line break are split into MaxLine chunks.
const MaxLine = 64 * 1024

// Tail keeps the last Max bytes of the lines written to it.
type Tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

// NewTail returns a Tail holding at most max bytes.
func NewTail(max int) *Tail { return &Tail{max: max} }

// WriteLine appends line and a newline, discarding the oldest bytes past max.
func (t *Tail) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if t.max > 0 && len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
}

func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// ScanLines calls fn for each line read from r until EOF. Lines end at
// "\n", "\r\n" or a bare "\r", so progress bars that redraw in place are
// delivered update by update. r is always read to EOF, even after an error,
// so a child process writing to it never blocks on a full pipe.
func ScanLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLine)
	sc.Split(splitLines)
	for sc.Scan() {
		fn(sc.Text())
	}
	err := sc.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' {
			switch {
			case i+1 < len(data):
				if data[i+1] == '\n' {
					advance++
				}
			case !atEOF && len(data) < MaxLine:
				// a "\n" may follow in the next read
				return 0, nil, nil
			}
		}
		return advance, data[:i], nil
	}
	if len(data) >= MaxLine {
		return MaxLine, data[:MaxLine], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
