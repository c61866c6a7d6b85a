package procutil

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestTailKeepsLastBytes(t *testing.T) {
	tl := NewTail(8)
	tl.WriteLine("first")
	tl.WriteLine("second")
	got := tl.String()
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8 (%q)", len(got), got)
	}
	if !strings.HasSuffix(got, "second\n") {
		t.Fatalf("tail = %q", got)
	}
}

func TestTailUnbounded(t *testing.T) {
	tl := NewTail(0)
	tl.WriteLine("a")
	tl.WriteLine("b")
	if got := tl.String(); got != "a\nb\n" {
		t.Fatalf("tail = %q", got)
	}
}

func TestScanLines(t *testing.T) {
	var lines []string
	err := ScanLines(strings.NewReader("one\ntwo\n\nthree"), func(s string) { lines = append(lines, s) })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"one", "two", "", "three"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q", lines)
	}
}

func TestScanLinesCarriageReturns(t *testing.T) {
	var lines []string
	err := ScanLines(strings.NewReader("a\r\nb\rc\r\rd\n"), func(s string) { lines = append(lines, s) })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"a", "b", "c", "", "d"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q", lines)
	}
}

func TestScanLinesProgressBarIsNotOneLine(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40000; i++ {
		fmt.Fprintf(&sb, "\r  step %d/40000 loss=0.1234", i)
	}
	sb.WriteString("\ndone\n")

	var n int
	var last string
	if err := ScanLines(strings.NewReader(sb.String()), func(s string) { n++; last = s }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n < 40000 || last != "done" {
		t.Fatalf("got %d lines, last %q", n, last)
	}
}

func TestScanLinesChunksLongLines(t *testing.T) {
	long := strings.Repeat("x", 3*MaxLine+10)
	var sizes []int
	err := ScanLines(strings.NewReader(long+"\nend"), func(s string) { sizes = append(sizes, len(s)) })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []int{MaxLine, MaxLine, MaxLine, 10, 3}
	if fmt.Sprint(sizes) != fmt.Sprint(want) {
		t.Fatalf("sizes = %v, want %v", sizes, want)
	}
}

type failAfter struct {
	fail bool
	rest int
}

func (f *failAfter) Read(p []byte) (int, error) {
	if !f.fail {
		f.fail = true
		return 0, errors.New("read error")
	}
	if f.rest == 0 {
		return 0, io.EOF
	}
	n := min(len(p), f.rest)
	f.rest -= n
	return n, nil
}

func TestScanLinesDrainsAfterError(t *testing.T) {
	r := &failAfter{rest: 1 << 20}
	if err := ScanLines(r, func(string) {}); err == nil {
		t.Fatalf("expected read error")
	}
	if r.rest != 0 {
		t.Fatalf("reader not drained: %d bytes left", r.rest)
	}
}
