package pairs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMalformed indicates a pair line or value that could not be parsed.
var ErrMalformed = errors.New("malformed pair")

// Write emits one `a,b` line per pair in canonical order with no header.
func Write(w io.Writer, s Set) error {
	bw := bufio.NewWriter(w)
	for _, p := range s.Sorted() {
		if _, err := fmt.Fprintln(bw, p.String()); err != nil {
			return fmt.Errorf("write pair: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile writes s to path in the prediction format.
func WriteFile(path string, s Set) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses newline-delimited pairs. Lines may be written as `a,b` or
// `(a, b)`; blank lines are ignored and duplicates collapse.
func Read(r io.Reader) (Set, error) {
	s := make(Set)
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		p, ok, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ok {
			s[p] = struct{}{}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}
	return s, nil
}

// ReadFile parses the pair file at path.
func ReadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// ParseLine parses a single pair line. It reports false for blank lines.
func ParseLine(line string) (Pair, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Pair{}, false, nil
	}

	if strings.HasPrefix(line, "(") {
		if !strings.HasSuffix(line, ")") {
			return Pair{}, false, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		line = line[1 : len(line)-1]
	}

	a, b, found := strings.Cut(line, ",")
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !found || a == "" || b == "" || strings.Contains(b, ",") {
		return Pair{}, false, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	p, ok := New(a, b)
	if !ok {
		return Pair{}, false, fmt.Errorf("%w: self pair %q", ErrMalformed, line)
	}
	return p, true, nil
}
