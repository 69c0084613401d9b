package records

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Decomposition modes accepted by New.
const (
	ModeAuto    = "auto"
	ModeRecords = "records"
	ModeWindows = "windows"
)

// Decomposer splits raw input into classification units. Implementations
// must be deterministic: the same input always yields the same units with
// the same ids.
type Decomposer interface {
	Split(raw []byte) ([]Unit, error)
}

// New returns the Decomposer for mode. maxUnitSize bounds window units and
// is ignored by the record decomposer.
func New(mode string, maxUnitSize int) (Decomposer, error) {
	switch mode {
	case ModeRecords:
		return Lines{}, nil
	case ModeWindows:
		if maxUnitSize <= 0 {
			return nil, ErrInvalidUnitSize
		}
		return Windows{MaxSize: maxUnitSize}, nil
	case "", ModeAuto:
		if maxUnitSize <= 0 {
			return nil, ErrInvalidUnitSize
		}
		return Auto{MaxSize: maxUnitSize}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

var recordPattern = regexp.MustCompile(
	`^Date:\s*(.+?)\s*\|\|\s*User:\s*(\S+?)\s*\|\|\s*Instance:\s*(.*?)\s*$`,
)

var dateLayouts = []string{
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseDate parses the date formats found in OOLONG record lines.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Lines produces one unit per `Date: <d> || User: <u> || Instance: <t>`
// line. Lines that are not records (headers, blank lines) are skipped.
type Lines struct{}

func (Lines) Split(raw []byte) ([]Unit, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var units []Unit
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		m := recordPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		ts, err := ParseDate(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, lineNo, err)
		}
		if m[3] == "" {
			return nil, fmt.Errorf("%w: line %d: empty instance", ErrMalformedRecord, lineNo)
		}

		units = append(units, Unit{
			ID:        recordID(len(units)),
			Entity:    m[2],
			Timestamp: ts,
			Text:      m[3],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}

	return units, nil
}

// Windows produces non-overlapping units of at most MaxSize bytes, cut on
// UTF-8 rune boundaries. Window units carry no entity.
type Windows struct {
	MaxSize int
}

func (w Windows) Split(raw []byte) ([]Unit, error) {
	if w.MaxSize <= 0 {
		return nil, ErrInvalidUnitSize
	}

	var units []Unit
	for start := 0; start < len(raw); {
		end := min(start+w.MaxSize, len(raw))
		for end < len(raw) && end > start && !utf8.RuneStart(raw[end]) {
			end--
		}
		if end == start {
			_, size := utf8.DecodeRune(raw[start:])
			end = start + size
		}

		units = append(units, Unit{
			ID:   windowID(len(units)),
			Text: string(raw[start:end]),
		})
		start = end
	}

	return units, nil
}

// Auto uses Lines when the input contains at least one record line and
// falls back to Windows otherwise.
type Auto struct {
	MaxSize int
}

func (a Auto) Split(raw []byte) ([]Unit, error) {
	units, err := Lines{}.Split(raw)
	if err != nil {
		return nil, err
	}
	if len(units) > 0 {
		return units, nil
	}
	return Windows{MaxSize: a.MaxSize}.Split(raw)
}
