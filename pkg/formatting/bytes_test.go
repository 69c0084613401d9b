package formatting_test

import (
	"testing"

	"github.com/JaimeStill/pairwise/pkg/formatting"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"bare bytes", "1024", 1024, false},
		{"bytes unit", "512B", 512, false},
		{"kilobytes", "4KB", 4 * 1024, false},
		{"short unit", "4K", 4 * 1024, false},
		{"binary unit", "4KiB", 4 * 1024, false},
		{"megabytes", "50MB", 50 * 1024 * 1024, false},
		{"fractional", "1.5MB", 1536 * 1024, false},
		{"lowercase", "10mb", 10 * 1024 * 1024, false},
		{"with space", "100 KB", 100 * 1024, false},
		{"surrounding whitespace", "  2GB ", 2 * 1024 * 1024 * 1024, false},
		{"zero", "0", 0, false},
		{"empty", "", 0, true},
		{"unknown unit", "50XX", 0, true},
		{"no number", "MB", 0, true},
		{"negative", "-5MB", 0, true},
		{"two dots", "1.2.3KB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name      string
		n         int64
		precision int
		want      string
	}{
		{"zero", 0, 2, "0 B"},
		{"bytes", 500, 2, "500 B"},
		{"one KB", 1024, 0, "1 KB"},
		{"just under MB", 1024*1024 - 1, 0, "1024 KB"},
		{"fractional MB", 1536 * 1024, 1, "1.5 MB"},
		{"one GB", 1 << 30, 0, "1 GB"},
		{"negative precision", 4096, -3, "4 KB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatting.FormatBytes(tt.n, tt.precision); got != tt.want {
				t.Errorf("FormatBytes(%d, %d) = %q, want %q", tt.n, tt.precision, got, tt.want)
			}
		})
	}
}
