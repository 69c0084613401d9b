package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    command
		wantErr string
	}{
		{name: "up", args: []string{"up"}, want: command{name: "up"}},
		{name: "down", args: []string{"down"}, want: command{name: "down"}},
		{name: "version", args: []string{"version"}, want: command{name: "version"}},
		{name: "steps back", args: []string{"steps", "-1"}, want: command{name: "steps", n: -1}},
		{name: "force", args: []string{"force", "2"}, want: command{name: "force", n: 2}},
		{name: "empty", args: nil, wantErr: "usage"},
		{name: "unknown", args: []string{"sideways"}, wantErr: `unknown command "sideways"`},
		{name: "extra arg", args: []string{"up", "1"}, wantErr: "usage"},
		{name: "steps missing count", args: []string{"steps"}, wantErr: "usage"},
		{name: "steps zero", args: []string{"steps", "0"}, wantErr: "non-zero"},
		{name: "force not a number", args: []string{"force", "x"}, wantErr: `invalid count "x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error: got %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUnknownCommandWrapsUsage(t *testing.T) {
	_, err := parseCommand([]string{"sideways"})
	if !errors.Is(err, errUsage) {
		t.Errorf("expected errUsage, got %v", err)
	}
}

func TestResolveDSN(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(envDSN, "postgres://env")
		got, err := resolveDSN("postgres://flag", missing)
		if err != nil || got != "postgres://flag" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv(envDSN, "postgres://env")
		got, err := resolveDSN("", missing)
		if err != nil || got != "postgres://env" {
			t.Errorf("got %q, %v", got, err)
		}
	})

	t.Run("config", func(t *testing.T) {
		t.Setenv(envDSN, "")
		t.Setenv("PAIRWISE_DB_HOST", "db.internal")
		got, err := resolveDSN("", missing)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "db.internal:5432") {
			t.Errorf("dsn %q missing host", got)
		}
	})
}
