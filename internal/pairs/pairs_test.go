package pairs_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/pairwise/internal/pairs"
)

func TestNew(t *testing.T) {
	tests := []struct {
		a, b string
		want pairs.Pair
		ok   bool
	}{
		{"1", "2", pairs.Pair{A: "1", B: "2"}, true},
		{"2", "1", pairs.Pair{A: "1", B: "2"}, true},
		{"10", "9", pairs.Pair{A: "9", B: "10"}, true},
		{"bob", "alice", pairs.Pair{A: "alice", B: "bob"}, true},
		{"7", "7", pairs.Pair{}, false},
		{"1", "01", pairs.Pair{A: "01", B: "1"}, true},
		{"u2", "10", pairs.Pair{A: "10", B: "u2"}, true},
	}

	for _, tt := range tests {
		got, ok := pairs.New(tt.a, tt.b)
		if ok != tt.ok || got != tt.want {
			t.Errorf("New(%q, %q) = %v, %v; want %v, %v", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEnumerateCount(t *testing.T) {
	for k := 0; k <= 12; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			ids := make([]string, 0, k*2)
			for i := range k {
				ids = append(ids, fmt.Sprint(i+1))
			}
			ids = append(ids, ids...)

			set := pairs.Enumerate(ids, nil)
			if want := k * (k - 1) / 2; len(set) != want {
				t.Errorf("len = %d, want %d", len(set), want)
			}
			for p := range set {
				if p.A == p.B {
					t.Errorf("self pair %v", p)
				}
				if canonical, _ := pairs.New(p.B, p.A); canonical != p {
					t.Errorf("pair %v not canonical", p)
				}
			}
		})
	}
}

func TestEnumerateNumericallyEqualIDs(t *testing.T) {
	got := pairs.Enumerate([]string{"01", "1", "2", "1"}, nil).Sorted()
	want := []pairs.Pair{{A: "01", B: "1"}, {A: "01", B: "2"}, {A: "1", B: "2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateMixedIDs(t *testing.T) {
	ids := []string{"2", "10", "1a", "alice"}
	got := pairs.Enumerate(ids, nil).Sorted()
	if want := len(ids) * (len(ids) - 1) / 2; len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
	want := []pairs.Pair{
		{A: "2", B: "10"}, {A: "2", B: "1a"}, {A: "2", B: "alice"},
		{A: "10", B: "1a"}, {A: "10", B: "alice"},
		{A: "1a", B: "alice"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateScenario(t *testing.T) {
	got := pairs.Enumerate([]string{"4", "1", "2"}, nil).Sorted()
	want := []pairs.Pair{{A: "1", B: "2"}, {A: "1", B: "4"}, {A: "2", B: "4"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumeratePairwise(t *testing.T) {
	calls := 0
	onlyWithOne := func(a, b string) bool {
		calls++
		return a == "1" || b == "1"
	}

	got := pairs.Enumerate([]string{"1", "2", "3"}, onlyWithOne).Sorted()
	want := []pairs.Pair{{A: "1", B: "2"}, {A: "1", B: "3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	if calls != 3 {
		t.Errorf("pairwise calls = %d, want 3", calls)
	}
}

func TestEnumerateCross(t *testing.T) {
	got := pairs.EnumerateCross([]string{"1", "3"}, []string{"2", "3"}, nil).Sorted()
	want := []pairs.Pair{{A: "1", B: "2"}, {A: "1", B: "3"}, {A: "2", B: "3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestReadWrite(t *testing.T) {
	input := "2,1\n\n(3, 4)\n1,2\n  10 , 9  \n"

	set, err := pairs.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var buf bytes.Buffer
	if err := pairs.Write(&buf, set); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	want := "1,2\n3,4\n9,10\n"
	if buf.String() != want {
		t.Errorf("Write = %q, want %q", buf.String(), want)
	}

	path := filepath.Join(t.TempDir(), "pred.txt")
	if err := pairs.WriteFile(path, set); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	again, err := pairs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if diff := cmp.Diff(set.Sorted(), again.Sorted()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMalformed(t *testing.T) {
	for _, line := range []string{"1", "1,", "1,2,3", "(1, 2", "5,5"} {
		t.Run(line, func(t *testing.T) {
			_, err := pairs.Read(strings.NewReader(line + "\n"))
			if !errors.Is(err, pairs.ErrMalformed) {
				t.Errorf("Read(%q) err = %v, want ErrMalformed", line, err)
			}
		})
	}

	if _, err := pairs.ReadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ReadFile on a missing file should fail")
	}
}

func TestSetJSON(t *testing.T) {
	var set pairs.Set
	if err := json.Unmarshal([]byte(`[[2, 1], ["3", "4"], [1, 2]]`), &set); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `[["1","2"],["3","4"]]` {
		t.Errorf("Marshal = %s", data)
	}

	empty, err := json.Marshal(pairs.Set{})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(empty) != `[]` {
		t.Errorf("empty set = %s, want []", empty)
	}
}

func TestSetOps(t *testing.T) {
	a := pairs.Set{}
	a.Add("1", "2")
	a.Add("1", "3")
	b := pairs.Set{}
	b.Add("2", "1")
	b.Add("2", "3")

	if got := a.Intersect(b); len(got) != 1 || !got.Contains(pairs.Pair{A: "1", B: "2"}) {
		t.Errorf("Intersect = %v", got.Sorted())
	}
	if got := a.Difference(b); len(got) != 1 || !got.Contains(pairs.Pair{A: "1", B: "3"}) {
		t.Errorf("Difference = %v", got.Sorted())
	}
}
