package schema

import (
	"errors"
	"testing"
)

// TestGrowthState_Cycle tests that the state cycle has period 3 and the
// fixed order Planted -> Maintained -> Grown -> Planted.
func TestGrowthState_Cycle(t *testing.T) {
	if Planted.Next() != Maintained {
		t.Errorf("Planted.Next() = %v, want Maintained", Planted.Next())
	}
	if Maintained.Next() != Grown {
		t.Errorf("Maintained.Next() = %v, want Grown", Maintained.Next())
	}
	if Grown.Next() != Planted {
		t.Errorf("Grown.Next() = %v, want Planted", Grown.Next())
	}

	for _, s := range []GrowthState{Planted, Maintained, Grown} {
		if got := s.Next().Next().Next(); got != s {
			t.Errorf("Next^3(%v) = %v, want %v", s, got, s)
		}
	}
}

// TestGrowthState_CycleAllCells tests the cycle for every cell position.
func TestGrowthState_CycleAllCells(t *testing.T) {
	g := NewGrid()
	for r := 0; r < GridSize; r++ {
		for c := 0; c < GridSize; c++ {
			if g[r][c] != Planted {
				t.Fatalf("new grid cell (%d,%d) = %v, want Planted", r, c, g[r][c])
			}
			g[r][c] = g[r][c].Next()
			if g[r][c] != Planted.Next() {
				t.Fatalf("cell (%d,%d) after one tap = %v, want Maintained", r, c, g[r][c])
			}
		}
	}
}

func TestParseGrowthState(t *testing.T) {
	tests := []struct {
		letter  string
		want    GrowthState
		wantErr bool
	}{
		{"P", Planted, false},
		{"M", Maintained, false},
		{"G", Grown, false},
		{"X", 0, true},
		{"", 0, true},
		{"p", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseGrowthState(tt.letter)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseGrowthState(%q) expected error, got nil", tt.letter)
			}
			if err != nil && !errors.Is(err, ErrCorruptGrid) {
				t.Errorf("ParseGrowthState(%q) error = %v, want ErrCorruptGrid", tt.letter, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGrowthState(%q) failed: %v", tt.letter, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGrowthState(%q) = %v, want %v", tt.letter, got, tt.want)
		}
	}
}

// TestEncodeDecodeGrid tests that a mutated grid survives the payload
// round trip exactly.
func TestEncodeDecodeGrid(t *testing.T) {
	g := NewGrid()
	g[0][0] = Grown
	g[2][3] = Maintained
	g[4][4] = Grown

	payload := EncodeGrid(g)

	decoded, err := DecodeGrid(payload)
	if err != nil {
		t.Fatalf("DecodeGrid failed: %v", err)
	}
	if decoded == nil {
		t.Fatal("DecodeGrid returned nil grid for valid payload")
	}
	if *decoded != *g {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", *decoded, *g)
	}
}

// TestDecodeGrid_Absent tests that an empty payload means "no assessment
// yet", not an error.
func TestDecodeGrid_Absent(t *testing.T) {
	g, err := DecodeGrid("")
	if err != nil {
		t.Errorf("DecodeGrid(\"\") error = %v, want nil", err)
	}
	if g != nil {
		t.Errorf("DecodeGrid(\"\") = %v, want nil", g)
	}
}

// TestDecodeGrid_Corrupt tests that malformed payloads are reported as
// ErrCorruptGrid rather than swallowed.
func TestDecodeGrid_Corrupt(t *testing.T) {
	payloads := []string{
		"not json",
		`{"grid": "nope"}`,
		`{"grid": [["P"]]}`,                                     // wrong row count
		`{"grid": [["P","M"],["G"],["P"],["M"],["G"]]}`,         // ragged rows
		`{"grid": [["P","M","G","P","Z"],["P","P","P","P","P"],["P","P","P","P","P"],["P","P","P","P","P"],["P","P","P","P","P"]]}`, // unknown letter
	}

	for _, payload := range payloads {
		g, err := DecodeGrid(payload)
		if !errors.Is(err, ErrCorruptGrid) {
			t.Errorf("DecodeGrid(%q) error = %v, want ErrCorruptGrid", payload, err)
		}
		if g != nil {
			t.Errorf("DecodeGrid(%q) returned non-nil grid with error", payload)
		}
	}
}

// TestEncodeGrid_Default tests the payload shape of a default grid.
func TestEncodeGrid_Default(t *testing.T) {
	payload := EncodeGrid(NewGrid())
	want := `{"grid":[["P","P","P","P","P"],["P","P","P","P","P"],["P","P","P","P","P"],["P","P","P","P","P"],["P","P","P","P","P"]]}`
	if payload != want {
		t.Errorf("EncodeGrid(NewGrid()) = %s, want %s", payload, want)
	}
}
