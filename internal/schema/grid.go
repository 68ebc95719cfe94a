package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GridSize is the fixed edge length of a growth assessment grid.
const GridSize = 5

// ErrCorruptGrid is returned by DecodeGrid when a growth grid payload is
// present but cannot be decoded into a 5x5 grid of known states.
//
// This is deliberately distinct from the (nil, nil) return for an absent
// payload: "no assessment yet" and "corrupt payload" are different
// conditions and callers handle them differently.
var ErrCorruptGrid = errors.New("corrupt growth grid payload")

// GrowthState is the growth stage of a single grid cell.
//
// States form a fixed cycle Planted -> Maintained -> Grown -> Planted,
// advanced one step per user interaction via Next.
type GrowthState int

const (
	Planted GrowthState = iota
	Maintained
	Grown
)

// growthStateCount is the size of the state cycle.
const growthStateCount = 3

// stateLetters maps states to their single-letter wire encoding.
var stateLetters = [growthStateCount]string{"P", "M", "G"}

// Letter returns the single-letter wire encoding of the state.
func (s GrowthState) Letter() string {
	if s < 0 || s >= growthStateCount {
		return "?"
	}
	return stateLetters[s]
}

// String returns a human-readable name for the state.
func (s GrowthState) String() string {
	switch s {
	case Planted:
		return "planted"
	case Maintained:
		return "maintained"
	case Grown:
		return "grown"
	default:
		return fmt.Sprintf("GrowthState(%d)", int(s))
	}
}

// Next returns the state one step further along the fixed cycle,
// wrapping from Grown back to Planted.
func (s GrowthState) Next() GrowthState {
	return (s + 1) % growthStateCount
}

// ParseGrowthState converts a single-letter wire encoding back to a state.
func ParseGrowthState(letter string) (GrowthState, error) {
	for i, l := range stateLetters {
		if l == letter {
			return GrowthState(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown growth state %q", ErrCorruptGrid, letter)
}

// Grid is a fixed 5x5 matrix of per-cell growth states.
// The zero value is a grid of all Planted cells.
type Grid [GridSize][GridSize]GrowthState

// NewGrid returns a grid with every cell in the default Planted state.
// This is the grid created on first assessment open.
func NewGrid() *Grid {
	return &Grid{}
}

// gridPayload is the JSON shape of the serialized grid: {"grid": [[...]]}.
type gridPayload struct {
	Grid [][]string `json:"grid"`
}

// EncodeGrid serializes a grid to its transportable payload form.
//
// The encoding is purely structural; any grid value encodes successfully.
func EncodeGrid(g *Grid) string {
	p := gridPayload{Grid: make([][]string, GridSize)}
	for r := 0; r < GridSize; r++ {
		p.Grid[r] = make([]string, GridSize)
		for c := 0; c < GridSize; c++ {
			p.Grid[r][c] = g[r][c].Letter()
		}
	}
	data, _ := json.Marshal(p)
	return string(data)
}

// DecodeGrid parses a serialized growth grid payload.
//
// An empty payload returns (nil, nil): the trial has no assessment yet.
// A payload that is present but malformed (bad JSON, wrong dimensions,
// unknown state letter) returns ErrCorruptGrid.
func DecodeGrid(payload string) (*Grid, error) {
	if payload == "" {
		return nil, nil
	}

	var p gridPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptGrid, err)
	}

	if len(p.Grid) != GridSize {
		return nil, fmt.Errorf("%w: expected %d rows, got %d", ErrCorruptGrid, GridSize, len(p.Grid))
	}

	var g Grid
	for r, row := range p.Grid {
		if len(row) != GridSize {
			return nil, fmt.Errorf("%w: row %d has %d cells, expected %d", ErrCorruptGrid, r, len(row), GridSize)
		}
		for c, letter := range row {
			state, err := ParseGrowthState(letter)
			if err != nil {
				return nil, err
			}
			g[r][c] = state
		}
	}

	return &g, nil
}
