package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomapp/trialfield/internal/schema"
	"github.com/gomapp/trialfield/internal/store"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Record growth assessments on the 5x5 plot grid",
}

var assessShowCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "Display the growth grid for a trial",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		grid, err := loadGrid(db, args[0])
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Growth grid for %s (P=planted, M=maintained, G=grown):\n\n", args[0])
		fmt.Print("     0  1  2  3  4\n")
		for r := 0; r < schema.GridSize; r++ {
			fmt.Printf("  %d ", r)
			for c := 0; c < schema.GridSize; c++ {
				fmt.Printf(" %s ", grid[r][c].Letter())
			}
			fmt.Println()
		}
	},
}

var assessSetCmd = &cobra.Command{
	Use:   "set <uuid> <row> <col>",
	Short: "Advance one grid cell to its next growth state",
	Long: `Advance one grid cell to its next growth state, or force a state
with --state. Cells cycle planted -> maintained -> grown -> planted.

The edit is queued for the next sync's assessment upload.

Example usage:
  trialfield assess set 4f7c... 2 3
  trialfield assess set 4f7c... 0 0 --state G`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		row, err := parseCell(args[1])
		if err != nil {
			fatal("invalid row %q: must be 0-%d", args[1], schema.GridSize-1)
		}
		col, err := parseCell(args[2])
		if err != nil {
			fatal("invalid column %q: must be 0-%d", args[2], schema.GridSize-1)
		}

		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		grid, err := loadGrid(db, args[0])
		if err != nil {
			fatal("%v", err)
		}

		if cmd.Flags().Changed("state") {
			raw, _ := cmd.Flags().GetString("state")
			state, err := schema.ParseGrowthState(raw)
			if err != nil {
				fatal("invalid state %q: use P, M, or G", raw)
			}
			grid[row][col] = state
		} else {
			grid[row][col] = grid[row][col].Next()
		}

		if err := db.SetGrowthGrid(args[0], schema.EncodeGrid(grid)); err != nil {
			fatal("failed to save assessment: %v", err)
		}

		fmt.Printf("Cell (%d,%d) is now %s\n", row, col, grid[row][col])
	},
}

// loadGrid fetches a trial's grid, starting from all-planted when the
// trial has no assessment yet.
func loadGrid(db *store.DB, uuid string) (*schema.Grid, error) {
	payload, err := db.GetGrowthGrid(uuid)
	if err != nil {
		return nil, fmt.Errorf("failed to load trial: %w", err)
	}

	grid, err := schema.DecodeGrid(payload)
	if err != nil {
		if errors.Is(err, schema.ErrCorruptGrid) {
			return nil, fmt.Errorf("stored grid for %s is corrupt; re-assess the plot to replace it", uuid)
		}
		return nil, err
	}
	if grid == nil {
		grid = schema.NewGrid()
	}
	return grid, nil
}

func parseCell(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= schema.GridSize {
		return 0, fmt.Errorf("out of range")
	}
	return n, nil
}

func init() {
	assessSetCmd.Flags().String("state", "", "Force a state (P, M, or G) instead of cycling")

	assessCmd.AddCommand(assessShowCmd)
	assessCmd.AddCommand(assessSetCmd)
	rootCmd.AddCommand(assessCmd)
}
