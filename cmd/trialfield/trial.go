package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gomapp/trialfield/internal/schema"
	"github.com/gomapp/trialfield/internal/store"
)

var trialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Manage trial plot records",
}

var trialAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new trial plot",
	Long: `Record a new trial plot owned by the active user.

The record stays local until the next sync uploads it.

Example usage:
  trialfield trial add --species "Douglas-fir" --seedlings 50 --lat 49.0 --lon -123.0
  trialfield trial add --species "Western redcedar" --seedlot SL-404 --spacing 2x2 --lat 50.1 --lon -122.8`,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		user, err := db.ActiveUser()
		if err != nil {
			fatal("no active user; create one with: trialfield user create")
		}

		seedlingsRaw, _ := cmd.Flags().GetString("seedlings")
		seedlings, err := schema.ParseSeedlings(seedlingsRaw)
		if err != nil {
			fatal("invalid seedling count %q", seedlingsRaw)
		}

		rec := &schema.TrialRecord{
			Seedlings: seedlings,
		}
		rec.Species, _ = cmd.Flags().GetString("species")
		rec.Seedlot, _ = cmd.Flags().GetString("seedlot")
		rec.Spacing, _ = cmd.Flags().GetString("spacing")
		rec.SiteSeries, _ = cmd.Flags().GetString("site-series")
		rec.SMR, _ = cmd.Flags().GetString("smr")
		rec.SNR, _ = cmd.Flags().GetString("snr")
		rec.SiteFactors, _ = cmd.Flags().GetString("site-factors")
		rec.SitePrep, _ = cmd.Flags().GetString("site-prep")
		rec.Lat, _ = cmd.Flags().GetFloat64("lat")
		rec.Lon, _ = cmd.Flags().GetFloat64("lon")

		id, err := db.CreateTrial(rec, user.Username)
		if err != nil {
			fatal("failed to create trial: %v", err)
		}

		fmt.Printf("Created trial %s\n", id)
	},
}

var trialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trial plots in creation order",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		trials, err := db.ListTrials()
		if err != nil {
			fatal("failed to list trials: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tSPECIES\tSEEDLINGS\tLAT\tLON\tSYNCED\t")
		for _, rec := range trials {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%.4f\t%s\t\n",
				rec.UUID, rec.Species, rec.Seedlings, rec.Lat, rec.Lon, syncState(rec))
		}
		w.Flush()
	},
}

func syncState(rec *schema.TrialRecord) string {
	switch {
	case !rec.Synced && rec.AssessUpdated:
		return "pending+grid"
	case !rec.Synced:
		return "pending"
	case rec.AssessUpdated:
		return "grid pending"
	default:
		return "yes"
	}
}

var trialShowCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "Show one trial plot in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		rec, err := db.GetTrial(args[0])
		if err != nil {
			fatal("failed to load trial: %v", err)
		}

		fmt.Printf("UUID:         %s\n", rec.UUID)
		fmt.Printf("Species:      %s\n", rec.Species)
		fmt.Printf("Seedlings:    %d\n", rec.Seedlings)
		fmt.Printf("Seedlot:      %s\n", rec.Seedlot)
		fmt.Printf("Spacing:      %s\n", rec.Spacing)
		fmt.Printf("Site series:  %s\n", rec.SiteSeries)
		fmt.Printf("SMR:          %s\n", rec.SMR)
		fmt.Printf("SNR:          %s\n", rec.SNR)
		fmt.Printf("Site factors: %s\n", rec.SiteFactors)
		fmt.Printf("Site prep:    %s\n", rec.SitePrep)
		fmt.Printf("Location:     %.6f, %.6f\n", rec.Lat, rec.Lon)
		fmt.Printf("Recorded:     %s\n", rec.Timestamp.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("Owner:        %s\n", rec.UserID)
		fmt.Printf("Synced:       %s\n", syncState(rec))
	},
}

var trialUpdateCmd = &cobra.Command{
	Use:   "update <uuid>",
	Short: "Edit attributes of a trial plot",
	Long: `Edit attributes of a trial plot. Only flags you pass change; the
record keeps its timestamp and sync state.

Example usage:
  trialfield trial update 4f7c... --seedlings 75
  trialfield trial update 4f7c... --smr 4 --snr B`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		var update store.TrialUpdate
		flags := cmd.Flags()
		if flags.Changed("species") {
			v, _ := flags.GetString("species")
			update.Species = &v
		}
		if flags.Changed("seedlings") {
			raw, _ := flags.GetString("seedlings")
			v, err := schema.ParseSeedlings(raw)
			if err != nil {
				fatal("invalid seedling count %q", raw)
			}
			update.Seedlings = &v
		}
		if flags.Changed("seedlot") {
			v, _ := flags.GetString("seedlot")
			update.Seedlot = &v
		}
		if flags.Changed("spacing") {
			v, _ := flags.GetString("spacing")
			update.Spacing = &v
		}
		if flags.Changed("site-series") {
			v, _ := flags.GetString("site-series")
			update.SiteSeries = &v
		}
		if flags.Changed("smr") {
			v, _ := flags.GetString("smr")
			update.SMR = &v
		}
		if flags.Changed("snr") {
			v, _ := flags.GetString("snr")
			update.SNR = &v
		}
		if flags.Changed("site-factors") {
			v, _ := flags.GetString("site-factors")
			update.SiteFactors = &v
		}
		if flags.Changed("site-prep") {
			v, _ := flags.GetString("site-prep")
			update.SitePrep = &v
		}
		if flags.Changed("lat") {
			v, _ := flags.GetFloat64("lat")
			update.Lat = &v
		}
		if flags.Changed("lon") {
			v, _ := flags.GetFloat64("lon")
			update.Lon = &v
		}

		if err := db.UpdateTrial(args[0], update); err != nil {
			fatal("failed to update trial: %v", err)
		}

		fmt.Printf("Updated trial %s\n", args[0])
	},
}

var trialDeleteCmd = &cobra.Command{
	Use:   "delete <uuid>",
	Short: "Delete a trial plot from the local store",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		if err := db.DeleteTrial(args[0]); err != nil {
			fatal("failed to delete trial: %v", err)
		}

		fmt.Printf("Deleted trial %s\n", args[0])
	},
	Args: cobra.ExactArgs(1),
}

func addTrialAttributeFlags(cmd *cobra.Command) {
	cmd.Flags().String("species", "", "Tree species")
	cmd.Flags().String("seedlings", "", "Seedling count")
	cmd.Flags().String("seedlot", "", "Seedlot identifier")
	cmd.Flags().String("spacing", "", "Planting spacing, e.g. 2x2")
	cmd.Flags().String("site-series", "", "Site series classification")
	cmd.Flags().String("smr", "", "Soil moisture regime")
	cmd.Flags().String("snr", "", "Soil nutrient regime")
	cmd.Flags().String("site-factors", "", "Notable site factors")
	cmd.Flags().String("site-prep", "", "Site preparation method")
	cmd.Flags().Float64("lat", 0, "Latitude in decimal degrees")
	cmd.Flags().Float64("lon", 0, "Longitude in decimal degrees")
}

func init() {
	addTrialAttributeFlags(trialAddCmd)
	_ = trialAddCmd.MarkFlagRequired("species")
	_ = trialAddCmd.MarkFlagRequired("lat")
	_ = trialAddCmd.MarkFlagRequired("lon")

	addTrialAttributeFlags(trialUpdateCmd)

	trialCmd.AddCommand(trialAddCmd)
	trialCmd.AddCommand(trialListCmd)
	trialCmd.AddCommand(trialShowCmd)
	trialCmd.AddCommand(trialUpdateCmd)
	trialCmd.AddCommand(trialDeleteCmd)
	rootCmd.AddCommand(trialCmd)
}
