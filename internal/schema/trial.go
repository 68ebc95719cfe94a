package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrValidation is wrapped by all validation failures in this package.
//
// Check with errors.Is:
//
//	if errors.Is(err, schema.ErrValidation) {
//	    // bad input shape or range, surface to the user
//	}
var ErrValidation = errors.New("validation failed")

// TrialRecord represents one forestry trial plot.
//
// The JSON tags are the wire format: POST /trials sends an array of
// these, and GET /trials?since=... returns an array of them. The uuid is
// client-generated, immutable, and the sole correlation key between the
// local store and the remote server. Synced and AssessUpdated are local
// sync state and never travel on the wire.
type TrialRecord struct {
	UUID      string  `json:"uuid"`
	Species   string  `json:"species"`
	Seedlings int     `json:"seedlings"`
	Seedlot   string  `json:"seedlot"`
	Spacing   string  `json:"spacing,omitempty"`

	// Site description, all optional free-form/enumerated strings.
	SiteSeries  string `json:"site_series,omitempty"`
	SMR         string `json:"smr,omitempty"`
	SNR         string `json:"snr,omitempty"`
	SiteFactors string `json:"site_factors,omitempty"`
	SitePrep    string `json:"site_prep,omitempty"`

	// Location in WGS84 degrees.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Timestamp is the creation instant, used as the sync watermark.
	Timestamp time.Time `json:"timestamp"`

	// UserID is the username active at creation time, immutable after.
	UserID string `json:"user_id,omitempty"`

	// GrowthGrid is the serialized 5x5 assessment payload, "" when the
	// trial has no assessment yet. Decode with DecodeGrid.
	GrowthGrid string `json:"growth_grid,omitempty"`

	// Local sync state, not part of the wire format.
	Synced        bool `json:"-"`
	AssessUpdated bool `json:"-"`
}

// Validate checks the record for valid field values.
func (t *TrialRecord) Validate() error {
	if t.UUID == "" {
		return fmt.Errorf("%w: uuid is required", ErrValidation)
	}
	if strings.TrimSpace(t.Species) == "" {
		return fmt.Errorf("%w: species is required", ErrValidation)
	}
	if t.Seedlings < 0 {
		return fmt.Errorf("%w: seedling count must be >= 0 (got %d)", ErrValidation, t.Seedlings)
	}
	if t.Lat < -90 || t.Lat > 90 {
		return fmt.Errorf("%w: latitude out of range (got %g)", ErrValidation, t.Lat)
	}
	if t.Lon < -180 || t.Lon > 180 {
		return fmt.Errorf("%w: longitude out of range (got %g)", ErrValidation, t.Lon)
	}
	return nil
}

// SetDefaults applies default values for fields the caller may omit.
func (t *TrialRecord) SetDefaults() {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
}

// ParseSeedlings converts a user-supplied seedling count to an integer.
//
// An empty string is treated as zero (count not supplied). A non-numeric
// or negative value is a validation error.
func ParseSeedlings(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: seedling count must be numeric (got %q)", ErrValidation, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: seedling count must be >= 0 (got %d)", ErrValidation, n)
	}
	return n, nil
}

// AssessmentUpload is the wire body for an assessment-only push: the
// growth grid payload plus the identifiers the server needs to attach it
// to the right trial.
type AssessmentUpload struct {
	UUID       string    `json:"uuid"`
	Timestamp  time.Time `json:"timestamp"`
	GrowthGrid string    `json:"growth_grid"`
}
