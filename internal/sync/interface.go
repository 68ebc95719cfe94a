package sync

import (
	"context"
	"errors"
	"time"
)

// Phase identifies one step of a sync cycle.
type Phase string

const (
	// PhaseUploadTrials pushes locally-created trial records.
	PhaseUploadTrials Phase = "upload_trials"

	// PhaseUploadAssessments pushes locally-edited growth grids.
	PhaseUploadAssessments Phase = "upload_assessments"

	// PhaseDownload pulls remote records newer than the watermark.
	PhaseDownload Phase = "download"
)

// TrialChange describes one record applied during the download phase,
// for collaborators that mirror store changes (the dashboard).
type TrialChange struct {
	UUID    string
	Species string
	UserID  string

	// Action is "created" for records new to this device, "updated"
	// for remote edits of known records.
	Action string

	// GridChanged is set when the applied record carries a growth grid
	// different from the local one. GrowthGrid is the new payload.
	GridChanged bool
	GrowthGrid  string
}

// PhaseResult is the outcome of a single phase. A nil Err with Count 0
// means the phase had nothing to do, which is success.
type PhaseResult struct {
	Phase Phase
	Count int
	Err   error

	// Changes lists the records the download phase applied. Empty for
	// the upload phases.
	Changes []TrialChange
}

// Report is the outcome of one full sync cycle.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Phases   []PhaseResult
}

// Ok reports whether every phase completed without error.
func (r *Report) Ok() bool {
	for _, p := range r.Phases {
		if p.Err != nil {
			return false
		}
	}
	return true
}

// Err returns the combined error of all failed phases, or nil.
func (r *Report) Err() error {
	var errs []error
	for _, p := range r.Phases {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errors.Join(errs...)
}

// Phase returns the result for the named phase, if it ran.
func (r *Report) Phase(phase Phase) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Phase == phase {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Notifier receives the outcome of completed sync cycles. The map
// collaborator uses this to know when to re-read the trial list and
// redraw markers.
type Notifier interface {
	OnSyncComplete(report Report)
}

// Engine drives sync cycles against the remote trials endpoint.
//
// The engine is safe to re-invoke at any time: every phase either
// completes and durably records its effect or leaves the dirty flags
// for the next cycle.
type Engine interface {
	// Run executes one full sync cycle for the given owner (the active
	// user's username). The returned report always covers all phases;
	// a phase failure never aborts the phases after it.
	Run(ctx context.Context, owner string) Report

	// UploadTrials runs only the attribute-upload phase.
	UploadTrials(ctx context.Context, owner string) PhaseResult

	// UploadAssessments runs only the assessment-upload phase.
	// Assessment dirt is cross-user by design.
	UploadAssessments(ctx context.Context) PhaseResult

	// Download runs only the watermark-bounded download phase.
	Download(ctx context.Context) PhaseResult

	// SetNotifier registers the collaborator notified after each Run.
	SetNotifier(n Notifier)
}
