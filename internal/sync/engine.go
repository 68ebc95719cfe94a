package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/gomapp/trialfield/internal/schema"
	"github.com/gomapp/trialfield/internal/store"
)

// ErrRemoteRejected is returned when the server answered with a
// non-200 status. The local dirty flags are left untouched so the batch
// is retried on the next cycle.
var ErrRemoteRejected = errors.New("remote rejected request")

// DefaultTimeout bounds every network call. A blocked call stalls only
// the triggering action, never the store.
const DefaultTimeout = 10 * time.Second

// trialsPath is the single resource the wire protocol exposes.
const trialsPath = "/trials"

// Config holds the remote endpoint configuration.
type Config struct {
	// BaseURL of the remote server, e.g. "https://trials.example.com".
	BaseURL string

	// Timeout for each HTTP call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// engine implements the Engine interface.
type engine struct {
	db       *store.DB
	client   *resty.Client
	logger   *zap.Logger
	notifier Notifier
}

// New creates a new sync Engine.
//
// The store must be opened and have schema initialized before passing
// to this function. If logger is nil, a no-op logger is used.
func New(db *store.DB, cfg Config, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &engine{
		db:     db,
		client: client,
		logger: logger,
	}
}

// SetNotifier implements Engine.SetNotifier.
func (e *engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Run implements Engine.Run.
func (e *engine) Run(ctx context.Context, owner string) Report {
	start := time.Now()
	report := Report{Started: start}

	report.Phases = append(report.Phases, e.UploadTrials(ctx, owner))
	report.Phases = append(report.Phases, e.UploadAssessments(ctx))
	report.Phases = append(report.Phases, e.Download(ctx))
	report.Duration = time.Since(start)

	for _, p := range report.Phases {
		if p.Err != nil {
			e.logger.Warn("sync phase failed, will retry next cycle",
				zap.String("phase", string(p.Phase)),
				zap.Error(p.Err),
			)
		}
	}

	e.logger.Info("sync cycle complete",
		zap.Duration("duration", report.Duration),
		zap.Bool("ok", report.Ok()),
	)

	if e.notifier != nil {
		e.notifier.OnSyncComplete(report)
	}

	return report
}

// UploadTrials implements Engine.UploadTrials.
//
// The whole dirty batch goes up as one request. Only a confirmed 200
// marks anything synced; on failure every record stays dirty, so a
// response lost in transit means the batch is re-sent next cycle.
func (e *engine) UploadTrials(ctx context.Context, owner string) PhaseResult {
	result := PhaseResult{Phase: PhaseUploadTrials}

	trials, err := e.db.ListDirtyForUploadContext(ctx, owner)
	if err != nil {
		result.Err = fmt.Errorf("upload trials: %w", err)
		return result
	}
	if len(trials) == 0 {
		e.logger.Debug("no local trials to upload", zap.String("owner", owner))
		return result
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(trials).
		Post(trialsPath)
	if err != nil {
		result.Err = fmt.Errorf("upload trials: %w", err)
		return result
	}
	if resp.StatusCode() != http.StatusOK {
		result.Err = fmt.Errorf("upload trials: %w: status %d", ErrRemoteRejected, resp.StatusCode())
		return result
	}

	uuids := make([]string, len(trials))
	for i, rec := range trials {
		uuids[i] = rec.UUID
	}
	if err := e.db.MarkSyncedContext(ctx, uuids); err != nil {
		// Server accepted but the local mark failed; the batch stays
		// dirty and is re-uploaded, which the uuid keying makes safe.
		result.Err = fmt.Errorf("upload trials: %w", err)
		return result
	}

	result.Count = len(trials)
	e.logger.Info("uploaded trials",
		zap.Int("count", len(trials)),
		zap.String("owner", owner),
	)
	return result
}

// UploadAssessments implements Engine.UploadAssessments.
//
// Growth grid edits are pushed for all users on the device. On success
// only the assessment flag is cleared: attribute sync state is an
// independent dimension and is never conflated with it.
func (e *engine) UploadAssessments(ctx context.Context) PhaseResult {
	result := PhaseResult{Phase: PhaseUploadAssessments}

	trials, err := e.db.ListDirtyAssessmentsContext(ctx)
	if err != nil {
		result.Err = fmt.Errorf("upload assessments: %w", err)
		return result
	}
	if len(trials) == 0 {
		e.logger.Debug("no local assessments to upload")
		return result
	}

	uploads := make([]schema.AssessmentUpload, len(trials))
	uuids := make([]string, len(trials))
	for i, rec := range trials {
		uploads[i] = schema.AssessmentUpload{
			UUID:       rec.UUID,
			Timestamp:  rec.Timestamp,
			GrowthGrid: rec.GrowthGrid,
		}
		uuids[i] = rec.UUID
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(uploads).
		Post(trialsPath)
	if err != nil {
		result.Err = fmt.Errorf("upload assessments: %w", err)
		return result
	}
	if resp.StatusCode() != http.StatusOK {
		result.Err = fmt.Errorf("upload assessments: %w: status %d", ErrRemoteRejected, resp.StatusCode())
		return result
	}

	if err := e.db.ClearAssessUpdatedContext(ctx, uuids); err != nil {
		result.Err = fmt.Errorf("upload assessments: %w", err)
		return result
	}

	result.Count = len(uploads)
	e.logger.Info("uploaded assessments", zap.Int("count", len(uploads)))
	return result
}

// Download implements Engine.Download.
//
// The watermark bounds the request to records the store hasn't
// confirmed yet. Individual upsert failures are logged and skipped so
// the rest of the delta still applies; the remote copy is authoritative,
// and a skipped record is simply re-applied on a later cycle.
func (e *engine) Download(ctx context.Context) PhaseResult {
	result := PhaseResult{Phase: PhaseDownload}

	since, err := e.db.MaxSyncedTimestampContext(ctx)
	if err != nil {
		result.Err = fmt.Errorf("download: %w", err)
		return result
	}

	var remote []*schema.TrialRecord
	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetResult(&remote).
		Get(trialsPath)
	if err != nil {
		result.Err = fmt.Errorf("download: %w", err)
		return result
	}
	if resp.StatusCode() != http.StatusOK {
		result.Err = fmt.Errorf("download: %w: status %d", ErrRemoteRejected, resp.StatusCode())
		return result
	}

	applied := 0
	for _, rec := range remote {
		// A malformed delta can carry null elements.
		if rec == nil {
			e.logger.Warn("skipping null record in download response")
			continue
		}

		change := TrialChange{
			UUID:    rec.UUID,
			Species: rec.Species,
			UserID:  rec.UserID,
			Action:  "created",
		}
		if prior, err := e.db.GetTrialContext(ctx, rec.UUID); err == nil {
			change.Action = "updated"
			// The upsert preserves the local owner.
			change.UserID = prior.UserID
			change.GridChanged = prior.GrowthGrid != rec.GrowthGrid
		} else {
			change.GridChanged = rec.GrowthGrid != ""
		}
		change.GrowthGrid = rec.GrowthGrid

		if err := e.db.UpsertFromRemoteContext(ctx, rec); err != nil {
			e.logger.Warn("skipping remote record",
				zap.String("uuid", rec.UUID),
				zap.Error(err),
			)
			continue
		}
		result.Changes = append(result.Changes, change)
		applied++
	}

	result.Count = applied
	e.logger.Info("downloaded trials",
		zap.Int("received", len(remote)),
		zap.Int("applied", applied),
		zap.Time("since", since),
	)
	return result
}

// IsRetryable reports whether the error is likely to succeed on a later
// sync cycle. Transport failures and server rejections are transient;
// validation failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, schema.ErrValidation) {
		return false
	}

	// Server said no; the next cycle re-sends the same batch.
	if errors.Is(err, ErrRemoteRejected) {
		return true
	}

	// Timeouts and connection failures are the normal condition for a
	// device in the field.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
