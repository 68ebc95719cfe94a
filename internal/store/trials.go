package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gomapp/trialfield/internal/schema"
)

// trialColumns is the column list shared by every trial SELECT.
const trialColumns = `uuid, species, seedlings, seedlot, spacing,
       site_series, smr, snr, site_factors, site_prep,
       lat, lon, timestamp, user_id, synced, assess_updated, growth_grid`

// CreateTrial persists a new trial record owned by the given user.
//
// A fresh uuid is assigned (any uuid on the record is ignored), the
// timestamp defaults to now, and the record starts with synced=false and
// assess_updated=false. Returns the assigned uuid.
func (db *DB) CreateTrial(rec *schema.TrialRecord, owner string) (string, error) {
	return db.CreateTrialContext(context.Background(), rec, owner)
}

// CreateTrialContext persists a new trial with context support.
func (db *DB) CreateTrialContext(ctx context.Context, rec *schema.TrialRecord, owner string) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("create trial: %w", ErrNoActiveUser)
	}

	rec.UUID = uuid.NewString()
	rec.UserID = owner
	rec.Synced = false
	rec.AssessUpdated = false
	rec.SetDefaults()

	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("invalid trial: %w", err)
	}

	query := `
	INSERT INTO trials (
		uuid, species, seedlings, seedlot, spacing,
		site_series, smr, snr, site_factors, site_prep,
		lat, lon, timestamp, user_id, synced, assess_updated, growth_grid
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		rec.UUID,
		rec.Species,
		rec.Seedlings,
		rec.Seedlot,
		rec.Spacing,
		rec.SiteSeries,
		rec.SMR,
		rec.SNR,
		rec.SiteFactors,
		rec.SitePrep,
		rec.Lat,
		rec.Lon,
		fmtTime(rec.Timestamp),
		rec.UserID,
		nullIfEmpty(rec.GrowthGrid),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert trial: %w", err)
	}

	return rec.UUID, nil
}

// GetTrial retrieves a single trial by uuid.
func (db *DB) GetTrial(uuidStr string) (*schema.TrialRecord, error) {
	return db.GetTrialContext(context.Background(), uuidStr)
}

// GetTrialContext retrieves a single trial with context support.
func (db *DB) GetTrialContext(ctx context.Context, uuidStr string) (*schema.TrialRecord, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE uuid = ?`

	row := db.conn.QueryRowContext(ctx, query, uuidStr)
	rec, err := scanTrial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trial %s: %w", uuidStr, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial %s: %w", uuidStr, err)
	}
	return rec, nil
}

// ListTrials returns all trials in creation order. This is the query the
// map collaborator uses to redraw markers after a sync cycle.
func (db *DB) ListTrials() ([]*schema.TrialRecord, error) {
	return db.ListTrialsContext(context.Background())
}

// ListTrialsContext returns all trials with context support.
func (db *DB) ListTrialsContext(ctx context.Context) ([]*schema.TrialRecord, error) {
	query := `SELECT ` + trialColumns + ` FROM trials ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	return scanTrials(rows)
}

// TrialUpdate names the attribute fields an update may change. Nil
// fields are left untouched. Sync state and the growth grid are not
// updatable through this path.
type TrialUpdate struct {
	Species     *string
	Seedlings   *int
	Seedlot     *string
	Spacing     *string
	SiteSeries  *string
	SMR         *string
	SNR         *string
	SiteFactors *string
	SitePrep    *string
	Lat         *float64
	Lon         *float64
}

// UpdateTrial applies a partial attribute update to an existing trial.
//
// Only supplied fields change. The record's timestamp, sync flags, and
// growth grid are never touched here: the timestamp doubles as the sync
// watermark, and advancing it on a local edit could skip remote deltas.
func (db *DB) UpdateTrial(uuidStr string, upd TrialUpdate) error {
	return db.UpdateTrialContext(context.Background(), uuidStr, upd)
}

// UpdateTrialContext applies a partial update with context support.
func (db *DB) UpdateTrialContext(ctx context.Context, uuidStr string, upd TrialUpdate) error {
	var sets []string
	var args []interface{}

	set := func(column string, v interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}

	if upd.Species != nil {
		set("species", *upd.Species)
	}
	if upd.Seedlings != nil {
		if *upd.Seedlings < 0 {
			return fmt.Errorf("%w: seedling count must be >= 0 (got %d)", schema.ErrValidation, *upd.Seedlings)
		}
		set("seedlings", *upd.Seedlings)
	}
	if upd.Seedlot != nil {
		set("seedlot", *upd.Seedlot)
	}
	if upd.Spacing != nil {
		set("spacing", *upd.Spacing)
	}
	if upd.SiteSeries != nil {
		set("site_series", *upd.SiteSeries)
	}
	if upd.SMR != nil {
		set("smr", *upd.SMR)
	}
	if upd.SNR != nil {
		set("snr", *upd.SNR)
	}
	if upd.SiteFactors != nil {
		set("site_factors", *upd.SiteFactors)
	}
	if upd.SitePrep != nil {
		set("site_prep", *upd.SitePrep)
	}
	if upd.Lat != nil {
		if *upd.Lat < -90 || *upd.Lat > 90 {
			return fmt.Errorf("%w: latitude out of range (got %g)", schema.ErrValidation, *upd.Lat)
		}
		set("lat", *upd.Lat)
	}
	if upd.Lon != nil {
		if *upd.Lon < -180 || *upd.Lon > 180 {
			return fmt.Errorf("%w: longitude out of range (got %g)", schema.ErrValidation, *upd.Lon)
		}
		set("lon", *upd.Lon)
	}

	if len(sets) == 0 {
		// Nothing to change; still report unknown uuids.
		_, err := db.GetTrialContext(ctx, uuidStr)
		return err
	}

	query := "UPDATE trials SET " + strings.Join(sets, ", ") + " WHERE uuid = ?"
	args = append(args, uuidStr)

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update trial %s: %w", uuidStr, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update trial %s: %w", uuidStr, err)
	}
	if affected == 0 {
		return fmt.Errorf("trial %s: %w", uuidStr, ErrNotFound)
	}

	return nil
}

// SetGrowthGrid attaches a serialized growth grid payload to a trial and
// marks the record for the next assessment-upload pass. The attribute
// sync flag is left alone: grid edits and attribute edits are tracked as
// independent dirty dimensions.
func (db *DB) SetGrowthGrid(uuidStr, payload string) error {
	return db.SetGrowthGridContext(context.Background(), uuidStr, payload)
}

// SetGrowthGridContext attaches a growth grid with context support.
func (db *DB) SetGrowthGridContext(ctx context.Context, uuidStr, payload string) error {
	query := `UPDATE trials SET growth_grid = ?, assess_updated = 1 WHERE uuid = ?`

	result, err := db.conn.ExecContext(ctx, query, nullIfEmpty(payload), uuidStr)
	if err != nil {
		return fmt.Errorf("failed to set growth grid for %s: %w", uuidStr, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set growth grid for %s: %w", uuidStr, err)
	}
	if affected == 0 {
		return fmt.Errorf("trial %s: %w", uuidStr, ErrNotFound)
	}

	return nil
}

// GetGrowthGrid returns the raw growth grid payload for a trial, or ""
// when the trial has no assessment yet.
func (db *DB) GetGrowthGrid(uuidStr string) (string, error) {
	return db.GetGrowthGridContext(context.Background(), uuidStr)
}

// GetGrowthGridContext returns the growth grid payload with context support.
func (db *DB) GetGrowthGridContext(ctx context.Context, uuidStr string) (string, error) {
	var payload sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT growth_grid FROM trials WHERE uuid = ?`, uuidStr).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("trial %s: %w", uuidStr, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get growth grid for %s: %w", uuidStr, err)
	}
	return payload.String, nil
}

// DeleteTrial removes a trial from the local store.
//
// This is a hard delete with no tombstone: the deletion is never
// communicated upstream, and a record the server still has will
// reappear on a later download. Returns nil if the trial doesn't exist
// (idempotent).
func (db *DB) DeleteTrial(uuidStr string) error {
	return db.DeleteTrialContext(context.Background(), uuidStr)
}

// DeleteTrialContext removes a trial with context support.
func (db *DB) DeleteTrialContext(ctx context.Context, uuidStr string) error {
	query := `DELETE FROM trials WHERE uuid = ?`
	_, err := db.conn.ExecContext(ctx, query, uuidStr)
	if err != nil {
		return fmt.Errorf("failed to delete trial %s: %w", uuidStr, err)
	}
	return nil
}

// ListDirtyForUpload returns all never-uploaded trials owned by the
// given user, in creation order.
func (db *DB) ListDirtyForUpload(owner string) ([]*schema.TrialRecord, error) {
	return db.ListDirtyForUploadContext(context.Background(), owner)
}

// ListDirtyForUploadContext returns dirty trials with context support.
func (db *DB) ListDirtyForUploadContext(ctx context.Context, owner string) ([]*schema.TrialRecord, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE synced = 0 AND user_id = ? ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query dirty trials: %w", err)
	}
	defer rows.Close()

	return scanTrials(rows)
}

// ListDirtyAssessments returns all trials with an unpushed growth grid
// edit, regardless of owner.
func (db *DB) ListDirtyAssessments() ([]*schema.TrialRecord, error) {
	return db.ListDirtyAssessmentsContext(context.Background())
}

// ListDirtyAssessmentsContext returns dirty assessments with context support.
func (db *DB) ListDirtyAssessmentsContext(ctx context.Context) ([]*schema.TrialRecord, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE assess_updated = 1 ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dirty assessments: %w", err)
	}
	defer rows.Close()

	return scanTrials(rows)
}

// MarkSynced sets synced=true on every trial in uuids. Called by the
// sync engine only after the server confirmed the upload batch.
func (db *DB) MarkSynced(uuids []string) error {
	return db.MarkSyncedContext(context.Background(), uuids)
}

// MarkSyncedContext marks trials synced with context support.
func (db *DB) MarkSyncedContext(ctx context.Context, uuids []string) error {
	return db.setFlag(ctx, "synced", 1, uuids)
}

// ClearAssessUpdated clears the assessment dirty flag on every trial in
// uuids. Called by the sync engine after a confirmed assessment upload;
// the attribute sync flag is deliberately untouched.
func (db *DB) ClearAssessUpdated(uuids []string) error {
	return db.ClearAssessUpdatedContext(context.Background(), uuids)
}

// ClearAssessUpdatedContext clears assessment flags with context support.
func (db *DB) ClearAssessUpdatedContext(ctx context.Context, uuids []string) error {
	return db.setFlag(ctx, "assess_updated", 0, uuids)
}

// setFlag sets a boolean column on a batch of trials keyed by uuid.
func (db *DB) setFlag(ctx context.Context, column string, value int, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(uuids)), ", ")
	query := fmt.Sprintf("UPDATE trials SET %s = %d WHERE uuid IN (%s)", column, value, placeholders)

	args := make([]interface{}, len(uuids))
	for i, u := range uuids {
		args[i] = u
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set %s on %d trials: %w", column, len(uuids), err)
	}
	return nil
}

// UpsertFromRemote applies a server-side record to the local store.
//
// Insert-or-update keyed by uuid: remote wins unconditionally, all
// attribute fields and the growth grid are overwritten, and the
// resulting row is always marked synced. Ownership and the assessment
// dirty flag are local concerns and are preserved on conflict.
func (db *DB) UpsertFromRemote(rec *schema.TrialRecord) error {
	return db.UpsertFromRemoteContext(context.Background(), rec)
}

// UpsertFromRemoteContext applies a remote record with context support.
func (db *DB) UpsertFromRemoteContext(ctx context.Context, rec *schema.TrialRecord) error {
	if rec.UUID == "" {
		return fmt.Errorf("%w: remote record has no uuid", schema.ErrValidation)
	}
	rec.SetDefaults()

	query := `
	INSERT INTO trials (
		uuid, species, seedlings, seedlot, spacing,
		site_series, smr, snr, site_factors, site_prep,
		lat, lon, timestamp, user_id, synced, assess_updated, growth_grid
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?)
	ON CONFLICT(uuid) DO UPDATE SET
		species = excluded.species,
		seedlings = excluded.seedlings,
		seedlot = excluded.seedlot,
		spacing = excluded.spacing,
		site_series = excluded.site_series,
		smr = excluded.smr,
		snr = excluded.snr,
		site_factors = excluded.site_factors,
		site_prep = excluded.site_prep,
		lat = excluded.lat,
		lon = excluded.lon,
		timestamp = excluded.timestamp,
		growth_grid = excluded.growth_grid,
		synced = 1
	`

	_, err := db.conn.ExecContext(ctx, query,
		rec.UUID,
		rec.Species,
		rec.Seedlings,
		rec.Seedlot,
		rec.Spacing,
		rec.SiteSeries,
		rec.SMR,
		rec.SNR,
		rec.SiteFactors,
		rec.SitePrep,
		rec.Lat,
		rec.Lon,
		fmtTime(rec.Timestamp),
		rec.UserID,
		nullIfEmpty(rec.GrowthGrid),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert remote trial %s: %w", rec.UUID, err)
	}

	return nil
}

// MaxSyncedTimestamp returns the sync watermark: the newest timestamp
// among records that completed a sync round trip. Returns the Unix epoch
// when no record has ever been synced.
func (db *DB) MaxSyncedTimestamp() (time.Time, error) {
	return db.MaxSyncedTimestampContext(context.Background())
}

// MaxSyncedTimestampContext returns the watermark with context support.
func (db *DB) MaxSyncedTimestampContext(ctx context.Context) (time.Time, error) {
	var ts sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM trials WHERE synced <> 0`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query sync watermark: %w", err)
	}
	if !ts.Valid {
		return time.Unix(0, 0).UTC(), nil
	}
	t := parseTime(ts.String)
	if t.IsZero() {
		return time.Unix(0, 0).UTC(), nil
	}
	return t, nil
}

// TrialCount returns the total number of trials in the store.
func (db *DB) TrialCount() (int, error) {
	return db.TrialCountContext(context.Background())
}

// TrialCountContext returns the trial count with context support.
func (db *DB) TrialCountContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM trials").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trials: %w", err)
	}
	return count, nil
}

// DirtyCounts returns the number of trials pending attribute upload and
// assessment upload. Used for dashboard statistics.
func (db *DB) DirtyCounts(ctx context.Context) (dirty, assessments int, err error) {
	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE synced = 0),
		        COUNT(*) FILTER (WHERE assess_updated = 1)
		 FROM trials`).Scan(&dirty, &assessments)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count dirty trials: %w", err)
	}
	return dirty, assessments, nil
}

// scanner abstracts sql.Row and sql.Rows for the shared scan path.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrial scans a single trial from the trialColumns column list.
func scanTrial(s scanner) (*schema.TrialRecord, error) {
	var rec schema.TrialRecord
	var timestamp string
	var synced, assessUpdated int
	var growthGrid sql.NullString

	err := s.Scan(
		&rec.UUID,
		&rec.Species,
		&rec.Seedlings,
		&rec.Seedlot,
		&rec.Spacing,
		&rec.SiteSeries,
		&rec.SMR,
		&rec.SNR,
		&rec.SiteFactors,
		&rec.SitePrep,
		&rec.Lat,
		&rec.Lon,
		&timestamp,
		&rec.UserID,
		&synced,
		&assessUpdated,
		&growthGrid,
	)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = parseTime(timestamp)
	rec.Synced = synced != 0
	rec.AssessUpdated = assessUpdated != 0
	rec.GrowthGrid = growthGrid.String

	return &rec, nil
}

// scanTrials scans multiple trials from query results.
func scanTrials(rows *sql.Rows) ([]*schema.TrialRecord, error) {
	var trials []*schema.TrialRecord

	for rows.Next() {
		rec, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		trials = append(trials, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trials: %w", err)
	}

	return trials, nil
}
