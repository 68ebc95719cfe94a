package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gomapp/trialfield/internal/schema"
)

// seedBenchDB creates a database with n trials, a share of them dirty.
func seedBenchDB(b *testing.B, n int, dirtyRatio float64) *DB {
	b.Helper()

	db, err := Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		b.Fatalf("failed to initialize schema: %v", err)
	}

	dirty := int(float64(n) * dirtyRatio)
	for i := 0; i < n; i++ {
		uuid, err := db.CreateTrial(&schema.TrialRecord{
			Species:   "Douglas-fir",
			Seedlings: 50,
			Seedlot:   fmt.Sprintf("SL-%03d", i%100),
			Lat:       49.0,
			Lon:       -123.0,
		}, "bench_user")
		if err != nil {
			b.Fatalf("failed to seed trial: %v", err)
		}
		if i >= dirty {
			if err := db.MarkSynced([]string{uuid}); err != nil {
				b.Fatalf("failed to mark synced: %v", err)
			}
		}
	}
	return db
}

// BenchmarkListDirtyForUpload_1000Trials benchmarks the per-cycle dirty
// scan with 1000 trials, 30% pending upload.
func BenchmarkListDirtyForUpload_1000Trials(b *testing.B) {
	db := seedBenchDB(b, 1000, 0.3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.ListDirtyForUpload("bench_user"); err != nil {
			b.Fatalf("query failed: %v", err)
		}
	}
}

// BenchmarkMaxSyncedTimestamp_5000Trials benchmarks the watermark query
// computed at the start of every download.
func BenchmarkMaxSyncedTimestamp_5000Trials(b *testing.B) {
	db := seedBenchDB(b, 5000, 0.1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.MaxSyncedTimestamp(); err != nil {
			b.Fatalf("query failed: %v", err)
		}
	}
}

// BenchmarkUpsertFromRemote benchmarks applying a downloaded delta over
// existing rows.
func BenchmarkUpsertFromRemote(b *testing.B) {
	db := seedBenchDB(b, 100, 0)

	trials, err := db.ListTrials()
	if err != nil {
		b.Fatalf("failed to list trials: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := trials[i%len(trials)]
		if err := db.UpsertFromRemote(rec); err != nil {
			b.Fatalf("upsert failed: %v", err)
		}
	}
}

// BenchmarkCreateTrial measures local record creation, the hot path
// when a crew backfills a day of plots.
func BenchmarkCreateTrial(b *testing.B) {
	db := seedBenchDB(b, 0, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := db.CreateTrial(&schema.TrialRecord{
			Species: "Western redcedar",
			Lat:     50.1,
			Lon:     -122.8,
		}, "bench_user")
		if err != nil {
			b.Fatalf("create failed: %v", err)
		}
	}
}
