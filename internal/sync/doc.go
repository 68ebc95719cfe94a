// Package sync implements the offline-first synchronization protocol
// between the local record store and the remote trials endpoint.
//
// # Overview
//
// Field devices collect trial records with no connectivity guarantee.
// When a sync is triggered (explicit user action or a periodic daemon
// tick), the engine runs four sequential phases:
//
//	1. Upload attributes   POST /trials with every synced=0 record
//	                       owned by the given user; on 200, the whole
//	                       batch is marked synced.
//	2. Upload assessments  POST /trials with {uuid, timestamp,
//	                       growth_grid} for every assess_updated=1
//	                       record, cross-user; on 200, only the
//	                       assessment flag is cleared.
//	3. Download            GET /trials?since=<watermark> and apply each
//	                       returned record with remote-wins upsert.
//	4. Notify              report counts to the registered Notifier so
//	                       the map collaborator re-reads and redraws.
//
// # Failure model
//
// Each phase is independently fallible: a failed phase is captured in
// the Report and later phases still run. Nothing is marked clean unless
// the server confirmed the batch, so semantics are at-least-once: a
// record may be re-uploaded when the client never observed the 200, and
// the server is expected to treat the uuid as the idempotency key.
// Re-running the engine is always safe: the dirty-flag filters prevent
// duplicate attribute uploads, and re-applied downloads are harmless
// because the remote copy is authoritative.
//
// # Usage
//
//	engine := sync.New(db, sync.Config{BaseURL: "https://trials.example.com"}, logger)
//	report := engine.Run(ctx, activeUser.Username)
//	if !report.Ok() {
//	    // recoverable; try again next cycle
//	}
package sync
