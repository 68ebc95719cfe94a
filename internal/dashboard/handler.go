package dashboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gomapp/trialfield/internal/store"
	"github.com/gomapp/trialfield/internal/sync"
)

// Handler turns store and sync events into dashboard broadcasts. It
// implements sync.Notifier so the engine can be pointed straight at it.
type Handler struct {
	srv *Server
	db  *store.DB
}

// NewHandler creates a Handler publishing to srv, reading backlog
// statistics from db.
func NewHandler(srv *Server, db *store.DB) *Handler {
	return &Handler{srv: srv, db: db}
}

// TrialChanged broadcasts a create or update of a trial.
func (h *Handler) TrialChanged(uuid, action, species, userID string) {
	h.publish(MessageTypeTrialUpdate, TrialUpdateData{
		UUID:    uuid,
		Action:  action,
		Species: species,
		UserID:  userID,
	})
}

// AssessmentChanged broadcasts a growth grid change.
func (h *Handler) AssessmentChanged(uuid, grid string) {
	h.publish(MessageTypeAssessmentUpdate, AssessmentUpdateData{
		UUID:       uuid,
		GrowthGrid: grid,
	})
}

// OnSyncComplete implements sync.Notifier. Every record the download
// phase applied goes out as its own trial_update (plus an
// assessment_update when its grid changed), then the cycle summary and
// a stats snapshot.
func (h *Handler) OnSyncComplete(report sync.Report) {
	if p, ok := report.Phase(sync.PhaseDownload); ok {
		for _, ch := range p.Changes {
			h.TrialChanged(ch.UUID, ch.Action, ch.Species, ch.UserID)
			if ch.GridChanged {
				h.AssessmentChanged(ch.UUID, ch.GrowthGrid)
			}
		}
	}

	data := SyncCompleteData{
		Duration: report.Duration,
		Failed:   !report.Ok(),
	}
	if err := report.Err(); err != nil {
		data.Error = err.Error()
	}
	if p, ok := report.Phase(sync.PhaseUploadTrials); ok {
		data.Uploaded = p.Count
	}
	if p, ok := report.Phase(sync.PhaseUploadAssessments); ok {
		data.Assessments = p.Count
	}
	if p, ok := report.Phase(sync.PhaseDownload); ok {
		data.Downloaded = p.Count
	}

	h.publish(MessageTypeSyncComplete, data)
	h.publishStats()
}

// publishStats snapshots the store backlog and broadcasts it. Failures
// are silent since stats are advisory.
func (h *Handler) publishStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	total, err := h.db.TrialCountContext(ctx)
	if err != nil {
		return
	}
	pendingTrials, pendingGrids, err := h.db.DirtyCounts(ctx)
	if err != nil {
		return
	}

	h.publish(MessageTypeStats, StatsData{
		Total:            total,
		PendingTrials:    pendingTrials,
		PendingGrids:     pendingGrids,
		ConnectedClients: h.srv.ClientCount(),
	})
}

func (h *Handler) publish(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	h.srv.Broadcast(Message{Type: typ, Timestamp: time.Now().UTC(), Data: raw})
}
