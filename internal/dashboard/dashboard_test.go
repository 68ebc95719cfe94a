package dashboard

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gomapp/trialfield/internal/schema"
	"github.com/gomapp/trialfield/internal/store"
	"github.com/gomapp/trialfield/internal/sync"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	time.Sleep(100 * time.Millisecond)
	return server
}

func dialTestClient(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// Registration happens just after the handshake completes.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if server.Addr() == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := startTestServer(t)
	conn := dialTestClient(t, server)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	data, _ := json.Marshal(TrialUpdateData{UUID: "t1", Action: "created", Species: "Douglas-fir"})
	server.Broadcast(Message{Type: MessageTypeTrialUpdate, Data: data})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeTrialUpdate {
		t.Errorf("Expected message type %s, got %s", MessageTypeTrialUpdate, msg.Type)
	}

	var update TrialUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if update.UUID != "t1" || update.Action != "created" {
		t.Errorf("Unexpected payload: %+v", update)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Broadcast did not stamp the message")
	}
}

func TestHandlerOnSyncComplete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	if _, err := db.CreateTrial(&schema.TrialRecord{Species: "Douglas-fir", Lat: 49, Lon: -123}, "alice"); err != nil {
		t.Fatalf("Failed to create trial: %v", err)
	}

	server := startTestServer(t)
	conn := dialTestClient(t, server)
	handler := NewHandler(server, db)

	report := sync.Report{
		Started:  time.Now(),
		Duration: 120 * time.Millisecond,
		Phases: []sync.PhaseResult{
			{Phase: sync.PhaseUploadTrials, Count: 1},
			{Phase: sync.PhaseUploadAssessments, Count: 0},
			{Phase: sync.PhaseDownload, Count: 2},
		},
	}
	handler.OnSyncComplete(report)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected sync_complete first, got %s", msg.Type)
	}

	var complete SyncCompleteData
	if err := json.Unmarshal(msg.Data, &complete); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if complete.Uploaded != 1 || complete.Downloaded != 2 || complete.Failed {
		t.Errorf("Unexpected sync summary: %+v", complete)
	}

	// Stats follow every event.
	msg = readMessage(t, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected stats after sync_complete, got %s", msg.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Total != 1 || stats.PendingTrials != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

// TestHandlerBroadcastsDownloadedChanges tests that every record the
// download phase applied reaches clients as a trial_update, with an
// assessment_update for grid changes, before the cycle summary.
func TestHandlerBroadcastsDownloadedChanges(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	server := startTestServer(t)
	conn := dialTestClient(t, server)
	handler := NewHandler(server, db)

	report := sync.Report{
		Started:  time.Now(),
		Duration: 80 * time.Millisecond,
		Phases: []sync.PhaseResult{
			{Phase: sync.PhaseDownload, Count: 2, Changes: []sync.TrialChange{
				{UUID: "r1", Species: "Sitka spruce", UserID: "alice_f", Action: "created"},
				{UUID: "r2", Species: "Lodgepole pine", UserID: "bob_c", Action: "updated",
					GridChanged: true, GrowthGrid: `{"grid":[]}`},
			}},
		},
	}
	handler.OnSyncComplete(report)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeTrialUpdate {
		t.Fatalf("Expected trial_update first, got %s", msg.Type)
	}
	var update TrialUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if update.UUID != "r1" || update.Action != "created" || update.UserID != "alice_f" {
		t.Errorf("Unexpected payload: %+v", update)
	}

	msg = readMessage(t, conn)
	if msg.Type != MessageTypeTrialUpdate {
		t.Fatalf("Expected second trial_update, got %s", msg.Type)
	}

	msg = readMessage(t, conn)
	if msg.Type != MessageTypeAssessmentUpdate {
		t.Fatalf("Expected assessment_update for the grid change, got %s", msg.Type)
	}
	var assess AssessmentUpdateData
	if err := json.Unmarshal(msg.Data, &assess); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if assess.UUID != "r2" || assess.GrowthGrid == "" {
		t.Errorf("Unexpected payload: %+v", assess)
	}

	msg = readMessage(t, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected sync_complete after change events, got %s", msg.Type)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	for i := 0; i < 3; i++ {
		dialTestClient(t, server)
	}

	if count := server.ClientCount(); count != 3 {
		t.Errorf("Expected 3 clients, got %d", count)
	}

	data, _ := json.Marshal(AssessmentUpdateData{UUID: "t1", GrowthGrid: "{}"})
	server.Broadcast(Message{Type: MessageTypeAssessmentUpdate, Data: data})
}
