package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nerrad567/court-rotation/internal/courtapi"
	"github.com/nerrad567/court-rotation/internal/infrastructure/store"
	"github.com/nerrad567/court-rotation/internal/rotation"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type stubReservations struct {
	mu  sync.Mutex
	seq int
}

func (s *stubReservations) Register(_ context.Context, phone string) (*courtapi.RegisterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return &courtapi.RegisterResult{
		Success: true,
		User:    courtapi.User{PhoneNumber: phone, AnimalName: fmt.Sprintf("Animal-%02d", s.seq)},
	}, nil
}

func (s *stubReservations) Approve(_ context.Context, _ string) error          { return nil }
func (s *stubReservations) Reserve(_ context.Context, _ string, _ []string) error { return nil }

func (s *stubReservations) GetCourt(_ context.Context, id string) (*courtapi.Court, error) {
	return &courtapi.Court{ID: id, Name: "Court", Number: 1}, nil
}

func (s *stubReservations) ListCourts(_ context.Context) ([]courtapi.Court, error) {
	return []courtapi.Court{
		{ID: "court-1", Name: "Court One", Number: 1, IsVisible: true, IsAvailable: true},
		{ID: "court-2", Name: "Court Two", Number: 2, IsVisible: true, IsAvailable: true},
		{ID: "court-3", Name: "Court Three", Number: 3, IsVisible: false, IsAvailable: true},
	}, nil
}

type stubTicker struct{}

func (stubTicker) Trigger(_ context.Context) rotation.TickReport {
	return rotation.TickReport{
		Single: rotation.ScopeTick{Action: rotation.ActionWaiting},
		Multi:  rotation.ScopeTick{Action: rotation.ActionNone},
	}
}

// ─── Test Setup ─────────────────────────────────────────────────────────────

// newTestSession builds the full server and connects an in-memory client.
func newTestSession(t *testing.T) *sdk.ClientSession {
	t.Helper()

	client := &stubReservations{}
	sessions := rotation.NewSessionStore(store.NewMemory(), 6*time.Hour, nil)
	pool := rotation.NewPoolManager(client, sessions, nil)
	manager := rotation.NewManager(client, pool, sessions, nil, nil, nil, 30*time.Minute, 0)

	srv, err := New(Deps{
		Manager: manager,
		Courts:  client,
		Ticker:  stubTicker{},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	serverT, clientT := sdk.NewInMemoryTransports()

	serverSession, err := srv.MCPServer().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}

	mcpClient := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v1"}, nil)
	session, err := mcpClient.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		session.Close()       //nolint:errcheck
		serverSession.Close() //nolint:errcheck
	})
	return session
}

func callTool(t *testing.T, session *sdk.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		text, _ := result.Content[0].(*sdk.TextContent)
		t.Fatalf("CallTool(%s) returned tool error: %s", name, text.Text)
	}
	text, ok := result.Content[0].(*sdk.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): unexpected content type %T", name, result.Content[0])
	}
	return text.Text
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestListToolsExposesFullToolset(t *testing.T) {
	session := newTestSession(t)

	result, err := session.ListTools(context.Background(), &sdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	want := map[string]bool{
		"list_available_courts":         false,
		"start_single_court_automation": false,
		"start_multi_court_automation":  false,
		"stop_automation":               false,
		"get_automation_status":         false,
		"trigger_rotation_tick":         false,
	}
	for _, tool := range result.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestListAvailableCourtsTool(t *testing.T) {
	session := newTestSession(t)

	text := callTool(t, session, "list_available_courts", nil)
	var body struct {
		Count  int             `json:"count"`
		Courts []courtapi.Court `json:"courts"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		t.Fatalf("decoding result %q: %v", text, err)
	}
	if body.Count != 2 || len(body.Courts) != 2 {
		t.Errorf("unexpected court listing: %+v", body)
	}
	for _, c := range body.Courts {
		if c.ID == "court-3" {
			t.Error("hidden court leaked into the listing")
		}
	}
}

func TestStartStopStatusToolFlow(t *testing.T) {
	session := newTestSession(t)

	started := callTool(t, session, "start_single_court_automation", map[string]any{
		"court_id":       "court-1",
		"duration_hours": 2,
	})
	if !strings.Contains(started, "sessionId") {
		t.Errorf("start result missing session id: %s", started)
	}

	status := callTool(t, session, "get_automation_status", nil)
	if !strings.Contains(status, `"active": true`) {
		t.Errorf("status should report active: %s", status)
	}

	stopped := callTool(t, session, "stop_automation", nil)
	if !strings.Contains(stopped, `"stopped": true`) {
		t.Errorf("stop result: %s", stopped)
	}
}

func TestStartToolConflictIsToolError(t *testing.T) {
	session := newTestSession(t)

	callTool(t, session, "start_single_court_automation", map[string]any{
		"court_id":       "court-1",
		"duration_hours": 2,
	})

	result, err := session.CallTool(context.Background(), &sdk.CallToolParams{
		Name: "start_single_court_automation",
		Arguments: map[string]any{
			"court_id":       "court-2",
			"duration_hours": 2,
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("expected a tool error for the conflicting start")
	}
}

func TestTriggerRotationTickTool(t *testing.T) {
	session := newTestSession(t)

	text := callTool(t, session, "trigger_rotation_tick", nil)
	if !strings.Contains(text, `"action": "waiting"`) {
		t.Errorf("tick result: %s", text)
	}
}
