package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swexcamp/adventd/internal/api"
	"github.com/swexcamp/adventd/internal/feed"
	"github.com/swexcamp/adventd/internal/registry"
	"github.com/swexcamp/adventd/internal/testutil"
	"github.com/swexcamp/adventd/internal/timing"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T) (*http.Client, *fakeClock) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	reg := registry.NewSQLRegistry(db)
	clock := &fakeClock{now: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	server := &api.Server{
		Registry:   reg,
		Timer:      timing.NewTimer(reg, timing.WithClock(clock.Now)),
		Feed:       feed.NewBroadcaster(),
		Log:        log,
		UserToken:  userToken,
		AdminToken: adminToken,
	}
	return testutil.NewInProcessClient(server.Handler()), clock
}

func doJSON(t *testing.T, client *http.Client, method, path, token string, body string, out any) *http.Response {
	t.Helper()
	req := testutil.NewRequest(method, path, []byte(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil {
		data, err := testutil.ReadAll(resp)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, data, err)
		}
	} else {
		_, _ = testutil.ReadAll(resp)
	}
	return resp
}

func createAgent(t *testing.T, client *http.Client, name string) api.AgentCreatedDTO {
	t.Helper()
	var created api.AgentCreatedDTO
	resp := doJSON(t, client, http.MethodPost, "/api/agent", userToken,
		fmt.Sprintf(`{"name":%q}`, name), &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create agent: status %d", resp.StatusCode)
	}
	return created
}

func createSimpleTask(t *testing.T, client *http.Client, name, solution string) string {
	t.Helper()
	var id string
	resp := doJSON(t, client, http.MethodPost, "/api/task", adminToken,
		fmt.Sprintf(`{"name":%q,"taskType":{"SimpleTask":{"description":"d"}},"solution":%q}`, name, solution), &id)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	return id
}

func TestHealthIsPublic(t *testing.T) {
	client, _ := newTestServer(t)
	resp := doJSON(t, client, http.MethodGet, "/api/health", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
}

func TestBearerGate(t *testing.T) {
	client, _ := newTestServer(t)

	resp := doJSON(t, client, http.MethodGet, "/api/agent", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", resp.StatusCode)
	}
	resp = doJSON(t, client, http.MethodGet, "/api/agent", "wrong", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", resp.StatusCode)
	}
	// task creation is admin-only
	resp = doJSON(t, client, http.MethodPost, "/api/task", userToken,
		`{"name":"T","taskType":{"SimpleTask":{"description":"d"}},"solution":"x"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("user token on admin route: status %d, want 401", resp.StatusCode)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	client, _ := newTestServer(t)

	long := strings.Repeat("x", 65)
	resp := doJSON(t, client, http.MethodPost, "/api/agent", userToken,
		fmt.Sprintf(`{"name":%q}`, long), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized name: status %d, want 400", resp.StatusCode)
	}
	resp = doJSON(t, client, http.MethodPost, "/api/agent", userToken, `{}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing name: status %d, want 400", resp.StatusCode)
	}
}

func TestAgentTokenNeverListed(t *testing.T) {
	client, _ := newTestServer(t)
	created := createAgent(t, client, "A1")
	if created.Token == "" {
		t.Fatal("creation response must carry the token")
	}

	var listed []map[string]any
	doJSON(t, client, http.MethodGet, "/api/agent", userToken, "", &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(listed))
	}
	if _, ok := listed[0]["token"]; ok {
		t.Fatal("token leaked in agent listing")
	}

	var single map[string]any
	doJSON(t, client, http.MethodGet, "/api/agent/"+created.ID, userToken, "", &single)
	if _, ok := single["token"]; ok {
		t.Fatal("token leaked in agent read")
	}
}

func TestOpenTaskStripsSolution(t *testing.T) {
	client, _ := newTestServer(t)
	agent := createAgent(t, client, "A1")
	taskID := createSimpleTask(t, client, "T1", "secret")

	var task map[string]any
	resp := doJSON(t, client, http.MethodGet,
		"/api/agent/"+agent.ID+"/task/"+taskID+"?token="+agent.Token, userToken, "", &task)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open task: status %d", resp.StatusCode)
	}
	if _, ok := task["solution"]; ok {
		t.Fatal("solution leaked to agent")
	}
	if task["name"] != "T1" {
		t.Fatalf("unexpected task name %v", task["name"])
	}
}

func TestOpenTaskRejectsWrongAgentToken(t *testing.T) {
	client, _ := newTestServer(t)
	agent := createAgent(t, client, "A1")
	taskID := createSimpleTask(t, client, "T1", "x")

	resp := doJSON(t, client, http.MethodGet,
		"/api/agent/"+agent.ID+"/task/"+taskID+"?token=wrong", userToken, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong agent token: status %d, want 401", resp.StatusCode)
	}
}

func TestCheckWithoutOpenFails(t *testing.T) {
	client, _ := newTestServer(t)
	agent := createAgent(t, client, "A1")
	taskID := createSimpleTask(t, client, "T1", "x")

	resp := doJSON(t, client, http.MethodPost,
		"/api/agent/"+agent.ID+"/task/"+taskID+"/check?token="+agent.Token, userToken,
		`{"solution":"x"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("check before open: status %d, want 400", resp.StatusCode)
	}
}

func TestEndToEndScenario(t *testing.T) {
	client, clock := newTestServer(t)

	taskID := createSimpleTask(t, client, "T1", "x")
	agent := createAgent(t, client, "A1")

	// open at t=0
	resp := doJSON(t, client, http.MethodGet,
		"/api/agent/"+agent.ID+"/task/"+taskID+"?token="+agent.Token, userToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open: status %d", resp.StatusCode)
	}

	// wrong submission: correct=false, nothing completed
	var check api.CheckResponseDTO
	doJSON(t, client, http.MethodPost,
		"/api/agent/"+agent.ID+"/task/"+taskID+"/check?token="+agent.Token, userToken,
		`{"solution":"wrong"}`, &check)
	if check.Correct {
		t.Fatal("wrong solution marked correct")
	}

	// trailing whitespace must not match either
	doJSON(t, client, http.MethodPost,
		"/api/agent/"+agent.ID+"/task/"+taskID+"/check?token="+agent.Token, userToken,
		`{"solution":"x "}`, &check)
	if check.Correct {
		t.Fatal("padded solution marked correct")
	}

	clock.Advance(1200 * time.Millisecond)
	doJSON(t, client, http.MethodPost,
		"/api/agent/"+agent.ID+"/task/"+taskID+"/check?token="+agent.Token, userToken,
		`{"solution":"x"}`, &check)
	if !check.Correct {
		t.Fatal("correct solution marked wrong")
	}

	var statuses []api.TaskStatusDTO
	doJSON(t, client, http.MethodGet,
		"/api/agent/"+agent.ID+"/task?token="+agent.Token, userToken, "", &statuses)
	if len(statuses) != 1 {
		t.Fatalf("expected 1 task, got %d", len(statuses))
	}
	if !statuses[0].Completed || statuses[0].Time == nil {
		t.Fatalf("task not reported completed: %+v", statuses[0])
	}

	var board []api.LeaderboardEntryDTO
	doJSON(t, client, http.MethodGet, "/api/leaderboard", "", "", &board)
	if len(board) != 1 || board[0].Completed != 1 || board[0].TotalBestTimeMS != 1200 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}
}

func TestDeleteTaskIsAdminOnlyAndLeavesOrphans(t *testing.T) {
	client, _ := newTestServer(t)
	agent := createAgent(t, client, "A1")
	taskID := createSimpleTask(t, client, "T1", "x")

	doJSON(t, client, http.MethodGet,
		"/api/agent/"+agent.ID+"/task/"+taskID+"?token="+agent.Token, userToken, "", nil)

	resp := doJSON(t, client, http.MethodDelete, "/api/task/"+taskID, adminToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete task: status %d", resp.StatusCode)
	}

	// the orphaned completion does not break the listing
	var statuses []api.TaskStatusDTO
	resp = doJSON(t, client, http.MethodGet,
		"/api/agent/"+agent.ID+"/task?token="+agent.Token, userToken, "", &statuses)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list after delete: status %d", resp.StatusCode)
	}
	if len(statuses) != 0 {
		t.Fatalf("deleted task still listed: %+v", statuses)
	}
}

func TestAgentUpdateAndDeleteRequireOwnToken(t *testing.T) {
	client, _ := newTestServer(t)
	agent := createAgent(t, client, "A1")

	resp := doJSON(t, client, http.MethodPatch, "/api/agent/"+agent.ID, userToken,
		`{"token":"wrong","name":"B1"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("update with wrong token: status %d, want 401", resp.StatusCode)
	}

	var updated api.AgentDTO
	resp = doJSON(t, client, http.MethodPatch, "/api/agent/"+agent.ID, userToken,
		fmt.Sprintf(`{"token":%q,"name":"B1"}`, agent.Token), &updated)
	if resp.StatusCode != http.StatusOK || updated.Name != "B1" {
		t.Fatalf("update: status %d name %q", resp.StatusCode, updated.Name)
	}

	resp = doJSON(t, client, http.MethodDelete, "/api/agent/"+agent.ID, userToken,
		fmt.Sprintf(`{"token":%q}`, agent.Token), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp = doJSON(t, client, http.MethodGet, "/api/agent/"+agent.ID, userToken, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("read deleted agent: status %d, want 404", resp.StatusCode)
	}
}

func TestUnknownIDsAre404(t *testing.T) {
	client, _ := newTestServer(t)
	const ghost = "0190d8f0-0000-7000-8000-000000000000"

	resp := doJSON(t, client, http.MethodGet, "/api/agent/"+ghost, userToken, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("read ghost agent: status %d, want 404", resp.StatusCode)
	}
	resp = doJSON(t, client, http.MethodDelete, "/api/task/"+ghost, adminToken, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete ghost task: status %d, want 404", resp.StatusCode)
	}
}
