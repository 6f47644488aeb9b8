package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flexinfer/agentmarket/internal/attachments"
	"github.com/flexinfer/agentmarket/internal/catalog"
	"github.com/flexinfer/agentmarket/internal/config"
	"github.com/flexinfer/agentmarket/internal/execution"
	"github.com/flexinfer/agentmarket/internal/flowstore"
	"github.com/flexinfer/agentmarket/internal/session"
	"github.com/flexinfer/agentmarket/internal/validator"
)

type testAPI struct {
	server      *httptest.Server
	handlers    *Handlers
	catalog     *catalog.MemoryCatalog
	flows       *flowstore.MemoryStore
	sessions    *session.Manager
	attachments *attachments.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	v, err := validator.New()
	if err != nil {
		t.Fatalf("validator.New() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.NewMemoryCatalogWithDefaults()
	flows := flowstore.NewMemoryStore()
	store := attachments.NewMemoryStore()
	sessions := session.NewManager(&session.Config{
		EventMaxLen: 100,
		Machine:     &execution.Config{ProcessingDelay: time.Millisecond},
	}, logger, execution.WithAgents(cat))

	cfg := &config.Config{
		CORSOrigins:       []string{"http://localhost:3000"},
		AttachmentMaxSize: 1024,
	}
	h := NewHandlers(Deps{
		Catalog:     cat,
		Flows:       flows,
		Sessions:    sessions,
		Attachments: store,
		Validator:   v,
	}, cfg, logger)

	srv := httptest.NewServer(NewServer(h).Router())
	t.Cleanup(func() {
		srv.Close()
		sessions.Close(context.Background())
	})

	return &testAPI{
		server:      srv,
		handlers:    h,
		catalog:     cat,
		flows:       flows,
		sessions:    sessions,
		attachments: store,
	}
}

// do sends a JSON request and decodes a JSON response into out when set.
func (a *testAPI) do(t *testing.T, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func twoStepGraph() map[string]interface{} {
	return map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"id": "a", "agent": map[string]interface{}{"id": "1", "name": "SEO Optimizer"}},
			{"id": "b", "agent": map[string]interface{}{"id": "2", "name": "Meeting Summarizer"}},
		},
		"edges": []map[string]interface{}{
			{"id": "e1", "source": "a", "target": "b"},
		},
	}
}

func oneStepGraph() map[string]interface{} {
	return map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"id": "only", "agent": map[string]interface{}{"id": "1"}},
		},
	}
}
