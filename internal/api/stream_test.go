package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// readSSE returns the next event from an SSE stream, skipping comments.
func readSSE(t *testing.T, r *bufio.Reader) *types.Event {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var evt types.Event
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				t.Fatalf("decode SSE data %q: %v", data, err)
			}
			return &evt
		}
	}
}

func TestStreamEventsReplayAndEnd(t *testing.T) {
	a := newTestAPI(t)
	id := a.createSession(t)
	expectStatus(t, a.do(t, "POST", "/api/v1/sessions/"+id+"/start",
		map[string]interface{}{"graph": twoStepGraph()}, nil), http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", a.server.URL+"/api/v1/sessions/"+id+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	want := []types.EventType{types.EventTypeHello, types.EventTypeRunStarted, types.EventTypePromptOpened}
	var last *types.Event
	for _, typ := range want {
		last = readSSE(t, r)
		if last.Type != typ {
			t.Fatalf("event type = %s, want %s", last.Type, typ)
		}
		if last.SessionID != id {
			t.Errorf("event session = %q, want %q", last.SessionID, id)
		}
	}

	expectStatus(t, a.do(t, "DELETE", "/api/v1/sessions/"+id, nil, nil), http.StatusNoContent)
	for {
		evt := readSSE(t, r)
		if evt.Type == types.EventTypeStreamEnd {
			break
		}
		if evt.Type != types.EventTypeRunStopped {
			t.Fatalf("unexpected event %s before stream end", evt.Type)
		}
	}
}

func TestStreamEventsResume(t *testing.T) {
	a := newTestAPI(t)
	id := a.createSession(t)
	expectStatus(t, a.do(t, "POST", "/api/v1/sessions/"+id+"/start",
		map[string]interface{}{"graph": twoStepGraph()}, nil), http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", a.server.URL+"/api/v1/sessions/"+id+"/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events error = %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	if evt := readSSE(t, r); evt.Type != types.EventTypeHello {
		t.Fatalf("first event = %s, want hello", evt.Type)
	}
	if evt := readSSE(t, r); evt.Type != types.EventTypePromptOpened || evt.ID != "2" {
		t.Fatalf("resumed event = %s/%s, want prompt_opened/2", evt.Type, evt.ID)
	}
}

func TestStreamEventsUnknownSession(t *testing.T) {
	a := newTestAPI(t)
	expectStatus(t, a.do(t, "GET", "/api/v1/sessions/missing/events", nil, nil), http.StatusNotFound)
}

func TestServeWS(t *testing.T) {
	a := newTestAPI(t)
	id := a.createSession(t)

	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/api/v1/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() types.Event {
		t.Helper()
		var evt types.Event
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return evt
	}

	if evt := read(); evt.Type != types.EventTypeHello {
		t.Fatalf("first event = %s, want hello", evt.Type)
	}

	expectStatus(t, a.do(t, "POST", "/api/v1/sessions/"+id+"/start",
		map[string]interface{}{"graph": oneStepGraph()}, nil), http.StatusOK)
	if evt := read(); evt.Type != types.EventTypeRunStarted {
		t.Fatalf("event = %s, want run_started", evt.Type)
	}
	if evt := read(); evt.Type != types.EventTypePromptOpened || evt.NodeID != "only" {
		t.Fatalf("event = %s/%s, want prompt_opened/only", evt.Type, evt.NodeID)
	}

	expectStatus(t, a.do(t, "DELETE", "/api/v1/sessions/"+id, nil, nil), http.StatusNoContent)
	for {
		evt := read()
		if evt.Type == types.EventTypeStreamEnd {
			break
		}
	}
}

func TestServeWSRejectsForeignOrigin(t *testing.T) {
	a := newTestAPI(t)
	id := a.createSession(t)

	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/api/v1/sessions/" + id + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", resp)
	}
}
