package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/auth"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

// fakeAPI emulates the service: the bootstrap path plus one handler per
// API endpoint, with hit counting and index-keyed request capture.
type fakeAPI struct {
	t *testing.T

	mu                 sync.Mutex
	bootstrapHits      int
	hits               map[string]int
	handlers           map[string]http.HandlerFunc
	listTopicsRequests []map[string]any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:        t,
		hits:     make(map[string]int),
		handlers: make(map[string]http.HandlerFunc),
	}
}

func (f *fakeAPI) handle(endpoint string, h http.HandlerFunc) {
	f.handlers[endpoint] = h
}

func (f *fakeAPI) hitCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[endpoint]
}

func (f *fakeAPI) serveAPI(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/")
	f.mu.Lock()
	f.hits[endpoint]++
	f.mu.Unlock()

	if r.Header.Get("X-Framework-Xsrf-Token") == "" {
		f.t.Errorf("%s request missing CSRF token header", endpoint)
	}
	if !strings.HasPrefix(r.Header.Get("Authorization"), "SAPISIDHASH ") {
		f.t.Errorf("%s request has malformed Authorization %q", endpoint, r.Header.Get("Authorization"))
	}

	if endpoint == wire.EndpointListTopics && strings.Contains(r.Header.Get("Content-Type"), "json") {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("indexed list_topics request is not valid JSON: %v", err)
		}
		f.mu.Lock()
		f.listTopicsRequests = append(f.listTopicsRequests, req)
		f.mu.Unlock()
	}

	handler, ok := f.handlers[endpoint]
	if !ok {
		f.t.Errorf("unexpected call to endpoint %q", endpoint)
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (f *fakeAPI) newClient(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mole/world", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.bootstrapHits++
		f.mu.Unlock()
		fmt.Fprint(w, `<html><script>window.WIZ_global_data = {"SMqcke":"token-abc"};</script></html>`)
	})
	mux.HandleFunc("/api/", f.serveAPI)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cookies := map[string]string{
		"SID": "a", "HSID": "b", "SSID": "c", "OSID": "d", "COMPASS": "e",
		"SAPISID": "secret",
	}
	session, err := auth.NewManager(cookies, &auth.Config{
		BaseURL:  server.URL,
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return NewClient(session, &Config{BaseURL: server.URL})
}

func topicEntity(id string, sortMicros int64) string {
	return fmt.Sprintf(`[[[["space-1"]], "%s"], %d, null, null, 0, false, []]`, id, sortMicros)
}

func topicsPageBody(anchorMicros int64, containsLast bool, topics ...string) string {
	last := "false"
	if containsLast {
		last = "true"
	}
	return fmt.Sprintf(")]}'\n[[null, [%s], null, \"%d\", %s]]",
		strings.Join(topics, ","), anchorMicros, last)
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}
}

const selfStatusBody = ")]}'\n[[null, [[\"user-1\"]]]]"

func TestCallRetriesOnceOnAuthFailure(t *testing.T) {
	api := newFakeAPI(t)
	calls := 0
	api.handle(wire.EndpointSelfUserStatus, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, selfStatusBody)
	})
	c := api.newClient(t)

	status, err := c.GetSelfUserStatus(context.Background())
	if err != nil {
		t.Fatalf("GetSelfUserStatus() error = %v", err)
	}
	if status.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", status.UserID)
	}
	if calls != 2 {
		t.Errorf("endpoint calls = %d, want 2 (original + one retry)", calls)
	}
	if api.bootstrapHits != 2 {
		t.Errorf("bootstrap hits = %d, want 2 (initial + one re-auth)", api.bootstrapHits)
	}
}

func TestCallSecondAuthFailureSurfaces(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(wire.EndpointSelfUserStatus, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c := api.newClient(t)

	_, err := c.GetSelfUserStatus(context.Background())
	var authError *auth.AuthError
	if !errors.As(err, &authError) {
		t.Fatalf("error = %T (%v), want *auth.AuthError", err, err)
	}
	if got := api.hitCount(wire.EndpointSelfUserStatus); got != 2 {
		t.Errorf("endpoint calls = %d, want exactly 2", got)
	}
}

func TestCallNoRetryOnServerError(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(wire.EndpointSelfUserStatus, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "backend exploded")
	})
	c := api.newClient(t)

	_, err := c.GetSelfUserStatus(context.Background())
	var transportError *TransportError
	if !errors.As(err, &transportError) {
		t.Fatalf("error = %T (%v), want *TransportError", err, err)
	}
	if transportError.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", transportError.StatusCode)
	}
	if got := api.hitCount(wire.EndpointSelfUserStatus); got != 1 {
		t.Errorf("endpoint calls = %d, want 1 (no retry)", got)
	}
}

func TestPresenceAcrossConversations(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(wire.EndpointGetMembers, respond(
		`)]}'`+"\n"+`[[null, [[["user-1"], "Alice"], [["user-2"], "Bob"]]]]`))
	api.handle(wire.EndpointGetUserPresence, respond(
		`)]}'`+"\n"+`[[["user-1"], 1], [["user-2"], 2]]`))
	c := api.newClient(t)

	conversations := []wire.Conversation{
		{ID: "space-1", Kind: wire.KindSpace},
		{ID: "dm-1", Kind: wire.KindDM},
	}
	records, err := c.PresenceAcrossConversations(context.Background(), conversations)
	if err != nil {
		t.Fatalf("PresenceAcrossConversations() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if got := api.hitCount(wire.EndpointGetMembers); got != 2 {
		t.Errorf("member lookups = %d, want 2", got)
	}
	if got := api.hitCount(wire.EndpointGetUserPresence); got != 1 {
		t.Errorf("presence lookups = %d, want 1 (deduplicated batch)", got)
	}
}

func TestPresenceSkipsFailedMemberLookup(t *testing.T) {
	api := newFakeAPI(t)
	api.handle(wire.EndpointGetMembers, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, []byte("dm-broken")) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `)]}'`+"\n"+`[[null, [[["user-1"], "Alice"]]]]`)
	})
	api.handle(wire.EndpointGetUserPresence, respond(
		`)]}'`+"\n"+`[[["user-1"], 1]]`))
	c := api.newClient(t)

	conversations := []wire.Conversation{
		{ID: "space-1", Kind: wire.KindSpace},
		{ID: "dm-broken", Kind: wire.KindDM},
	}
	records, err := c.PresenceAcrossConversations(context.Background(), conversations)
	if err != nil {
		t.Fatalf("one failed member lookup must not fail the batch, got %v", err)
	}
	if len(records) != 1 || records[0].UserID != "user-1" {
		t.Fatalf("records = %+v, want the reachable conversation's member", records)
	}
	if got := api.hitCount(wire.EndpointGetUserPresence); got != 1 {
		t.Errorf("presence lookups = %d, want 1", got)
	}
}
