package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/salsowa/smarthome-core/internal/audit"
	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
	"github.com/salsowa/smarthome-core/internal/infrastructure/logging"
	"github.com/salsowa/smarthome-core/internal/latest"
	"github.com/salsowa/smarthome-core/internal/telemetry"
)

// testServer creates a Server over a fresh store whose device payloads are
// written to a real in-process latest-value cache.
func testServer(t *testing.T, mutate ...func(*Deps)) (*Server, *hierarchy.Store) {
	t.Helper()

	cache, err := latest.Open(context.Background(), config.Default().Cache)
	if err != nil {
		t.Fatalf("latest.Open() error: %v", err)
	}
	t.Cleanup(func() { cache.Close(context.Background()) })

	store := hierarchy.NewStore()
	store.SetLatestWriter(cache, time.Second)

	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.ServerTimeouts{
				Read:  5 * time.Second,
				Write: 5 * time.Second,
				Idle:  5 * time.Second,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30 * time.Second,
			PongTimeout:    10 * time.Second,
		},
		Logger:  logging.Discard(),
		Store:   store,
		Latest:  cache,
		Version: "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return srv, store
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// decode unmarshals a response body, failing the test on error.
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code, message string) {
	t.Helper()
	expectStatus(t, w, status)
	e := decode[Error](t, w)
	if e.Status != status || e.Code != code {
		t.Errorf("error = %+v, want status %d code %q", e, status, code)
	}
	if message != "" && e.Message != message {
		t.Errorf("message = %q, want %q", e.Message, message)
	}
}

// ─── Health & Middleware ───────────────────────────────────────────

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]HealthChecker{
			"cache": checkFunc(func(context.Context) error { return nil }),
		}, http.StatusOK, "ok"},
		{"one failing", map[string]HealthChecker{
			"cache": checkFunc(func(context.Context) error { return nil }),
			"mqtt":  checkFunc(func(context.Context) error { return errors.New("not connected") }),
		}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, func(d *Deps) { d.HealthChecks = tt.checks })
			w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
			expectStatus(t, w, tt.wantStatus)

			resp := decode[map[string]any](t, w)
			if resp["status"] != tt.wantBody || resp["version"] != "test" {
				t.Errorf("health = %v", resp)
			}
			checks, _ := resp["checks"].(map[string]any)
			if len(checks) != len(tt.checks) {
				t.Errorf("checks = %v", checks)
			}
			if tt.wantBody == "degraded" && checks["mqtt"] != "not connected" {
				t.Errorf("mqtt check = %v", checks["mqtt"])
			}
		})
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	w := do(t, router, http.MethodGet, "/api/v1/health", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})
	router := srv.Handler()

	tests := []struct {
		origin string
		want   string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", nil)
	expectError(t, w, http.StatusInternalServerError, ErrCodeInternal, "")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	expectError(t, do(t, router, http.MethodGet, "/api/v1/nope", nil), http.StatusNotFound, ErrCodeNotFound, "route not found")
	expectError(t, do(t, router, http.MethodPost, "/api/v1/health", nil), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "")
}

func TestTrailingSlashIsIgnored(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	w := do(t, router, http.MethodPost, "/api/v1/users/", map[string]any{"name": "Alice", "email": "alice@example.com"})
	expectStatus(t, w, http.StatusCreated)
	u := decode[hierarchy.User](t, w)

	expectStatus(t, do(t, router, http.MethodGet, "/api/v1/users/"+u.ID+"/", nil), http.StatusOK)
	expectStatus(t, do(t, router, http.MethodGet, "/api/v1/users/", nil), http.StatusOK)
}

// ─── Users ─────────────────────────────────────────────────────────

func TestUsers_CRUD(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	w := do(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "Alice", "email": "alice@example.com"})
	expectStatus(t, w, http.StatusCreated)
	alice := decode[hierarchy.User](t, w)
	if alice.ID == "" || alice.Name != "Alice" {
		t.Fatalf("created user = %+v", alice)
	}

	w = do(t, router, http.MethodGet, "/api/v1/users/"+alice.ID, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.User](t, w); got != alice {
		t.Errorf("read-after-create = %+v, want %+v", got, alice)
	}

	// Merge: email untouched.
	w = do(t, router, http.MethodPatch, "/api/v1/users/"+alice.ID, map[string]any{"name": "Alicia"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.User](t, w); got.Name != "Alicia" || got.Email != "alice@example.com" {
		t.Errorf("patched user = %+v", got)
	}

	// PUT merges the same way.
	w = do(t, router, http.MethodPut, "/api/v1/users/"+alice.ID, map[string]any{"email": "a@example.com"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.User](t, w); got.Name != "Alicia" || got.Email != "a@example.com" {
		t.Errorf("put user = %+v", got)
	}

	w = do(t, router, http.MethodGet, "/api/v1/users", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[struct {
		Users []hierarchy.User `json:"users"`
		Count int              `json:"count"`
	}](t, w)
	if list.Count != 1 || len(list.Users) != 1 {
		t.Errorf("list = %+v", list)
	}

	w = do(t, router, http.MethodDelete, "/api/v1/users/"+alice.ID, nil)
	expectStatus(t, w, http.StatusOK)
	del := decode[deleteResponse](t, w)
	if del.ID != alice.ID || del.Message != "User "+alice.ID+" deleted" {
		t.Errorf("delete response = %+v", del)
	}

	expectError(t, do(t, router, http.MethodGet, "/api/v1/users/"+alice.ID, nil), http.StatusNotFound, ErrCodeNotFound, "User not found")
}

func TestUsers_BadRequests(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/api/v1/users", `{"name":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"wrong type", http.MethodPost, "/api/v1/users", `{"name":42}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"trailing object", http.MethodPost, "/api/v1/users", `{"name":"A","email":"a@b.c"}{"id":"x"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"trailing brace", http.MethodPost, "/api/v1/users", `{"name":"A","email":"a@b.c"}}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"null id", http.MethodPost, "/api/v1/users", `{"id":null,"name":"A","email":"a@b.c"}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing email", http.MethodPost, "/api/v1/users", map[string]any{"name": "Bob"}, http.StatusBadRequest, ErrCodeValidation},
		{"caller id", http.MethodPost, "/api/v1/users", map[string]any{"id": "usr-x", "name": "Bob", "email": "b@example.com"}, http.StatusBadRequest, ErrCodeValidation},
		{"unknown user update", http.MethodPatch, "/api/v1/users/non-existing-id", map[string]any{"name": "X"}, http.StatusNotFound, ErrCodeNotFound},
		{"unknown user delete", http.MethodDelete, "/api/v1/users/non-existing-id", nil, http.StatusNotFound, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, do(t, router, tt.method, tt.path, tt.body), tt.status, tt.code, "")
		})
	}

	if n := len(srv.store.ListUsers(context.Background())); n != 0 {
		t.Errorf("users after failed requests = %d, want 0", n)
	}
}

func TestBodyTooLarge(t *testing.T) {
	srv, _ := testServer(t)
	big := `{"name":"` + strings.Repeat("a", maxRequestBodySize) + `"}`

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/users", big)
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "request body too large")
}

// ─── Hierarchy ─────────────────────────────────────────────────────

// TestScenario walks the user and house → floor → room → device lifecycle
// end to end, including the cascade on floor delete.
func TestScenario(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	expectStatus(t, do(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "Alice", "email": "alice@example.com"}), http.StatusCreated)
	expectError(t, do(t, router, http.MethodGet, "/api/v1/users/non-existing-id", nil), http.StatusNotFound, ErrCodeNotFound, "User not found")

	w := do(t, router, http.MethodPost, "/api/v1/houses", map[string]any{"name": "Smart Home"})
	expectStatus(t, w, http.StatusCreated)
	house := decode[hierarchy.House](t, w)

	base := "/api/v1/houses/" + house.ID
	w = do(t, router, http.MethodPost, base+"/floors", map[string]any{"name": "Ground"})
	expectStatus(t, w, http.StatusCreated)
	floor := decode[hierarchy.Floor](t, w)

	floorPath := base + "/floors/" + floor.ID
	w = do(t, router, http.MethodPost, floorPath+"/rooms", map[string]any{"name": "Kitchen"})
	expectStatus(t, w, http.StatusCreated)
	room := decode[hierarchy.Room](t, w)

	roomPath := floorPath + "/rooms/" + room.ID
	w = do(t, router, http.MethodPost, roomPath+"/devices", map[string]any{
		"name": "Thermostat", "type": "thermostat", "data": map[string]any{"temperature": 21.5},
	})
	expectStatus(t, w, http.StatusCreated)
	dev := decode[hierarchy.Device](t, w)
	devPath := roomPath + "/devices/" + dev.ID

	w = do(t, router, http.MethodGet, devPath, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.Device](t, w); got.Name != "Thermostat" || got.Data["temperature"] != 21.5 {
		t.Errorf("device = %+v", got)
	}

	w = do(t, router, http.MethodGet, base, nil)
	expectStatus(t, w, http.StatusOK)
	tree := decode[hierarchy.House](t, w)
	if len(tree.Floors) != 1 || len(tree.Floors[0].Rooms) != 1 || len(tree.Floors[0].Rooms[0].Devices) != 1 {
		t.Fatalf("house tree = %+v", tree)
	}

	w = do(t, router, http.MethodDelete, floorPath, nil)
	expectStatus(t, w, http.StatusOK)
	if del := decode[deleteResponse](t, w); del.Message != "Floor "+floor.ID+" deleted" {
		t.Errorf("delete message = %q", del.Message)
	}

	expectError(t, do(t, router, http.MethodGet, floorPath, nil), http.StatusNotFound, ErrCodeNotFound, "Floor not found")
	expectError(t, do(t, router, http.MethodGet, roomPath, nil), http.StatusNotFound, ErrCodeNotFound, "Floor not found")
	expectError(t, do(t, router, http.MethodGet, devPath, nil), http.StatusNotFound, ErrCodeNotFound, "Floor not found")

	expectStatus(t, do(t, router, http.MethodDelete, base, nil), http.StatusOK)
	expectError(t, do(t, router, http.MethodGet, base, nil), http.StatusNotFound, ErrCodeNotFound, "House not found")
}

func TestNestedCreateAndUpdates(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	w := do(t, router, http.MethodPost, "/api/v1/houses", map[string]any{
		"name":     "Cabin",
		"metadata": map[string]any{"location": "Lake"},
		"floors": []any{map[string]any{
			"name": "Loft",
			"rooms": []any{map[string]any{
				"name":    "Bedroom",
				"devices": []any{map[string]any{"name": "Lamp", "type": "light", "data": map[string]any{"on": true}}},
			}},
		}},
	})
	expectStatus(t, w, http.StatusCreated)
	house := decode[hierarchy.House](t, w)

	f := house.Floors[0]
	r := f.Rooms[0]
	d := r.Devices[0]
	for _, id := range []string{house.ID, f.ID, r.ID, d.ID} {
		if id == "" {
			t.Fatalf("nested entity without id: %+v", house)
		}
	}

	roomPath := "/api/v1/houses/" + house.ID + "/floors/" + f.ID + "/rooms/" + r.ID

	w = do(t, router, http.MethodPatch, roomPath, map[string]any{"name": "Guest Room"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.Room](t, w); got.Name != "Guest Room" || len(got.Devices) != 1 {
		t.Errorf("patched room = %+v", got)
	}

	w = do(t, router, http.MethodPut, roomPath+"/devices/"+d.ID, map[string]any{"data": map[string]any{"on": false, "level": 30}})
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.Device](t, w); got.Name != "Lamp" || got.Data["on"] != false || got.Data["level"] != 30.0 {
		t.Errorf("updated device = %+v", got)
	}

	w = do(t, router, http.MethodPatch, "/api/v1/houses/"+house.ID, map[string]any{"metadata": map[string]any{"description": "Weekend"}})
	expectStatus(t, w, http.StatusOK)
	got := decode[hierarchy.House](t, w)
	if got.Name != "Cabin" || got.Metadata == nil || got.Metadata.Description == nil || *got.Metadata.Description != "Weekend" {
		t.Errorf("patched house = %+v", got)
	}
	if got.Metadata.Location != nil {
		t.Errorf("metadata should be replaced as a whole, location = %v", *got.Metadata.Location)
	}

	w = do(t, router, http.MethodPatch, "/api/v1/houses/"+house.ID+"/floors/"+f.ID, map[string]any{"name": "Attic"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[hierarchy.Floor](t, w); got.Name != "Attic" {
		t.Errorf("patched floor = %+v", got)
	}
}

func TestHierarchy_Rejects(t *testing.T) {
	srv, store := testServer(t)
	router := srv.Handler()

	w := do(t, router, http.MethodPost, "/api/v1/houses", map[string]any{"name": "Home"})
	expectStatus(t, w, http.StatusCreated)
	house := decode[hierarchy.House](t, w)
	base := "/api/v1/houses/" + house.ID

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		status  int
		message string
	}{
		{"nested id", http.MethodPost, "/api/v1/houses",
			map[string]any{"name": "H", "floors": []any{map[string]any{"id": "flr-1", "name": "F"}}},
			http.StatusBadRequest, ""},
		{"floor on missing house", http.MethodPost, "/api/v1/houses/hse-missing/floors", map[string]any{"name": "F"},
			http.StatusNotFound, "House not found"},
		{"room on missing floor", http.MethodPost, base + "/floors/flr-missing/rooms", map[string]any{"name": "R"},
			http.StatusNotFound, "Floor not found"},
		{"device on missing room", http.MethodPost, base + "/floors/flr-missing/rooms/rom-missing/devices",
			map[string]any{"name": "D", "type": "t"}, http.StatusNotFound, "Floor not found"},
		{"device missing type", http.MethodPost, "/api/v1/houses/hse-missing/floors/f/rooms/r/devices",
			map[string]any{"name": "D"}, http.StatusBadRequest, ""},
		{"update id", http.MethodPatch, base, map[string]any{"id": "hse-other"}, http.StatusBadRequest, ""},
		{"blank name", http.MethodPatch, base, map[string]any{"name": " "}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			expectStatus(t, w, tt.status)
			if tt.message != "" {
				if e := decode[Error](t, w); e.Message != tt.message {
					t.Errorf("message = %q, want %q", e.Message, tt.message)
				}
			}
		})
	}

	stats := store.Stats()
	if stats[hierarchy.KindHouse] != 1 || stats[hierarchy.KindFloor] != 0 {
		t.Errorf("store changed by rejected requests: %v", stats)
	}
	if got, _ := store.GetHouse(context.Background(), house.ID); got.Name != "Home" {
		t.Errorf("house name = %q, want Home", got.Name)
	}
}

// ─── Latest ────────────────────────────────────────────────────────

func TestLatest_RecordedOnCreateAndUpdate(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Handler()

	w := do(t, router, http.MethodPost, "/api/v1/houses", map[string]any{
		"name": "Home",
		"floors": []any{map[string]any{"name": "G", "rooms": []any{map[string]any{
			"name": "Hall", "devices": []any{map[string]any{"name": "Sensor", "type": "sensor", "data": map[string]any{"lux": 120}}},
		}}}},
	})
	expectStatus(t, w, http.StatusCreated)
	house := decode[hierarchy.House](t, w)
	dev := house.Floors[0].Rooms[0].Devices[0]

	w = do(t, router, http.MethodGet, "/api/v1/devices/"+dev.ID+"/latest", nil)
	expectStatus(t, w, http.StatusOK)
	entry := decode[latest.Entry](t, w)
	if entry.DeviceID != dev.ID || entry.Data["lux"] != 120.0 || entry.Source != latest.SourceAPI {
		t.Errorf("latest entry = %+v", entry)
	}

	devPath := "/api/v1/houses/" + house.ID + "/floors/" + house.Floors[0].ID + "/rooms/" + house.Floors[0].Rooms[0].ID + "/devices/" + dev.ID
	expectStatus(t, do(t, router, http.MethodPatch, devPath, map[string]any{"data": map[string]any{"lux": 80}}), http.StatusOK)

	w = do(t, router, http.MethodGet, "/api/v1/devices/"+dev.ID+"/latest", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[latest.Entry](t, w); got.Data["lux"] != 80.0 {
		t.Errorf("latest after update = %+v", got)
	}

	// Deleting the device leaves the cache alone.
	expectStatus(t, do(t, router, http.MethodDelete, devPath, nil), http.StatusOK)
	expectStatus(t, do(t, router, http.MethodGet, "/api/v1/devices/"+dev.ID+"/latest", nil), http.StatusOK)
}

type fakeLatest struct {
	entry latest.Entry
	err   error
}

func (f fakeLatest) Get(context.Context, string) (latest.Entry, error) { return f.entry, f.err }

func TestLatest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		reader  LatestReader
		status  int
		code    string
		message string
	}{
		{"miss", fakeLatest{err: latest.ErrNotFound}, http.StatusNotFound, ErrCodeNotFound, "Latest data not found"},
		{"backend down", fakeLatest{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, ErrCodeUnavailable, "latest-value cache unavailable"},
		{"not configured", nil, http.StatusServiceUnavailable, ErrCodeUnavailable, "latest-value cache not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, func(d *Deps) { d.Latest = tt.reader })
			w := do(t, srv.Handler(), http.MethodGet, "/api/v1/devices/dev-1/latest", nil)
			expectError(t, w, tt.status, tt.code, tt.message)
		})
	}
}

// ─── Audit ─────────────────────────────────────────────────────────

type fakeAuditRepo struct {
	filter audit.Filter
	err    error
}

func (f *fakeAuditRepo) Create(context.Context, *audit.Entry) error { return nil }

func (f *fakeAuditRepo) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{
		Logs:   []audit.Entry{{ID: "aud-1", Action: "create", EntityType: "user", EntityID: "usr-1"}},
		Total:  1,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func TestAudit_List(t *testing.T) {
	repo := &fakeAuditRepo{}
	srv, _ := testServer(t, func(d *Deps) { d.Audit = repo })
	router := srv.Handler()

	w := do(t, router, http.MethodGet, "/api/v1/audit?action=create&entity_type=user&entity_id=usr-1&limit=10&offset=5", nil)
	expectStatus(t, w, http.StatusOK)
	want := audit.Filter{Action: "create", EntityType: "user", EntityID: "usr-1", Limit: 10, Offset: 5}
	if repo.filter != want {
		t.Errorf("filter = %+v, want %+v", repo.filter, want)
	}
	res := decode[audit.ListResult](t, w)
	if res.Total != 1 || res.Logs[0].ID != "aud-1" {
		t.Errorf("result = %+v", res)
	}

	expectError(t, do(t, router, http.MethodGet, "/api/v1/audit?limit=abc", nil), http.StatusBadRequest, ErrCodeBadRequest, "")
	expectError(t, do(t, router, http.MethodGet, "/api/v1/audit?offset=-1", nil), http.StatusBadRequest, ErrCodeBadRequest, "")

	repo.err = errors.New("database is locked")
	expectError(t, do(t, router, http.MethodGet, "/api/v1/audit", nil), http.StatusInternalServerError, ErrCodeInternal, "")
}

func TestAudit_NotConfigured(t *testing.T) {
	srv, _ := testServer(t)
	expectError(t, do(t, srv.Handler(), http.MethodGet, "/api/v1/audit", nil), http.StatusServiceUnavailable, ErrCodeUnavailable, "")
}

// ─── Metrics ───────────────────────────────────────────────────────

type fakeTelemetry struct{}

func (fakeTelemetry) Stats() telemetry.Stats { return telemetry.Stats{Received: 3, Accepted: 2, Unknown: 1} }

func TestPrometheusMetrics(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Telemetry = fakeTelemetry{} })
	router := srv.Handler()

	expectStatus(t, do(t, router, http.MethodPost, "/api/v1/users", map[string]any{"name": "Alice", "email": "alice@example.com"}), http.StatusCreated)
	expectStatus(t, do(t, router, http.MethodGet, "/api/v1/users/usr-missing", nil), http.StatusNotFound)

	w := do(t, router, http.MethodGet, "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	body := w.Body.String()

	for _, want := range []string{
		`smarthome_http_requests_total{method="POST",route="/api/v1/users",status="201"} 1`,
		`smarthome_http_requests_total{method="GET",route="/api/v1/users/{userID}",status="404"} 1`,
		`smarthome_hierarchy_entities{kind="user"} 1`,
		`smarthome_hierarchy_entities{kind="device"} 0`,
		`smarthome_websocket_clients 0`,
		`smarthome_websocket_dropped_events_total 0`,
		`smarthome_telemetry_reports_total{outcome="accepted"} 2`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSystemMetrics(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Telemetry = fakeTelemetry{} })
	router := srv.Handler()
	expectStatus(t, do(t, router, http.MethodPost, "/api/v1/houses", map[string]any{"name": "Home"}), http.StatusCreated)

	w := do(t, router, http.MethodGet, "/api/v1/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	m := decode[SystemMetrics](t, w)
	if m.Version != "test" || m.Entities["house"] != 1 || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Telemetry == nil || m.Telemetry.Received != 3 {
		t.Errorf("telemetry = %+v", m.Telemetry)
	}
	if m.Database != nil {
		t.Errorf("database metrics without a database: %+v", m.Database)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestWebSocket_HierarchyChanges(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL)

	if err := conn.WriteJSON(Frame{Type: FrameSubscribe, ID: "1", Channels: []string{ChannelHierarchyChanged}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := readFrame(t, conn); ack.Type != FrameAck || ack.ID != "1" || len(ack.Channels) != 1 {
		t.Fatalf("subscribe ack = %+v", ack)
	}

	resp, err := http.Post(ts.URL+"/api/v1/users", "application/json", strings.NewReader(`{"name":"Alice","email":"alice@example.com"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	ev := readFrame(t, conn)
	if ev.Type != FrameEvent || ev.Channel != ChannelHierarchyChanged || ev.Time == "" {
		t.Fatalf("event = %+v", ev)
	}
	data, _ := ev.Data.(map[string]any)
	if data["action"] != "create" || data["kind"] != "user" {
		t.Errorf("event data = %v", data)
	}

	if got := srv.Hub().ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestWebSocket_Frames(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL)

	tests := []struct {
		name      string
		send      string
		wantType  string
		wantError string
	}{
		{"ping", `{"type":"ping","id":"p"}`, FramePong, ""},
		{"unknown channel", `{"type":"subscribe","id":"s","channels":["device.state_changed"]}`, FrameError, "unknown channel: device.state_changed"},
		{"no channels", `{"type":"subscribe","id":"s"}`, FrameError, "no channels given"},
		{"unknown type", `{"type":"shout","id":"x"}`, FrameError, "unknown frame type: shout"},
		{"not json", `hello`, FrameError, "invalid JSON frame"},
		{"unsubscribe", `{"type":"unsubscribe","id":"u","channels":["device.data"]}`, FrameAck, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			got := readFrame(t, conn)
			if got.Type != tt.wantType || got.Error != tt.wantError {
				t.Errorf("reply = %+v, want type %q error %q", got, tt.wantType, tt.wantError)
			}
		})
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())

	subscribed := newWSClient(hub, nil)
	other := newWSClient(hub, nil)
	hub.add(subscribed)
	hub.add(other)
	if err := hub.subscribe(subscribed, []string{ChannelDeviceData}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Broadcast(ChannelDeviceData, telemetry.DeviceDataEvent{DeviceID: "dev-1"})
	hub.Broadcast(ChannelHierarchyChanged, hierarchy.Change{Action: hierarchy.ActionCreate})

	if len(subscribed.send) != 1 {
		t.Fatalf("subscribed client queued %d frames, want 1", len(subscribed.send))
	}
	var f Frame
	if err := json.Unmarshal(<-subscribed.send, &f); err != nil || f.Channel != ChannelDeviceData {
		t.Errorf("frame = %+v (%v)", f, err)
	}
	if len(other.send) != 0 {
		t.Error("unsubscribed client received a broadcast")
	}

	hub.unsubscribe(subscribed, []string{ChannelDeviceData})
	hub.Broadcast(ChannelDeviceData, telemetry.DeviceDataEvent{DeviceID: "dev-1"})
	if len(subscribed.send) != 0 {
		t.Error("client still receives after unsubscribe")
	}

	hub.remove(subscribed)
	hub.remove(subscribed)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
	if err := hub.subscribe(subscribed, []string{ChannelDeviceData}); err == nil {
		t.Error("subscribe after remove succeeded")
	}
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	c := &wsClient{id: "slow", hub: hub, send: make(chan []byte, 1), done: make(chan struct{})}
	hub.add(c)
	if err := hub.subscribe(c, []string{ChannelHierarchyChanged}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for range 3 {
		hub.OnChange(context.Background(), hierarchy.Change{Action: hierarchy.ActionDelete, Kind: hierarchy.KindUser, ID: "usr-1"})
	}

	if got := hub.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Store: hierarchy.NewStore()}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without store succeeded")
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start = %v", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
