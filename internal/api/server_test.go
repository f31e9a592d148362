package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/aggregator"
	"fleet_tracker/internal/estimator"
	"fleet_tracker/internal/feed"
	"fleet_tracker/internal/refdata"
	"fleet_tracker/internal/stats"
)

func testProvider() *refdata.Memory {
	sectors := []refdata.Sector{
		{ID: 10, Name: "Deep-sea Site 1", Letter: "J", MapID: 1, RankReq: 10, CeruleumTankReq: 3},
		{ID: 15, Name: "Deep-sea Site 2", Letter: "O", MapID: 1, RankReq: 15, CeruleumTankReq: 4},
	}
	routes := []refdata.RouteStats{{RouteName: "JO", GilPerSubDay: 100000}}
	return refdata.NewMemory(nil, sectors, nil, routes)
}

// accountPayload builds one push-schema account reporting a single
// submarine for company 9.
func accountPayload(nickname, world string, returnUnix int64) []byte {
	return []byte(fmt.Sprintf(`{"nickname":%q,"fc_data":{"9":{"name":"Deep Blue","gil":500000}},"characters":[{"cid":101,"name":"Theo Melda","world":%q,"fc_id":9,"ceruleum":90,"repair_kits":60,"num_sub_slots":4,"unlocked_sectors":[10,15],"submarines":[{"name":"Alpha","return_time":%d,"level":60,"current_route_points":[10,15]}]}]}`,
		nickname, world, returnUnix))
}

type stubEvents struct {
	events    []activity.Event
	err       error
	gotLimit  int
	gotFilter activity.Filter
}

func (s *stubEvents) AppendEvents(context.Context, []activity.Event) error { return nil }

func (s *stubEvents) RecentEvents(_ context.Context, limit int, filter activity.Filter) ([]activity.Event, error) {
	s.gotLimit, s.gotFilter = limit, filter
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func (s *stubEvents) FCEvents(_ context.Context, _ string, _, _ int, _ []string) ([]activity.Event, int, error) {
	return s.events, len(s.events), nil
}

type stubArchive struct {
	daily   []stats.DailyStat
	err     error
	gotDays int
	gotFC   string
}

func (a *stubArchive) RecordVoyages(context.Context, []stats.Voyage) error { return nil }

func (a *stubArchive) LatestReturns(context.Context) (map[stats.VoyageKey]int64, error) {
	return nil, nil
}

func (a *stubArchive) History(context.Context, stats.HistoryQuery) ([]stats.Voyage, int, error) {
	return nil, 0, nil
}

func (a *stubArchive) Daily(_ context.Context, days int, fcID string) ([]stats.DailyStat, error) {
	a.gotDays, a.gotFC = days, fcID
	if a.err != nil {
		return nil, a.err
	}
	return a.daily, nil
}

func (a *stubArchive) Summary(context.Context, int) (stats.Summary, error) {
	return stats.Summary{}, nil
}

// newTestServer wires a server over in-memory collaborators. The returned
// manager can be seeded through Ingest before issuing requests.
func newTestServer(cfg Config) (*Server, *aggregator.Manager, *stubEvents, *stubArchive) {
	ref := testProvider()
	manager := aggregator.New(ref, nil, nil, nil, nil)
	events := &stubEvents{}
	archive := &stubArchive{}
	server := New(Deps{
		Manager:   manager,
		Ref:       ref,
		Estimator: estimator.New(ref),
		Events:    events,
		Archive:   archive,
		Processor: feed.NewProcessor(manager, nil, nil),
	}, cfg)
	return server, manager, events, archive
}

func TestHealthEndpoint(t *testing.T) {
	server, manager, _, _ := newTestServer(Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
	if resp["sources"] != float64(0) {
		t.Errorf("expected 0 sources, got %v", resp["sources"])
	}
	if _, ok := resp["last_updated"]; ok {
		t.Error("expected last_updated omitted before any ingest")
	}

	future := time.Now().Add(20 * time.Hour).Unix()
	if _, err := manager.Ingest(context.Background(), "plugin:web", accountPayload("main", "Gilgamesh", future), time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	resp = map[string]any{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["sources"] != float64(1) {
		t.Errorf("expected 1 source, got %v", resp["sources"])
	}
	if lu, ok := resp["last_updated"].(string); !ok || lu == "" {
		t.Error("expected last_updated after ingest")
	}
}

func TestAuthMiddleware(t *testing.T) {
	server, _, _, _ := newTestServer(Config{
		Port:        8080,
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})
	router := server.Router()

	tests := []struct {
		name       string
		path       string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{
			name:       "no key",
			path:       "/api/v1/fleet",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			path:       "/api/v1/fleet",
			apiKey:     "wrong-key",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "valid key via X-API-Key",
			path:       "/api/v1/fleet",
			apiKey:     "test-key-123",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key via Bearer",
			path:       "/api/v1/fleet",
			apiKey:     "another-key",
			keyHeader:  "Authorization",
			wantStatus: http.StatusOK,
		},
		{
			name:       "health needs no key",
			path:       "/api/v1/health",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.apiKey != "" {
				if tt.keyHeader == "Authorization" {
					req.Header.Set("Authorization", "Bearer "+tt.apiKey)
				} else {
					req.Header.Set(tt.keyHeader, tt.apiKey)
				}
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestAuthMiddlewareQueryParam(t *testing.T) {
	server, _, _, _ := newTestServer(Config{
		Port:        8080,
		AuthEnabled: true,
		APIKeys:     []string{"query-key"},
	})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fleet?api_key=query-key", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	server, _, _, _ := newTestServer(Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/fleet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS Allow-Origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Error("expected DELETE in CORS Allow-Methods header")
	}
}

func TestMetricsRoute(t *testing.T) {
	server, _, _, _ := newTestServer(Config{Port: 8080})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "normalize_errors_total") {
		t.Error("expected exposition to include the tracker collectors")
	}
}
