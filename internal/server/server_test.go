package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	srv, err := New(zerolog.Nop(), opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	res := do(t, http.MethodPost, ts.URL+"/api/v1/sessions", "", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", res.StatusCode)
	}
	var body map[string]string
	decode(t, res, &body)
	if body["id"] == "" {
		t.Fatal("no session id returned")
	}
	return body["id"]
}

func sessionURL(ts *httptest.Server, id, path string) string {
	return ts.URL + "/api/v1/sessions/" + id + path
}

func postTeamsJSON(t *testing.T, ts *httptest.Server, id string, names ...string) *http.Response {
	t.Helper()
	var teams []map[string]string
	for _, n := range names {
		teams = append(teams, map[string]string{"name": n})
	}
	body, _ := json.Marshal(map[string]any{"teams": teams})
	return do(t, http.MethodPost, sessionURL(ts, id, "/teams"), "application/json", bytes.NewReader(body))
}

func assertError(t *testing.T, res *http.Response, status int, code string) {
	t.Helper()
	if res.StatusCode != status {
		t.Errorf("status = %d, want %d", res.StatusCode, status)
	}
	var body errorResponse
	decode(t, res, &body)
	if body.Code != code {
		t.Errorf("code = %q, want %q (error %q)", body.Code, code, body.Error)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	res := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestGenerateFlow(t *testing.T) {
	ts := newTestServer(t, Options{MaxWorkload: DefaultMaxWorkload})
	id := createSession(t, ts)

	t.Run("import teams", func(t *testing.T) {
		res := postTeamsJSON(t, ts, id, "A", "B", " ", "C", "D")
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		var body struct {
			Teams []struct{ Name, Zone string }
		}
		decode(t, res, &body)
		if len(body.Teams) != 4 {
			t.Errorf("teams = %d, want 4 (blank name dropped)", len(body.Teams))
		}
	})

	t.Run("generate", func(t *testing.T) {
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json",
			strings.NewReader(`{"system":"rr","days":1,"fields":1,"start_time":"09:00","end_time":"18:00","match_duration":60,"rest":60}`))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		var body generateResponse
		decode(t, res, &body)
		if len(body.Schedule) != 6 {
			t.Fatalf("matches = %d, want 6", len(body.Schedule))
		}
		times := make(map[string]bool)
		for i, m := range body.Schedule {
			if m.MatchID != i+1 {
				t.Errorf("match %d has id %d", i, m.MatchID)
			}
			if m.Day != 1 || m.Field != "c1" {
				t.Errorf("match %d at day %d field %s", m.MatchID, m.Day, m.Field)
			}
			if times[m.Time] {
				t.Errorf("two matches at %s", m.Time)
			}
			times[m.Time] = true
		}
		if body.Teams["A"].Matches != 3 {
			t.Errorf("team A matches = %d, want 3", body.Teams["A"].Matches)
		}
	})

	t.Run("export", func(t *testing.T) {
		res := do(t, http.MethodGet, sessionURL(ts, id, "/export?filename=../copa.pdf"), "", nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		if ct := res.Header.Get("Content-Type"); ct != xlsxContentType {
			t.Errorf("content type = %q", ct)
		}
		if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="copa.xlsx"`) {
			t.Errorf("content disposition = %q", cd)
		}
		f, err := excelize.OpenReader(res.Body)
		if err != nil {
			t.Fatalf("opening exported workbook: %v", err)
		}
		defer f.Close()
		rows, err := f.GetRows("Fixture")
		if err != nil {
			t.Fatalf("GetRows error: %v", err)
		}
		if len(rows) != 7 {
			t.Errorf("fixture rows = %d, want 7", len(rows))
		}
	})

	t.Run("delete", func(t *testing.T) {
		res := do(t, http.MethodDelete, sessionURL(ts, id, ""), "", nil)
		if res.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", res.StatusCode)
		}
		res = do(t, http.MethodGet, sessionURL(ts, id, "/export"), "", nil)
		assertError(t, res, http.StatusNotFound, codeSessionNotFound)
	})
}

func TestImportTeamsMultipart(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := createSession(t, ts)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "equipos.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("Zona;Equipos\nA;Lions\nA;Tigers\nB;Bears\nB;Wolves\n"))
	mw.Close()

	res := do(t, http.MethodPost, sessionURL(ts, id, "/teams"), mw.FormDataContentType(), &buf)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var body struct {
		Teams []struct {
			Name string `json:"name"`
			Zone string `json:"zone"`
		} `json:"teams"`
	}
	decode(t, res, &body)
	if len(body.Teams) != 4 || body.Teams[2].Zone != "B" {
		t.Errorf("teams = %+v", body.Teams)
	}

	res = do(t, http.MethodPost, sessionURL(ts, id, "/parts"), "application/json", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("parts status = %d, want 200", res.StatusCode)
	}
	var parts partsResponse
	decode(t, res, &parts)
	// two zones of two teams, one match each
	if len(parts.Matches) != 2 {
		t.Errorf("matches = %d, want 2", len(parts.Matches))
	}
	if len(parts.Timeslots) != 9 {
		t.Errorf("timeslots = %d, want 9", len(parts.Timeslots))
	}
}

func TestImportTeamsErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := createSession(t, ts)

	t.Run("no file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("other", "x")
		mw.Close()
		res := do(t, http.MethodPost, sessionURL(ts, id, "/teams"), mw.FormDataContentType(), &buf)
		assertError(t, res, http.StatusBadRequest, codeMissingFile)
	})

	t.Run("only blank names", func(t *testing.T) {
		assertError(t, postTeamsJSON(t, ts, id, "", "  "), http.StatusBadRequest, codeNoTeams)
	})

	t.Run("duplicate names", func(t *testing.T) {
		assertError(t, postTeamsJSON(t, ts, id, "Lions", "Lions"), http.StatusBadRequest, codeInvalidTeams)
	})

	t.Run("malformed body", func(t *testing.T) {
		res := do(t, http.MethodPost, sessionURL(ts, id, "/teams"), "application/json", strings.NewReader("{"))
		assertError(t, res, http.StatusBadRequest, codeInvalidRequestBody)
	})

	t.Run("unknown session", func(t *testing.T) {
		assertError(t, postTeamsJSON(t, ts, "missing", "Lions"), http.StatusNotFound, codeSessionNotFound)
	})
}

func TestGenerateErrors(t *testing.T) {
	t.Run("no teams", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json", strings.NewReader(`{}`))
		assertError(t, res, http.StatusBadRequest, codeNoTeams)
	})

	t.Run("inline teams when none imported", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json",
			strings.NewReader(`{"teams":[{"name":"Lions"},{"name":"Tigers"}]}`))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
	})

	t.Run("duplicate once zones are assigned", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		res := do(t, http.MethodPost, sessionURL(ts, id, "/teams"), "application/json",
			strings.NewReader(`{"teams":[{"name":"X"},{"name":"X","zone":"B"},{"name":"Y"}]}`))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("import status = %d, want 200", res.StatusCode)
		}

		res = do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json", strings.NewReader(`{}`))
		assertError(t, res, http.StatusBadRequest, codeInvalidTeams)
		res = do(t, http.MethodPost, sessionURL(ts, id, "/parts"), "application/json", strings.NewReader(`{}`))
		assertError(t, res, http.StatusBadRequest, codeInvalidTeams)
	})

	t.Run("inline duplicate once zones are assigned", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json",
			strings.NewReader(`{"teams":[{"name":"X"},{"name":"X","zone":"B"},{"name":"Y"}]}`))
		assertError(t, res, http.StatusBadRequest, codeInvalidTeams)
	})

	t.Run("infeasible", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		postTeamsJSON(t, ts, id, "Lions", "Tigers")
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json",
			strings.NewReader(`{"end_time":"11:00","rest":600,"home_and_away":true}`))
		if res.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", res.StatusCode)
		}
		var body errorResponse
		decode(t, res, &body)
		if body.Code != codeInfeasible {
			t.Errorf("code = %q, want %q", body.Code, codeInfeasible)
		}
		if !strings.Contains(body.Error, "Tigers vs Lions") {
			t.Errorf("error %q should name the stuck match", body.Error)
		}

		res = do(t, http.MethodGet, sessionURL(ts, id, "/export"), "", nil)
		assertError(t, res, http.StatusConflict, codeNoSchedule)
	})

	t.Run("workload exceeded", func(t *testing.T) {
		ts := newTestServer(t, Options{MaxWorkload: 10})
		id := createSession(t, ts)
		postTeamsJSON(t, ts, id, "A", "B", "C", "D")
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json", strings.NewReader(`{}`))
		assertError(t, res, http.StatusUnprocessableEntity, codeWorkloadExceeded)
	})

	t.Run("invalid config", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		postTeamsJSON(t, ts, id, "Lions", "Tigers")
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json", strings.NewReader(`{"days":0}`))
		assertError(t, res, http.StatusBadRequest, codeInvalidConfig)
	})

	t.Run("teams file rejected", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		id := createSession(t, ts)
		res := do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json", strings.NewReader(`{"teams_file":"/etc/passwd"}`))
		assertError(t, res, http.StatusBadRequest, codeInvalidConfig)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := createSession(t, ts)
	postTeamsJSON(t, ts, id, "Lions", "Tigers")
	do(t, http.MethodPost, sessionURL(ts, id, "/generate"), "application/json", strings.NewReader(`{}`))

	res := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	for _, want := range []string{
		`fixture_schedule_runs_total{outcome="scheduled"} 1`,
		`fixture_matches_scheduled_total 1`,
		`route="/api/v1/sessions/{id}/generate"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "fixture.xlsx"},
		{"copa", "copa.xlsx"},
		{"copa.xlsx", "copa.xlsx"},
		{"copa.pdf", "copa.xlsx"},
		{"../../etc/copa.XLSX", "copa.XLSX"},
	}
	for _, tt := range tests {
		if got := exportFilename(tt.in); got != tt.want {
			t.Errorf("exportFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	id := store.Create()
	if store.Len() != 1 {
		t.Fatalf("len = %d, want 1", store.Len())
	}

	snap, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if snap.ID != id || snap.Result != nil {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := store.Update("missing", func(*Session) {}); err != ErrSessionNotFound {
		t.Errorf("Update missing = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(id); err != ErrSessionNotFound {
		t.Errorf("Get after delete = %v, want ErrSessionNotFound", err)
	}
}
