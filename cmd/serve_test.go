package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/site-analyzer/internal/analyzer"
	"github.com/sells-group/site-analyzer/internal/fetch"
	"github.com/sells-group/site-analyzer/internal/model"
	"github.com/sells-group/site-analyzer/internal/netguard"
	"github.com/sells-group/site-analyzer/internal/store"
	"github.com/sells-group/site-analyzer/internal/synth"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubResolver struct{}

func (stubResolver) LookupIP(_ context.Context, network, _ string) ([]net.IP, error) {
	if network == "ip6" {
		return nil, &net.DNSError{Err: "no AAAA"}
	}
	return []net.IP{net.ParseIP("93.184.216.34")}, nil
}

type stubTransport struct{}

func (stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

type stubSynth struct{}

func (stubSynth) Summarize(context.Context, string) (*model.StructuredProfile, error) {
	return &model.StructuredProfile{BusinessName: "Acme"}, nil
}

func (stubSynth) MergeInto(_ context.Context, existing *model.StructuredProfile, _ string) (*model.StructuredProfile, error) {
	return existing.Clone(), nil
}

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	guard := netguard.NewURLGuardWithResolver(stubResolver{})
	fetcher := fetch.NewFetcherWithTransport(guard, stubTransport{})
	orch := analyzer.New(st, func(string) synth.Synthesizer { return stubSynth{} }, guard, fetcher)

	return newRouter(st, orch, context.Background()), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
}

func TestRouter_AnalyzeSite_MissingFields(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/analysis/site", map[string]string{"tenant": "t1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/api/analysis/site", map[string]string{"url": "https://acme.test"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_AnalyzeSite_PreflightRejection(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/analysis/site", map[string]string{
		"tenant": "t1",
		"url":    "http://localhost:8080/admin",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "blocked_host", resp["kind"])
	// Kind description only, no internal detail.
	assert.NotContains(t, strings.ToLower(resp["error"]), "localhost")
}

func TestRouter_AnalyzeSite_AcceptedAndCompletes(t *testing.T) {
	r, st := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/analysis/site", map[string]string{
		"tenant": "t1",
		"url":    "https://acme.test",
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])

	// The run is asynchronous; poll for the terminal state.
	deadline := time.Now().Add(10 * time.Second)
	for {
		rec, err := st.GetProfile(context.Background(), "t1")
		require.NoError(t, err)
		if rec != nil && (rec.Status == model.StatusCompleted || rec.Status == model.StatusFailed) {
			assert.Equal(t, model.StatusCompleted, rec.Status)
			require.NotNil(t, rec.Profile)
			assert.Equal(t, "Acme", rec.Profile.BusinessName)
			break
		}
		require.True(t, time.Now().Before(deadline), "analysis did not finish")
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRouter_AnalyzePages_Validation(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/api/analysis/pages", map[string]any{
		"tenant": "t1",
		"urls":   []string{},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/api/analysis/pages", map[string]any{
		"tenant": "t1",
		"urls":   []string{"https://acme.test", "ftp://acme.test"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "disallowed_protocol", resp["kind"])
}

func TestRouter_GetAnalysis(t *testing.T) {
	r, st := newTestRouter(t)

	rr := doJSON(t, r, http.MethodGet, "/api/analysis/t1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	status := model.StatusCompleted
	require.NoError(t, st.UpsertProfile(context.Background(), "t1", store.ProfilePatch{
		Status:  &status,
		Profile: &model.StructuredProfile{BusinessName: "Acme"},
	}))

	rr = doJSON(t, r, http.MethodGet, "/api/analysis/t1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var rec model.AnalysisRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, model.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Profile)
	assert.Equal(t, "Acme", rec.Profile.BusinessName)
}

func TestRouter_GetAnalyzedPages(t *testing.T) {
	r, st := newTestRouter(t)

	require.NoError(t, st.AppendAnalyzedPage(context.Background(), "t1", "https://acme.test"))
	require.NoError(t, st.AppendAnalyzedPage(context.Background(), "t1", "https://acme.test/about"))

	rr := doJSON(t, r, http.MethodGet, "/api/analysis/t1/pages", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var pages []model.AnalyzedPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pages))
	assert.Len(t, pages, 2)
}

func TestRouter_DeleteAnalysis(t *testing.T) {
	r, st := newTestRouter(t)

	status := model.StatusCompleted
	require.NoError(t, st.UpsertProfile(context.Background(), "t1", store.ProfilePatch{Status: &status}))

	rr := doJSON(t, r, http.MethodDelete, "/api/analysis/t1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rec, err := st.GetProfile(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestShutdownOnDone_DrainsInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		shutdownOnDone(ctx, srv, 5*time.Second)
		close(done)
	}()

	type result struct {
		status int
		err    error
	}
	results := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			results <- result{err: err}
			return
		}
		resp.Body.Close()
		results <- result{status: resp.StatusCode}
	}()

	// Let the request reach the handler, trigger shutdown while it is
	// still in flight, then release the handler.
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case res := <-results:
		require.NoError(t, res.err, "in-flight request must survive shutdown")
		assert.Equal(t, http.StatusOK, res.status)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}
	<-done
}
