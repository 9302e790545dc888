package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/martok9803/kyc-faceauth-dev/models"
	"github.com/stretchr/testify/require"
)

// fakeClient is a VerificationClient that records every call.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	pingBody   string
	presign    *models.PresignResponse
	presignErr error
	putErr     error
	puts       []fakePut
	session    *LivenessSession
	startErr   error
	results    json.RawMessage
	resultsFor []string
	submitResp json.RawMessage
	submitted  []models.KycSubmitRequest
}

type fakePut struct {
	url         string
	contentType string
	size        int64
	body        string
}

func (f *fakeClient) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Ping(_ context.Context) (string, error) {
	f.record(OpPing)
	return f.pingBody, nil
}

func (f *fakeClient) Presign(_ context.Context) (*models.PresignResponse, error) {
	f.record(OpPresign)
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	p := *f.presign
	return &p, nil
}

func (f *fakeClient) PutObject(_ context.Context, putURL, contentType string, size int64, body io.Reader) error {
	f.record(OpPutObject)
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.puts = append(f.puts, fakePut{url: putURL, contentType: contentType, size: size, body: string(b)})
	f.mu.Unlock()
	return f.putErr
}

func (f *fakeClient) StartLiveness(_ context.Context) (*LivenessSession, error) {
	f.record(OpLivenessStart)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.session, nil
}

func (f *fakeClient) LivenessResults(_ context.Context, sessionId string) (json.RawMessage, error) {
	f.record(OpLivenessResults)
	f.mu.Lock()
	f.resultsFor = append(f.resultsFor, sessionId)
	f.mu.Unlock()
	return f.results, nil
}

func (f *fakeClient) SubmitKyc(_ context.Context, request models.KycSubmitRequest) (json.RawMessage, error) {
	f.record(OpKycSubmit)
	f.mu.Lock()
	f.submitted = append(f.submitted, request)
	f.mu.Unlock()
	return f.submitResp, nil
}

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(context.Background(), NewInMemoryWorkspaceStore(0))
	require.NoError(t, err)
	return ws
}

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        string
}

// apiRecorder is an httptest server that records the requests it gets and
// answers from per-path handlers.
type apiRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

func newAPIRecorder(t *testing.T, handlers map[string]http.HandlerFunc) *apiRecorder {
	t.Helper()
	rec := &apiRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
		}

		rec.mu.Lock()
		rec.requests = append(rec.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        string(body),
		})
		rec.mu.Unlock()

		handler, ok := handlers[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (a *apiRecorder) URL() string {
	return a.server.URL
}

func (a *apiRecorder) Requests() []recordedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedRequest(nil), a.requests...)
}

func respondJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func respondStatus(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}
