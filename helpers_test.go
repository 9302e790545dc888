package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/martok9803/kyc-faceauth-dev/console"
	"github.com/martok9803/kyc-faceauth-dev/models"
	"github.com/martok9803/kyc-faceauth-dev/sandbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	consoleURL string
	sandbox    *sandbox.Service
	store      console.WorkspaceStore
}

// startTestSandbox runs the sandbox API on a random port.
func startTestSandbox(t *testing.T) (*sandbox.Service, string) {
	t.Helper()
	signer, err := sandbox.NewHmacTokenSigner("test-signing-key")
	require.NoError(t, err)

	service := sandbox.NewService(sandbox.Config{}, signer)
	srv := httptest.NewServer(service.Handler())
	t.Cleanup(srv.Close)
	service.SetPublicURL(srv.URL)
	return service, srv.URL
}

// startTestConsole runs the console against apiBaseURL with an in-memory
// workspace store.
func startTestConsole(t *testing.T, apiBaseURL string) *testEnv {
	t.Helper()
	store := console.NewInMemoryWorkspaceStore(console.DefaultWorkspaceTTL)
	registry := prometheus.NewRegistry()
	metrics := newConsoleMetrics(registry)

	state := &ServerState{
		apiBaseURL: apiBaseURL,
		console:    console.New(console.NewHTTPClient(apiBaseURL, 0, metrics.observeRemote)),
		store:      store,
		metrics:    metrics,
		registry:   registry,
	}

	server, err := NewServer(state, ServerConfig{Host: "127.0.0.1"})
	require.NoError(t, err)

	srv := httptest.NewServer(server.server.Handler)
	t.Cleanup(srv.Close)
	return &testEnv{consoleURL: srv.URL, store: store}
}

func startTestEnv(t *testing.T) *testEnv {
	t.Helper()
	service, apiURL := startTestSandbox(t)
	env := startTestConsole(t, apiURL)
	env.sandbox = service
	return env
}

var workspaceMeta = regexp.MustCompile(`<meta name="workspace" content="([0-9a-f]+)">`)

// openPage loads the console page and returns the workspace it was bound to.
func (env *testEnv) openPage(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(env.consoleURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	mustStatus(t, resp, http.StatusOK, body)

	match := workspaceMeta.FindSubmatch(body)
	require.NotNil(t, match, "no workspace in page: %s", body)
	return string(match[1])
}

func (env *testEnv) commandURL(workspace, path string) string {
	return env.consoleURL + "/console/" + workspace + path
}

func postJSON[T any](t *testing.T, url string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	resp, err := http.Post(url, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

// postUpload sends a picked file the way the page does. An empty name sends
// the form without a file part.
func postUpload(t *testing.T, url, name, contentType string, data []byte) (*http.Response, []byte, *models.CommandResponse) {
	t.Helper()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if name != "" {
		part, err := form.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, form.WriteField("contentType", contentType))
	}
	require.NoError(t, form.Close())

	resp, err := http.Post(url, form.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v models.CommandResponse
	_ = json.Unmarshal(respBody, &v)
	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}
