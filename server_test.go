package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/martok9803/kyc-faceauth-dev/console"
	"github.com/martok9803/kyc-faceauth-dev/models"
	"github.com/stretchr/testify/require"
)

// startUnreachableAPI is a remote API that fails the test when called.
func startUnreachableAPI(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestIndex_CreatesFreshWorkspacePerLoad(t *testing.T) {
	env := startTestConsole(t, "https://api.example")

	first := env.openPage(t)
	second := env.openPage(t)
	require.Len(t, first, 32)
	require.NotEqual(t, first, second)

	for _, id := range []string{first, second} {
		ok, err := env.store.Exists(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestIndex_EmbedsApiBase(t *testing.T) {
	env := startTestConsole(t, "https://api.example")

	resp, err := http.Get(env.consoleURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	require.Contains(t, string(body), `<meta name="api-base" content="https://api.example">`)
	require.Contains(t, string(body), `<pre id="out">`)
}

func TestHealth(t *testing.T) {
	env := startTestConsole(t, "https://api.example")

	resp, err := http.Get(env.consoleURL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	mustStatus(t, resp, http.StatusOK, body)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestCommand_UnknownWorkspace(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))

	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL("does-not-exist", "/ping"), nil)
	mustStatus(t, resp, http.StatusNotFound, body)
	require.Equal(t, ERR_UNKNOWN_WORKSPACE, got.Output)
}

func TestUpload_NoFilePicked(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))
	ws := env.openPage(t)

	resp, body, got := postUpload(t, env.commandURL(ws, "/upload/id"), "", "", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.True(t, got.Precondition)
	require.Equal(t, console.MsgPickIdPhoto, got.Output)

	resp, body, got = postUpload(t, env.commandURL(ws, "/upload/selfie"), "", "", nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, console.MsgPickSelfie, got.Output)
}

func TestUpload_NotMultipartCountsAsNoFile(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))
	ws := env.openPage(t)

	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/upload/id"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, console.MsgPickIdPhoto, got.Output)
}

func TestUpload_UnknownRole(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))
	ws := env.openPage(t)

	resp, body, got := postUpload(t, env.commandURL(ws, "/upload/passport"), "a.jpg", "image/jpeg", []byte("x"))
	mustStatus(t, resp, http.StatusBadRequest, body)
	require.NotEmpty(t, got.Error)
}

func TestLivenessResults_NoSession(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))
	ws := env.openPage(t)

	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/liveness/results"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.True(t, got.Precondition)
	require.Equal(t, console.MsgStartSessionFirst, got.Output)
}

func TestKycSubmit_NoSession(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))
	ws := env.openPage(t)

	fields := models.KycFields{IdKey: "k1", SelfieKey: "k2"}
	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/kyc/submit"), fields)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, console.MsgStartSessionFirst, got.Output)
}

func TestKycSubmit_EmptyKeyFields(t *testing.T) {
	env := startTestEnv(t)
	ws := env.openPage(t)

	resp, body, _ := postJSON[models.CommandResponse](t, env.commandURL(ws, "/liveness/start"), nil)
	mustStatus(t, resp, http.StatusOK, body)

	fields := models.KycFields{IdKey: "k1"}
	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/kyc/submit"), fields)
	mustStatus(t, resp, http.StatusOK, body)
	require.True(t, got.Precondition)
	require.Equal(t, console.MsgUploadBothFirst, got.Output)
}

func TestKycSubmit_MalformedBody(t *testing.T) {
	env := startTestConsole(t, startUnreachableAPI(t))
	ws := env.openPage(t)

	resp, err := http.Post(env.commandURL(ws, "/kyc/submit"), "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	mustStatus(t, resp, http.StatusBadRequest, body)
}

func TestFullFlowAgainstSandbox(t *testing.T) {
	env := startTestEnv(t)
	ws := env.openPage(t)

	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/ping"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Contains(t, got.Output, `"service":"sandbox"`)

	resp, body, got = postUpload(t, env.commandURL(ws, "/upload/id"), "id.png", "image/png", []byte("id-bytes"))
	mustStatus(t, resp, http.StatusOK, body)
	idKey := got.State.IdKey
	require.True(t, strings.HasPrefix(idKey, "uploads/"), idKey)
	require.Equal(t, "{\n  \"idKey\": \""+idKey+"\"\n}", got.Output)

	object, ok := env.sandbox.Bucket().Get(idKey)
	require.True(t, ok)
	require.Equal(t, "image/png", object.ContentType)
	require.Equal(t, []byte("id-bytes"), object.Data)

	// the browser reports no type for this file
	resp, body, got = postUpload(t, env.commandURL(ws, "/upload/selfie"), "selfie", "", []byte("selfie-bytes"))
	mustStatus(t, resp, http.StatusOK, body)
	selfieKey := got.State.SelfieKey
	require.NotEmpty(t, selfieKey)
	require.Equal(t, idKey, got.State.IdKey)

	object, ok = env.sandbox.Bucket().Get(selfieKey)
	require.True(t, ok)
	require.Equal(t, console.DefaultContentType, object.ContentType)

	resp, body, got = postJSON[models.CommandResponse](t, env.commandURL(ws, "/liveness/start"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	sessionId := got.State.SessionId
	require.NotEmpty(t, sessionId)
	require.Contains(t, got.Output, `"status": "CREATED"`)

	resp, body, got = postJSON[models.CommandResponse](t, env.commandURL(ws, "/liveness/results"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Contains(t, got.Output, `"sessionId": "`+sessionId+`"`)
	require.Contains(t, got.Output, `"status": "SUCCEEDED"`)

	fields := models.KycFields{IdKey: idKey, SelfieKey: selfieKey}
	resp, body, got = postJSON[models.CommandResponse](t, env.commandURL(ws, "/kyc/submit"), fields)
	mustStatus(t, resp, http.StatusOK, body)
	require.Contains(t, got.Output, `"status": "SUBMITTED"`)
	require.Contains(t, got.Output, `"receipt": "`)

	stateResp, err := http.Get(env.commandURL(ws, "/state"))
	require.NoError(t, err)
	defer stateResp.Body.Close()
	stateBody, err := io.ReadAll(stateResp.Body)
	require.NoError(t, err)
	mustStatus(t, stateResp, http.StatusOK, stateBody)
	require.JSONEq(t, `{"sessionId":"`+sessionId+`","idKey":"`+idKey+`","selfieKey":"`+selfieKey+`"}`, string(stateBody))
}

func TestKycSubmit_ServiceRejects(t *testing.T) {
	env := startTestEnv(t)
	ws := env.openPage(t)

	resp, body, _ := postJSON[models.CommandResponse](t, env.commandURL(ws, "/liveness/start"), nil)
	mustStatus(t, resp, http.StatusOK, body)

	fields := models.KycFields{IdKey: "uploads/never.bin", SelfieKey: "uploads/never-either.bin"}
	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/kyc/submit"), fields)
	mustStatus(t, resp, http.StatusBadGateway, body)
	require.Contains(t, got.Error, "status 422")
	require.True(t, strings.HasPrefix(got.Output, "Error: "), got.Output)
	require.False(t, got.Precondition)
}

func TestUpload_PresignFailureKeepsSlot(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(api.Close)

	env := startTestConsole(t, api.URL)
	ws := env.openPage(t)

	workspace, err := console.OpenWorkspace(context.Background(), env.store, ws)
	require.NoError(t, err)
	require.NoError(t, workspace.SetUploadKey(context.Background(), console.RoleId, "k0"))

	resp, body, got := postUpload(t, env.commandURL(ws, "/upload/id"), "id.jpg", "image/jpeg", []byte("x"))
	mustStatus(t, resp, http.StatusBadGateway, body)
	require.Contains(t, got.Error, "status 500")
	require.Equal(t, "k0", got.State.IdKey)
}

func TestPing_ShowsErrorBody(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down for maintenance"))
	}))
	t.Cleanup(api.Close)

	env := startTestConsole(t, api.URL)
	ws := env.openPage(t)

	resp, body, got := postJSON[models.CommandResponse](t, env.commandURL(ws, "/ping"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	require.Equal(t, "down for maintenance", got.Output)
}

func TestMetricsExposed(t *testing.T) {
	env := startTestEnv(t)
	ws := env.openPage(t)

	resp, body, _ := postJSON[models.CommandResponse](t, env.commandURL(ws, "/ping"), nil)
	mustStatus(t, resp, http.StatusOK, body)
	resp, body, _ = postJSON[models.CommandResponse](t, env.commandURL(ws, "/liveness/results"), nil)
	mustStatus(t, resp, http.StatusOK, body)

	metricsResp, err := http.Get(env.consoleURL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	metrics, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	mustStatus(t, metricsResp, http.StatusOK, metrics)

	require.Contains(t, string(metrics), `kyc_console_commands_total{command="ping",outcome="ok"} 1`)
	require.Contains(t, string(metrics), `kyc_console_commands_total{command="liveness_results",outcome="precondition"} 1`)
	require.Contains(t, string(metrics), `kyc_console_remote_request_duration_seconds_count{operation="ping"} 1`)
}
