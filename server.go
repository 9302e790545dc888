package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/martok9803/kyc-faceauth-dev/console"
	"github.com/martok9803/kyc-faceauth-dev/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_WORKSPACE_CREATE = "failed to create workspace"
const ERR_WORKSPACE_LOOKUP = "failed to look up workspace"
const ERR_UNKNOWN_WORKSPACE = "Unknown workspace, reload the page."
const ERR_TEMPLATE = "failed to render console page"

const maxUploadMemory = 32 << 20

type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	UseTls         bool   `json:"use_tls,omitempty" mapstructure:"use_tls"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty" mapstructure:"tls_priv_key_path"`
	TlsCertPath    string `json:"tls_cert_path,omitempty" mapstructure:"tls_cert_path"`
}

type ServerState struct {
	apiBaseURL string
	console    *console.Console
	store      console.WorkspaceStore
	metrics    *consoleMetrics
	registry   *prometheus.Registry
}

type Server struct {
	server *http.Server
	config ServerConfig
	name   string
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "server", s.name, "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "server", s.name, "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server", "server", s.name)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "server", s.name, "error", err)
	} else {
		slog.Info("Server shut down successfully", "server", s.name)
	}
	return err
}

//go:embed web/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	ApiBase   string
	Workspace string
}

// NewServer wires the console page and its command routes.
func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating console server", "host", config.Host, "port", config.Port, "tls", config.UseTls, "api_base", state.apiBaseURL)
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(state.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	ws := router.PathPrefix("/console/{workspace}").Subrouter()
	ws.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		handleState(state, w, r)
	}).Methods(http.MethodGet)
	ws.HandleFunc("/ping", state.command("ping", handlePing)).Methods(http.MethodPost)
	ws.HandleFunc("/upload/{role}", state.command("upload", handleUpload)).Methods(http.MethodPost)
	ws.HandleFunc("/liveness/start", state.command("liveness_start", handleLivenessStart)).Methods(http.MethodPost)
	ws.HandleFunc("/liveness/results", state.command("liveness_results", handleLivenessResults)).Methods(http.MethodPost)
	ws.HandleFunc("/kyc/submit", state.command("kyc_submit", handleKycSubmit)).Methods(http.MethodPost)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handleIndex(state, w, r)
	}).Methods(http.MethodGet)

	slog.Debug("Registered all console routes")

	return newServer("console", router, config), nil
}

func newServer(name string, handler http.Handler, config ServerConfig) *Server {
	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler:           handler,
		Addr:              addr,
		ReadHeaderTimeout: 15 * time.Second,
	}

	slog.Info("Server created successfully", "server", name, "address", addr)
	return &Server{
		server: srv,
		config: config,
		name:   name,
	}
}

// handleIndex serves the console page. Every load gets a new workspace, so a
// reload starts from empty slots.
func handleIndex(state *ServerState, w http.ResponseWriter, r *http.Request) {
	ws, err := console.NewWorkspace(r.Context(), state.store)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_WORKSPACE_CREATE, err)
		return
	}
	slog.Info("Console page served", "workspace", ws.ID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := indexTemplate.Execute(w, indexData{ApiBase: state.apiBaseURL, Workspace: ws.ID}); err != nil {
		slog.Error(ERR_TEMPLATE, "error", err)
	}
}

func handleState(state *ServerState, w http.ResponseWriter, r *http.Request) {
	ws, ok := state.openWorkspace(w, r)
	if !ok {
		return
	}
	snapshot, err := ws.State(r.Context())
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_WORKSPACE_LOOKUP, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, snapshot); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// commandFunc runs one console command and returns the text for the output
// region.
type commandFunc func(c *console.Console, ws *console.Workspace, r *http.Request) (string, error)

// badRequestError is a request the page should never send.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func (state *ServerState) command(name string, fn commandFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer closeRequestBody(r)

		ws, ok := state.openWorkspace(w, r)
		if !ok {
			state.metrics.observeCommand(name, outcomeUnknownWorkspace)
			return
		}

		output, err := fn(state.console, ws, r)

		response := models.CommandResponse{Output: output}
		status := http.StatusOK
		outcome := outcomeOK

		var badRequest *badRequestError
		switch {
		case err == nil:
		case console.IsPrecondition(err):
			response.Output = err.Error()
			response.Precondition = true
			outcome = outcomePrecondition
		case errors.As(err, &badRequest):
			response.Output = "Error: " + err.Error()
			response.Error = err.Error()
			status = http.StatusBadRequest
			outcome = outcomeBadRequest
		default:
			slog.Warn("Console command failed", "command", name, "workspace", ws.ID, "error", err)
			response.Output = "Error: " + err.Error()
			response.Error = err.Error()
			status = http.StatusBadGateway
			outcome = outcomeFailed
		}
		state.metrics.observeCommand(name, outcome)

		snapshot, stateErr := ws.State(r.Context())
		if stateErr != nil {
			slog.Warn("failed to read workspace state", "workspace", ws.ID, "error", stateErr)
		}
		response.State = snapshot

		if err := writeJSON(w, status, response); err != nil {
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
		}
	}
}

func (state *ServerState) openWorkspace(w http.ResponseWriter, r *http.Request) (*console.Workspace, bool) {
	id := mux.Vars(r)["workspace"]
	ws, err := console.OpenWorkspace(r.Context(), state.store, id)
	if errors.Is(err, console.ErrUnknownWorkspace) {
		slog.Debug("Unknown workspace", "workspace", id)
		_ = writeJSON(w, http.StatusNotFound, models.CommandResponse{Output: ERR_UNKNOWN_WORKSPACE, Error: err.Error()})
		return nil, false
	}
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_WORKSPACE_LOOKUP, err)
		return nil, false
	}
	return ws, true
}

func handlePing(c *console.Console, _ *console.Workspace, r *http.Request) (string, error) {
	return c.Ping(r.Context())
}

func handleUpload(c *console.Console, ws *console.Workspace, r *http.Request) (string, error) {
	role, err := console.ParseRole(mux.Vars(r)["role"])
	if err != nil {
		return "", &badRequestError{err: err}
	}

	file, err := pickedFile(r)
	if err != nil {
		return "", &badRequestError{err: err}
	}
	if file != nil {
		defer file.Close()
	}

	var picked *console.File
	if file != nil {
		picked = file.File
	}
	return c.Upload(r.Context(), ws, role, picked)
}

func handleLivenessStart(c *console.Console, ws *console.Workspace, r *http.Request) (string, error) {
	return c.StartLiveness(r.Context(), ws)
}

func handleLivenessResults(c *console.Console, ws *console.Workspace, r *http.Request) (string, error) {
	return c.LivenessResults(r.Context(), ws)
}

func handleKycSubmit(c *console.Console, ws *console.Workspace, r *http.Request) (string, error) {
	var fields models.KycFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return "", &badRequestError{err: fmt.Errorf("decode request body: %w", err)}
	}
	return c.SubmitKyc(r.Context(), ws, fields)
}

type uploadedFile struct {
	*console.File
	io.Closer
}

// pickedFile returns the "file" part of a multipart upload, or nil when the
// operator did not pick one. The optional "contentType" field carries the
// browser's own idea of the type, which is empty when it has none.
func pickedFile(r *http.Request) (*uploadedFile, error) {
	err := r.ParseMultipartForm(maxUploadMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse upload form: %w", err)
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read upload form: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if values, ok := r.MultipartForm.Value["contentType"]; ok && len(values) > 0 {
		contentType = values[0]
	}

	return &uploadedFile{
		File: &console.File{
			Name:        header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Content:     f,
		},
		Closer: f,
	}, nil
}

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	w.WriteHeader(code)
	if _, err := w.Write([]byte(responseBody)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}
