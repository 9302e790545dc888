// Package sandbox is a local stand-in for the remote verification service.
// Uploads land in an in-memory bucket, liveness checks and face comparisons
// are simulated, and every answer has the shape the real service uses.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/martok9803/kyc-faceauth-dev/images"
	"github.com/martok9803/kyc-faceauth-dev/models"
)

const (
	DefaultBucket        = "kyc-dev-uploads"
	DefaultPresignExpiry = 300 * time.Second
	DefaultThreshold     = 80.0
	DefaultAuditTable    = "kyc-dev-sessions"

	// score reported by the simulated face comparison
	simulatedSimilarity = 99.0
	// score reported by the simulated liveness check
	simulatedConfidence = 99.0

	maxObjectSize = 20 << 20
	maxJSONBody   = 1 << 20

	previewSize   = 400
	previewColors = 256
)

const (
	ErrInvalidJSON     = "invalid JSON body"
	ErrMissingSession  = "sessionId is required"
	ErrUnknownSession  = "unknown sessionId"
	ErrMissingKycField = "sessionId, idUrl and selfieUrl are required"
	ErrMissingKeys     = "sourceKey and targetKey are required"
	ErrUnknownObject   = "unknown object"
)

type Config struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	// PublicURL is the base presigned URLs point at. Defaults to http://host:port.
	PublicURL     string        `json:"public_url" mapstructure:"public_url"`
	Bucket        string        `json:"bucket" mapstructure:"bucket"`
	SigningKey    string        `json:"signing_key" mapstructure:"signing_key"`
	PresignExpiry time.Duration `json:"presign_expiry" mapstructure:"presign_expiry"`
	// AuditTable is only reported by /ping and on audit lines; audit entries go to the log.
	AuditTable string `json:"audit_table" mapstructure:"audit_table"`
	// StartWorkflow makes /analyze report a started review workflow.
	StartWorkflow bool `json:"start_workflow" mapstructure:"start_workflow"`
}

func (c Config) Addr() string {
	return fmt.Sprintf("%v:%v", c.Host, c.Port)
}

func (c Config) BaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return fmt.Sprintf("http://%s", c.Addr())
}

type livenessSession struct {
	id     string
	status string
}

type Service struct {
	presignExpiry time.Duration
	bucket        *Bucket
	signer        TokenSigner
	auditTable    string
	startWorkflow bool

	// mutex guards publicURL and sessions
	publicURL string
	sessions  map[string]*livenessSession
	mutex     sync.Mutex
}

func NewService(config Config, signer TokenSigner) *Service {
	bucket := config.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	expiry := config.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	table := config.AuditTable
	if table == "" {
		table = DefaultAuditTable
	}
	return &Service{
		publicURL:     config.BaseURL(),
		presignExpiry: expiry,
		bucket:        NewBucket(bucket),
		signer:        signer,
		auditTable:    table,
		startWorkflow: config.StartWorkflow,
		sessions:      make(map[string]*livenessSession),
	}
}

// SetPublicURL changes the base of the presigned URLs handed out, for when
// the listen address is only known after the server started.
func (s *Service) SetPublicURL(url string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.publicURL = strings.TrimRight(url, "/")
}

func (s *Service) currentPublicURL() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.publicURL
}

func (s *Service) Bucket() *Bucket {
	return s.bucket
}

func (s *Service) Handler() http.Handler {
	router := mux.NewRouter()

	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	router.HandleFunc("/presign-id", s.handlePresign).Methods(http.MethodPost)
	router.HandleFunc("/objects/{key:.+}/preview", s.handlePreview).Methods(http.MethodGet)
	router.HandleFunc("/objects/{key:.+}", s.handlePutObject).Methods(http.MethodPut)
	router.HandleFunc("/liveness/start", s.handleLivenessStart).Methods(http.MethodPost)
	router.HandleFunc("/liveness/results", s.handleLivenessResults).Methods(http.MethodPost)
	router.HandleFunc("/kyc/submit", s.handleKycSubmit).Methods(http.MethodPost)
	router.HandleFunc("/echo", s.handleEcho).Methods(http.MethodPost)
	router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found", "path": r.URL.Path, "method": r.Method})
	})
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = notFound

	return corsMiddleware(router)
}

func (s *Service) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"service":     "sandbox",
		"bucket":      s.bucket.Name,
		"table":       s.auditTable,
		"rekognition": false,
		"utc":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Service) handlePresign(w http.ResponseWriter, r *http.Request) {
	key := fmt.Sprintf("uploads/%s.bin", uuid.NewString())

	token, err := s.signer.CreateUploadToken(key, s.presignExpiry)
	if err != nil {
		slog.Error("failed to sign upload token", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Debug("Issued presigned upload", "key", key)
	writeJSON(w, http.StatusOK, models.PresignResponse{
		Bucket:  s.bucket.Name,
		Key:     key,
		PutURL:  fmt.Sprintf("%s/objects/%s?token=%s", s.currentPublicURL(), key, token),
		Expires: int(s.presignExpiry.Seconds()),
	})
}

func (s *Service) handlePutObject(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)
	key := mux.Vars(r)["key"]

	if err := s.signer.VerifyUploadToken(r.URL.Query().Get("token"), key); err != nil {
		slog.Warn("Rejected upload", "key", key, "error", err)
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxObjectSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	if len(data) > maxObjectSize {
		writeError(w, http.StatusRequestEntityTooLarge, "object too large")
		return
	}

	s.bucket.Put(key, r.Header.Get("Content-Type"), data)
	slog.Info("Stored object", "key", key, "size", len(data), "content_type", r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleLivenessStart(w http.ResponseWriter, r *http.Request) {
	session := &livenessSession{id: uuid.NewString(), status: "CREATED"}

	s.mutex.Lock()
	s.sessions[session.id] = session
	s.mutex.Unlock()

	slog.Info("Liveness session created", "session_id", session.id)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": session.id, "status": session.status})
}

func (s *Service) handleLivenessResults(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	var request models.LivenessResultsRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if request.SessionId == "" {
		writeError(w, http.StatusBadRequest, ErrMissingSession)
		return
	}

	s.mutex.Lock()
	session, ok := s.sessions[request.SessionId]
	if ok {
		session.status = "SUCCEEDED"
	}
	s.mutex.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownSession)
		return
	}

	writeJSON(w, http.StatusOK, models.LivenessResultsResponse{
		SessionId:  request.SessionId,
		Status:     "SUCCEEDED",
		Confidence: simulatedConfidence,
		Simulated:  true,
	})
}

func (s *Service) handleKycSubmit(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	var request models.KycSubmitRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if request.SessionId == "" || request.IdUrl == "" || request.SelfieUrl == "" {
		writeError(w, http.StatusBadRequest, ErrMissingKycField)
		return
	}

	s.mutex.Lock()
	_, ok := s.sessions[request.SessionId]
	s.mutex.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownSession)
		return
	}

	for _, key := range []string{request.IdUrl, request.SelfieUrl} {
		if _, found := s.bucket.Get(key); !found {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("object %s was never uploaded", key))
			return
		}
	}

	analysis := s.compare(request.IdUrl, request.SelfieUrl, DefaultThreshold)
	best := bestSimilarity(analysis)
	response := models.KycSubmitResponse{
		SubmissionId: uuid.NewString(),
		SessionId:    request.SessionId,
		Status:       "SUBMITTED",
		FaceMatch: models.FaceMatchResult{
			Matched:    best >= DefaultThreshold,
			Similarity: best,
		},
	}

	receipt, err := s.signer.CreateReceipt(response, request)
	if err != nil {
		slog.Error("failed to sign receipt", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.Receipt = receipt

	s.audit("kyc_submit", request.SessionId, response)
	writeJSON(w, http.StatusOK, response)
}

func (s *Service) handleEcho(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	payload := map[string]any{}
	if err := decodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("Echo body is not JSON, echoing empty object", "error", err)
		payload = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"echo": payload})
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	var request models.AnalyzeRequest
	if err := decodeJSON(r, &request); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if request.SourceKey == "" || request.TargetKey == "" {
		writeError(w, http.StatusBadRequest, ErrMissingKeys)
		return
	}

	threshold := DefaultThreshold
	if request.Similarity != nil && *request.Similarity != 0 {
		threshold = *request.Similarity
	}

	result := s.compare(request.SourceKey, request.TargetKey, threshold)
	if s.startWorkflow {
		slog.Info("Simulated review workflow started", "source", request.SourceKey, "target", request.TargetKey)
		result.StepFunctionStarted = true
	}
	s.audit("simulated", request.SourceKey+" "+request.TargetKey, result)
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	object, ok := s.bucket.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownObject)
		return
	}

	img, _, err := images.Decode(object.Data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	preview, err := images.Preview(img, previewSize, previewSize, previewColors, png.BestCompression)
	if err != nil {
		slog.Error("failed to encode preview", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(preview); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// compare scores the two stored objects against each other when both decode
// as images, and falls back to the fixed simulated score otherwise.
func (s *Service) compare(sourceKey, targetKey string, threshold float64) models.AnalyzeResponse {
	source, sourceOk := s.bucket.Get(sourceKey)
	target, targetOk := s.bucket.Get(targetKey)
	if !sourceOk || !targetOk {
		return simulateAnalysis(threshold)
	}

	a, _, errA := images.Decode(source.Data)
	b, _, errB := images.Decode(target.Data)
	if errA != nil || errB != nil {
		slog.Debug("Objects are not images, using simulated score", "source", sourceKey, "target", targetKey)
		return simulateAnalysis(threshold)
	}

	match := models.FaceMatch{
		Similarity:  images.Similarity(a, b),
		BoundingBox: models.BoundingBox{Top: 0, Left: 0, Width: 1, Height: 1},
	}
	result := models.AnalyzeResponse{
		Rekognition:         false,
		SimilarityThreshold: threshold,
		Matches:             []models.FaceMatch{},
		Unmatched:           []models.FaceMatch{},
	}
	if match.Similarity >= threshold {
		result.Matches = append(result.Matches, match)
	} else {
		result.Unmatched = append(result.Unmatched, match)
	}
	return result
}

func bestSimilarity(result models.AnalyzeResponse) float64 {
	best := 0.0
	for _, m := range result.Matches {
		best = max(best, m.Similarity)
	}
	for _, m := range result.Unmatched {
		best = max(best, m.Similarity)
	}
	return best
}

func simulateAnalysis(threshold float64) models.AnalyzeResponse {
	return models.AnalyzeResponse{
		Rekognition:         false,
		SimilarityThreshold: threshold,
		Matches: []models.FaceMatch{{
			Similarity:  simulatedSimilarity,
			BoundingBox: models.BoundingBox{Top: 0, Left: 0, Width: 1, Height: 1},
		}},
		Unmatched: []models.FaceMatch{},
	}
}

// audit writes one structured log line per analysis so runs can be traced
// afterwards.
func (s *Service) audit(kind, subject string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal audit payload", "kind", kind, "error", err)
		return
	}
	slog.Info("audit", "table", s.auditTable, "kind", kind, "subject", subject, "payload", string(b))
}

// helpers ------------

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}
