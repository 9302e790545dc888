package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/martok9803/kyc-faceauth-dev/models"
)

// Operation names, used in errors and as metric labels.
const (
	OpPing            = "ping"
	OpPresign         = "presign"
	OpPutObject       = "put_object"
	OpLivenessStart   = "liveness_start"
	OpLivenessResults = "liveness_results"
	OpKycSubmit       = "kyc_submit"
)

// VerificationClient is the remote identity-verification API as the console
// sees it.
type VerificationClient interface {
	// Ping returns the raw body of GET /ping whatever the status code.
	Ping(ctx context.Context) (string, error)

	// Presign asks for a one-time write URL and the key of the object it writes.
	Presign(ctx context.Context) (*models.PresignResponse, error)

	// PutObject writes body to a presigned URL. size may be -1 when unknown.
	PutObject(ctx context.Context, putURL, contentType string, size int64, body io.Reader) error

	StartLiveness(ctx context.Context) (*LivenessSession, error)

	LivenessResults(ctx context.Context, sessionId string) (json.RawMessage, error)

	SubmitKyc(ctx context.Context, request models.KycSubmitRequest) (json.RawMessage, error)
}

// LivenessSession is a started liveness session plus the full answer of the
// service, which the console shows as is.
type LivenessSession struct {
	SessionId string
	Raw       json.RawMessage
}

// ObserveFunc is told how long each remote call took.
type ObserveFunc func(op string, elapsed time.Duration)

// HTTPClient implements VerificationClient over HTTP/JSON.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	observe    ObserveFunc
}

// NewHTTPClient creates a client for the API rooted at baseURL. A zero timeout
// means requests only end when their context does.
func NewHTTPClient(baseURL string, timeout time.Duration, observe ObserveFunc) *HTTPClient {
	if observe == nil {
		observe = func(string, time.Duration) {}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		observe: observe,
	}
}

func (c *HTTPClient) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", OpPing, err)
	}

	resp, err := c.send(OpPing, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", OpPing, err)
	}
	return string(body), nil
}

func (c *HTTPClient) Presign(ctx context.Context) (*models.PresignResponse, error) {
	body, err := c.call(ctx, OpPresign, http.MethodPost, c.baseURL+"/presign-id", nil)
	if err != nil {
		return nil, err
	}

	var presign models.PresignResponse
	if err := json.Unmarshal(body, &presign); err != nil {
		return nil, &DecodeError{Op: OpPresign, Err: err}
	}
	if presign.PutURL == "" || presign.Key == "" {
		return nil, &DecodeError{Op: OpPresign, Err: fmt.Errorf("response is missing putUrl or key")}
	}
	return &presign, nil
}

func (c *HTTPClient) PutObject(ctx context.Context, putURL, contentType string, size int64, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", OpPutObject, err)
	}
	req.Header.Set("Content-Type", contentType)
	if size >= 0 {
		// presigned object stores reject chunked uploads
		req.ContentLength = size
	}

	resp, err := c.send(OpPutObject, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(OpPutObject, resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) StartLiveness(ctx context.Context) (*LivenessSession, error) {
	body, err := c.call(ctx, OpLivenessStart, http.MethodPost, c.baseURL+"/liveness/start", nil)
	if err != nil {
		return nil, err
	}

	var start models.LivenessStartResponse
	if err := json.Unmarshal(body, &start); err != nil {
		return nil, &DecodeError{Op: OpLivenessStart, Err: err}
	}
	if start.SessionId == "" {
		return nil, &DecodeError{Op: OpLivenessStart, Err: fmt.Errorf("response is missing sessionId")}
	}
	return &LivenessSession{SessionId: start.SessionId, Raw: json.RawMessage(body)}, nil
}

func (c *HTTPClient) LivenessResults(ctx context.Context, sessionId string) (json.RawMessage, error) {
	payload, err := json.Marshal(models.LivenessResultsRequest{SessionId: sessionId})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", OpLivenessResults, err)
	}

	body, err := c.call(ctx, OpLivenessResults, http.MethodPost, c.baseURL+"/liveness/results", payload)
	if err != nil {
		return nil, err
	}
	return decodeObject(OpLivenessResults, body)
}

func (c *HTTPClient) SubmitKyc(ctx context.Context, request models.KycSubmitRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", OpKycSubmit, err)
	}

	body, err := c.call(ctx, OpKycSubmit, http.MethodPost, c.baseURL+"/kyc/submit", payload)
	if err != nil {
		return nil, err
	}
	return decodeObject(OpKycSubmit, body)
}

// call sends a request with an optional JSON payload and returns the body of
// a 2xx answer.
func (c *HTTPClient) call(ctx context.Context, op, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}
	return body, nil
}

func (c *HTTPClient) send(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe(op, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	return resp, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
}

// decodeObject checks that body is a single JSON object without caring about
// its fields, which belong to the service.
func decodeObject(op string, body []byte) (json.RawMessage, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	if object == nil {
		return nil, &DecodeError{Op: op, Err: fmt.Errorf("expected a JSON object, got null")}
	}
	return json.RawMessage(body), nil
}
