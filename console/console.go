// Package console runs the operator commands against the verification API.
//
// Commands never retry. A command that is refused locally returns a
// *PreconditionError before any request is sent; anything that goes wrong
// remotely is returned as is for the operator to read.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/martok9803/kyc-faceauth-dev/models"
)

const DefaultContentType = "image/jpeg"

// File is a file picked by the operator.
type File struct {
	Name        string
	ContentType string
	Size        int64 // -1 when unknown
	Content     io.Reader
}

type Console struct {
	client VerificationClient
}

func New(client VerificationClient) *Console {
	return &Console{client: client}
}

// Ping returns the health endpoint's body verbatim.
func (c *Console) Ping(ctx context.Context) (string, error) {
	slog.Debug("Calling ping")
	return c.client.Ping(ctx)
}

// Upload presigns, writes the file to the presigned URL and then stores the
// issued key in the role's slot. The slot only changes when both steps
// succeed; a failed write leaves an issued key behind that is never adopted,
// and the next attempt presigns again.
func (c *Console) Upload(ctx context.Context, ws *Workspace, role Role, file *File) (string, error) {
	if file == nil || file.Content == nil {
		return "", precondition(role.missingFileMessage())
	}

	presign, err := c.client.Presign(ctx)
	if err != nil {
		return "", err
	}
	slog.Debug("Presigned upload", "workspace", ws.ID, "role", role, "key", presign.Key)

	contentType := file.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	if err := c.client.PutObject(ctx, presign.PutURL, contentType, file.Size, file.Content); err != nil {
		slog.Warn("Upload failed after presign", "workspace", ws.ID, "role", role, "key", presign.Key, "error", err)
		return "", fmt.Errorf("upload of %s to issued key %s: %w", file.Name, presign.Key, err)
	}

	if err := ws.SetUploadKey(ctx, role, presign.Key); err != nil {
		return "", fmt.Errorf("failed to store upload key: %w", err)
	}
	slog.Info("Upload stored", "workspace", ws.ID, "role", role, "key", presign.Key)

	return render(map[string]string{role.outputField(): presign.Key})
}

// StartLiveness opens a liveness session and makes it the workspace's
// current one, replacing any earlier session.
func (c *Console) StartLiveness(ctx context.Context, ws *Workspace) (string, error) {
	session, err := c.client.StartLiveness(ctx)
	if err != nil {
		return "", err
	}

	if err := ws.SetSessionId(ctx, session.SessionId); err != nil {
		return "", fmt.Errorf("failed to store session id: %w", err)
	}
	slog.Info("Liveness session started", "workspace", ws.ID, "session_id", session.SessionId)

	return renderRaw(session.Raw)
}

// LivenessResults fetches the results of the workspace's current session.
func (c *Console) LivenessResults(ctx context.Context, ws *Workspace) (string, error) {
	sessionId, err := ws.SessionId(ctx)
	if err != nil {
		return "", err
	}
	if sessionId == "" {
		return "", precondition(MsgStartSessionFirst)
	}

	result, err := c.client.LivenessResults(ctx, sessionId)
	if err != nil {
		return "", err
	}
	slog.Debug("Liveness results fetched", "workspace", ws.ID, "session_id", sessionId)
	return renderRaw(result)
}

// SubmitKyc submits the current session with the keys from the page's
// visible fields, which may differ from the stored slots.
func (c *Console) SubmitKyc(ctx context.Context, ws *Workspace, fields models.KycFields) (string, error) {
	sessionId, err := ws.SessionId(ctx)
	if err != nil {
		return "", err
	}
	if sessionId == "" {
		return "", precondition(MsgStartSessionFirst)
	}
	if fields.IdKey == "" || fields.SelfieKey == "" {
		return "", precondition(MsgUploadBothFirst)
	}

	result, err := c.client.SubmitKyc(ctx, models.KycSubmitRequest{
		SessionId: sessionId,
		IdUrl:     fields.IdKey,
		SelfieUrl: fields.SelfieKey,
	})
	if err != nil {
		return "", err
	}
	slog.Info("KYC submitted", "workspace", ws.ID, "session_id", sessionId)
	return renderRaw(result)
}

// render formats v the way the page shows structured output: two-space
// indented JSON without HTML escaping.
func render(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to render output: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func renderRaw(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", fmt.Errorf("failed to render output: %w", err)
	}
	return buf.String(), nil
}
