package console

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/martok9803/kyc-faceauth-dev/models"
)

// Slot is one of the three values a workspace holds.
type Slot string

const (
	SlotSessionId Slot = "session_id"
	SlotIdKey     Slot = "id_key"
	SlotSelfieKey Slot = "selfie_key"
)

// Workspace is the state of one console page load. Every command gets the
// workspace it operates on; slots are written one at a time and the last
// write wins.
type Workspace struct {
	ID    string
	store WorkspaceStore
}

// NewWorkspace mints a fresh, empty workspace in store.
func NewWorkspace(ctx context.Context, store WorkspaceStore) (*Workspace, error) {
	id := GenerateWorkspaceId()
	if id == "" {
		return nil, fmt.Errorf("failed to generate workspace id")
	}
	if err := store.Create(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	slog.Debug("Workspace created", "workspace", id)
	return &Workspace{ID: id, store: store}, nil
}

// OpenWorkspace returns the workspace with the given id, or ErrUnknownWorkspace.
func OpenWorkspace(ctx context.Context, store WorkspaceStore, id string) (*Workspace, error) {
	ok, err := store.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up workspace: %w", err)
	}
	if !ok {
		return nil, ErrUnknownWorkspace
	}
	return &Workspace{ID: id, store: store}, nil
}

func (w *Workspace) SessionId(ctx context.Context) (string, error) {
	return w.store.GetSlot(ctx, w.ID, SlotSessionId)
}

func (w *Workspace) SetSessionId(ctx context.Context, sessionId string) error {
	return w.store.SetSlot(ctx, w.ID, SlotSessionId, sessionId)
}

func (w *Workspace) UploadKey(ctx context.Context, role Role) (string, error) {
	return w.store.GetSlot(ctx, w.ID, role.Slot())
}

func (w *Workspace) SetUploadKey(ctx context.Context, role Role, key string) error {
	return w.store.SetSlot(ctx, w.ID, role.Slot(), key)
}

func (w *Workspace) State(ctx context.Context) (models.WorkspaceState, error) {
	return w.store.Snapshot(ctx, w.ID)
}

// GenerateWorkspaceId returns 16 random bytes hex encoded, or "" if the
// system random source fails.
func GenerateWorkspaceId() string {
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		slog.Error("failed to generate workspace id", "error", err)
		return ""
	}
	return fmt.Sprintf("%x", id)
}
