package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/martok9803/kyc-faceauth-dev/models"
	"github.com/redis/go-redis/v9"
)

const DefaultWorkspaceTTL = 24 * time.Hour

// WorkspaceStore keeps workspace slots. Implementations must be safe for
// concurrent use. Writing a slot must not touch the other slots of the same
// workspace.
type WorkspaceStore interface {
	// Create registers an empty workspace. Creating an existing one resets it.
	Create(ctx context.Context, id string) error

	Exists(ctx context.Context, id string) (bool, error)

	// SetSlot overwrites a single slot. Returns ErrUnknownWorkspace when the
	// workspace was never created or has expired.
	SetSlot(ctx context.Context, id string, slot Slot, value string) error

	// GetSlot returns "" for a slot that was never written.
	GetSlot(ctx context.Context, id string, slot Slot) (string, error)

	Snapshot(ctx context.Context, id string) (models.WorkspaceState, error)
}

// ------------------------------------------------------------------------------

type InMemoryWorkspaceStore struct {
	workspaces map[string]*memoryWorkspace
	ttl        time.Duration
	now        func() time.Time
	mutex      sync.Mutex
}

type memoryWorkspace struct {
	slots     map[Slot]string
	touchedAt time.Time
}

func NewInMemoryWorkspaceStore(ttl time.Duration) *InMemoryWorkspaceStore {
	if ttl <= 0 {
		ttl = DefaultWorkspaceTTL
	}
	return &InMemoryWorkspaceStore{
		workspaces: make(map[string]*memoryWorkspace),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (s *InMemoryWorkspaceStore) Create(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.evictExpired()
	s.workspaces[id] = &memoryWorkspace{slots: make(map[Slot]string), touchedAt: s.now()}
	return nil
}

func (s *InMemoryWorkspaceStore) Exists(_ context.Context, id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, ok := s.lookup(id)
	return ok, nil
}

func (s *InMemoryWorkspaceStore) SetSlot(_ context.Context, id string, slot Slot, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ws, ok := s.lookup(id)
	if !ok {
		return ErrUnknownWorkspace
	}
	ws.slots[slot] = value
	ws.touchedAt = s.now()
	return nil
}

func (s *InMemoryWorkspaceStore) GetSlot(_ context.Context, id string, slot Slot) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ws, ok := s.lookup(id)
	if !ok {
		return "", ErrUnknownWorkspace
	}
	return ws.slots[slot], nil
}

func (s *InMemoryWorkspaceStore) Snapshot(_ context.Context, id string) (models.WorkspaceState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ws, ok := s.lookup(id)
	if !ok {
		return models.WorkspaceState{}, ErrUnknownWorkspace
	}
	return models.WorkspaceState{
		SessionId: ws.slots[SlotSessionId],
		IdKey:     ws.slots[SlotIdKey],
		SelfieKey: ws.slots[SlotSelfieKey],
	}, nil
}

// lookup must be called with the mutex held.
func (s *InMemoryWorkspaceStore) lookup(id string) (*memoryWorkspace, bool) {
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(ws.touchedAt) > s.ttl {
		delete(s.workspaces, id)
		return nil, false
	}
	return ws, true
}

func (s *InMemoryWorkspaceStore) evictExpired() {
	now := s.now()
	for id, ws := range s.workspaces {
		if now.Sub(ws.touchedAt) > s.ttl {
			delete(s.workspaces, id)
		}
	}
}

// ------------------------------------------------------------------------------

// RedisWorkspaceStore keeps every workspace as a hash with one field per slot.
type RedisWorkspaceStore struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedisWorkspaceStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisWorkspaceStore {
	if ttl <= 0 {
		ttl = DefaultWorkspaceTTL
	}
	return &RedisWorkspaceStore{client: client, namespace: namespace, ttl: ttl}
}

// createdField marks the hash as existing even before any slot is written.
const createdField = "created_at"

func createKey(namespace, id string) string {
	return fmt.Sprintf("%s:workspace:%s", namespace, id)
}

func (s *RedisWorkspaceStore) Create(ctx context.Context, id string) error {
	key := createKey(s.namespace, id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, createdField, time.Now().UTC().Format(time.RFC3339))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisWorkspaceStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, createKey(s.namespace, id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// setSlotScript writes one field and refreshes the TTL, but only while the
// hash still exists, so an expired workspace is never recreated.
var setSlotScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (s *RedisWorkspaceStore) SetSlot(ctx context.Context, id string, slot Slot, value string) error {
	key := createKey(s.namespace, id)
	written, err := setSlotScript.Run(ctx, s.client, []string{key}, string(slot), value, s.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if written == 0 {
		return ErrUnknownWorkspace
	}
	return nil
}

func (s *RedisWorkspaceStore) GetSlot(ctx context.Context, id string, slot Slot) (string, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownWorkspace
	}

	value, err := s.client.HGet(ctx, createKey(s.namespace, id), string(slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (s *RedisWorkspaceStore) Snapshot(ctx context.Context, id string) (models.WorkspaceState, error) {
	fields, err := s.client.HGetAll(ctx, createKey(s.namespace, id)).Result()
	if err != nil {
		return models.WorkspaceState{}, err
	}
	if len(fields) == 0 {
		return models.WorkspaceState{}, ErrUnknownWorkspace
	}
	return models.WorkspaceState{
		SessionId: fields[string(SlotSessionId)],
		IdKey:     fields[string(SlotIdKey)],
		SelfieKey: fields[string(SlotSelfieKey)],
	}, nil
}
