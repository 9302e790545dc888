package sandbox

import (
	"sync"
	"time"
)

type Object struct {
	Key         string
	ContentType string
	Data        []byte
	StoredAt    time.Time
}

// Bucket is an in-memory object store standing in for the upload bucket.
type Bucket struct {
	Name    string
	objects map[string]Object
	mutex   sync.RWMutex
}

func NewBucket(name string) *Bucket {
	return &Bucket{Name: name, objects: make(map[string]Object)}
}

// Put stores data under key, replacing what was there.
func (b *Bucket) Put(key, contentType string, data []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.objects[key] = Object{Key: key, ContentType: contentType, Data: data, StoredAt: time.Now()}
}

func (b *Bucket) Get(key string) (Object, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	obj, ok := b.objects[key]
	return obj, ok
}

func (b *Bucket) Len() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.objects)
}
