// Package store is the key-value persistence behind proposals, section selections and
// uploaded images. Values are opaque bytes; every write bumps a per-key version and is
// announced to subscribers watching a matching key prefix.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// Entry is one stored value. A change notification for a deleted key has Deleted set and
// no Value.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   bool      `json:"deleted,omitempty"`
}

type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, value []byte) (Entry, error)
	Delete(ctx context.Context, key string) error
	// Subscribe streams changes to keys starting with prefix until ctx is done.
	Subscribe(ctx context.Context, prefix string) (<-chan Entry, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// Open builds the backend named by cfg.Driver. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

const subscriberBuffer = 16

type subscriber struct {
	prefix string
	ch     chan Entry
}

// hub fans change notifications out to in-process subscribers. Slow subscribers miss
// notifications rather than block writers.
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
	log  *slog.Logger
}

func newHub(component string) *hub {
	return &hub{
		subs: make(map[*subscriber]struct{}),
		log:  slog.Default().With("component", component),
	}
}

func (h *hub) subscribe(ctx context.Context, prefix string) <-chan Entry {
	s := &subscriber{prefix: prefix, ch: make(chan Entry, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if _, ok := h.subs[s]; ok {
			delete(h.subs, s)
			close(s.ch)
		}
		h.mu.Unlock()
	}()
	return s.ch
}

func (h *hub) publish(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !strings.HasPrefix(e.Key, s.prefix) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			h.log.Warn("dropping change notification for slow subscriber", "key", e.Key)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}
