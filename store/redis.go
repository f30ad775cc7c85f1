package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "proposal-wizard"

// Redis keeps every entry in a hash (value, version, updated_at) and announces changes on
// one pub/sub channel, so subscribers in other processes see them too.
type Redis struct {
	client    *redis.Client
	namespace string
	log       *slog.Logger
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis store needs an address")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedis(client, defaultNamespace), nil
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Redis{
		client:    client,
		namespace: namespace,
		log:       slog.Default().With("component", "store.redis"),
	}
}

func (r *Redis) hashKey(key string) string { return r.namespace + ":kv:" + key }

func (r *Redis) channel() string { return r.namespace + ":changes" }

func (r *Redis) Get(ctx context.Context, key string) (Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.hashKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("getting entry %s: %w", key, err)
	}
	return entryFromHash(key, fields)
}

func entryFromHash(key string, fields map[string]string) (Entry, error) {
	if len(fields) == 0 {
		return Entry{}, ErrNotFound
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s has a bad version %q: %w", key, fields["version"], err)
	}
	e := Entry{Key: key, Value: []byte(fields["value"]), Version: version}
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return e, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) (Entry, error) {
	now := time.Now().UTC()
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, r.hashKey(key), "version", 1)
		pipe.HSet(ctx, r.hashKey(key), "value", value, "updated_at", now.Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("setting entry %s: %w", key, err)
	}
	e := Entry{Key: key, Value: value, Version: incr.Val(), UpdatedAt: now}
	r.publish(ctx, e)
	return e, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.hashKey(key)).Result()
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", key, err)
	}
	if n > 0 {
		r.publish(ctx, Entry{Key: key, UpdatedAt: time.Now().UTC(), Deleted: true})
	}
	return nil
}

func (r *Redis) publish(ctx context.Context, e Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		r.log.Error("failed to encode change notification", "key", e.Key, "err", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel(), payload).Err(); err != nil {
		r.log.Error("failed to publish change notification", "key", e.Key, "err", err)
	}
}

func (r *Redis) Subscribe(ctx context.Context, prefix string) (<-chan Entry, error) {
	pubsub := r.client.Subscribe(ctx, r.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", r.channel(), err)
	}

	out := make(chan Entry, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var e Entry
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					r.log.Error("failed to decode change notification", "channel", msg.Channel, "err", err)
					continue
				}
				if !strings.HasPrefix(e.Key, prefix) {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
