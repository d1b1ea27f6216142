package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"installments/internal/config"
	"installments/internal/logger"
)

// RedisMirror keeps each collection in a hash keyed by record id and announces
// changes on a Pub/Sub channel.
type RedisMirror struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
	channel    string
	log        zerolog.Logger
}

// NewRedisMirror connects to the configured server and checks it answers.
func NewRedisMirror(ctx context.Context, cfg config.RedisConfig) (*RedisMirror, error) {
	const op = "NewRedisMirror"

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: failed to connect to redis at %s: %w", op, cfg.Addr, err)
	}

	m := NewRedisMirrorWithClient(client, cfg.Prefix, cfg.Channel)
	m.ownsClient = true
	return m, nil
}

// NewRedisMirrorWithClient uses an existing client. The caller keeps ownership of it.
func NewRedisMirrorWithClient(client *redis.Client, prefix, channel string) *RedisMirror {
	return &RedisMirror{
		client:  client,
		prefix:  prefix,
		channel: channel,
		log:     logger.WithComponent("mirror-redis"),
	}
}

func (m *RedisMirror) key(collection string) string {
	return m.prefix + collection
}

func (m *RedisMirror) LoadCollection(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	const op = "LoadCollection"

	values, err := m.client.HGetAll(ctx, m.key(collection)).Result()
	if err != nil {
		return nil, newMirrorError(op, collection, err)
	}

	records := make(map[string]json.RawMessage, len(values))
	for id, v := range values {
		if !json.Valid([]byte(v)) {
			m.log.Warn().Str("collection", collection).Str("id", id).Msg("Skipping malformed remote record")
			continue
		}
		records[id] = json.RawMessage(v)
	}
	return records, nil
}

func (m *RedisMirror) SaveRecord(ctx context.Context, collection, id string, record any) error {
	const op = "SaveRecord"

	if id == "" {
		return newMirrorError(op, collection, ErrMissingID)
	}
	raw, err := encodeRecord(record)
	if err != nil {
		return newMirrorError(op, collection, err)
	}

	if err := m.client.HSet(ctx, m.key(collection), id, string(raw)).Err(); err != nil {
		return newMirrorError(op, collection, err)
	}
	m.publish(ctx, Change{Collection: collection, ID: id, Record: raw})
	return nil
}

func (m *RedisMirror) DeleteRecord(ctx context.Context, collection, id string) error {
	const op = "DeleteRecord"

	if id == "" {
		return newMirrorError(op, collection, ErrMissingID)
	}
	if err := m.client.HDel(ctx, m.key(collection), id).Err(); err != nil {
		return newMirrorError(op, collection, err)
	}
	m.publish(ctx, Change{Collection: collection, ID: id, Deleted: true})
	return nil
}

// publish announces a change. The hash is already updated, so a failed publish is
// only logged.
func (m *RedisMirror) publish(ctx context.Context, change Change) {
	if m.channel == "" {
		return
	}
	data, err := json.Marshal(change)
	if err != nil {
		m.log.Error().Err(err).Str("collection", change.Collection).Msg("Failed to encode change")
		return
	}
	if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
		m.log.Warn().Err(err).Str("channel", m.channel).Msg("Failed to publish change")
	}
}

// Subscribe blocks, delivering changes of collection until ctx is done.
func (m *RedisMirror) Subscribe(ctx context.Context, collection string, fn func(Change)) error {
	const op = "Subscribe"

	pubsub := m.client.Subscribe(ctx, m.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return newMirrorError(op, collection, err)
	}
	m.log.Info().Str("channel", m.channel).Str("collection", collection).Msg("Subscribed to mirror changes")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			change, ok := decodeChange(msg.Payload, collection)
			if !ok {
				continue
			}
			fn(change)
		}
	}
}

// decodeChange parses a published change and reports whether it belongs to collection.
func decodeChange(payload, collection string) (Change, bool) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return Change{}, false
	}
	if change.ID == "" || change.Collection != collection {
		return Change{}, false
	}
	return change, true
}

func (m *RedisMirror) Close() error {
	if !m.ownsClient {
		return nil
	}
	return m.client.Close()
}
