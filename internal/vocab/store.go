// Package vocab stores the controlled vocabularies catalogue payloads draw
// from (scientific domains, access modes, trl levels, ...). Entries form a
// shallow tree through their Parent identifier.
package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sentinel errors for vocabulary handling.
var (
	// ErrNotFound is returned when a vocabulary entry does not exist.
	ErrNotFound = errors.New("vocabulary entry not found")

	// ErrInvalidID is returned when an entry carries no identifier.
	ErrInvalidID = errors.New("vocabulary id cannot be empty")
)

// Vocabulary is one controlled-vocabulary entry.
type Vocabulary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Parent string `json:"parentId,omitempty"`
}

// Store persists vocabularies in Redis.
type Store struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewStore creates a vocabulary store on an existing Redis client.
func NewStore(client redis.UniversalClient, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Store{client: client, logger: logger}, nil
}

func vocabKey(id string) string { return "vocabulary:" + id }

const vocabSetKey = "vocabularies"

// Upsert creates or replaces a vocabulary entry.
func (s *Store) Upsert(ctx context.Context, v *Vocabulary) error {
	if v == nil || v.ID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal vocabulary %s: %w", v.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, vocabKey(v.ID), data, 0)
	pipe.SAdd(ctx, vocabSetKey, v.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store vocabulary %s: %w", v.ID, err)
	}

	return nil
}

// Get retrieves a vocabulary entry by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Vocabulary, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, vocabKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary %s: %w", id, err)
	}

	var v Vocabulary
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vocabulary %s: %w", id, err)
	}
	return &v, nil
}

// Delete removes a vocabulary entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, vocabKey(id))
	pipe.SRem(ctx, vocabSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete vocabulary %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// List returns all vocabulary entries. Entries that fail to load are
// skipped and logged rather than failing the whole listing.
func (s *Store) List(ctx context.Context) ([]*Vocabulary, error) {
	ids, err := s.client.SMembers(ctx, vocabSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabularies: %w", err)
	}

	out := make([]*Vocabulary, 0, len(ids))
	for _, id := range ids {
		v, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable vocabulary entry",
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Children returns the entries whose Parent is the given identifier.
func (s *Store) Children(ctx context.Context, parent string) ([]*Vocabulary, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Vocabulary
	for _, v := range all {
		if v.Parent == parent {
			out = append(out, v)
		}
	}
	return out, nil
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("vocabulary store unreachable: %w", err)
	}
	return nil
}
