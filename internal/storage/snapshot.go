// Package storage persists finalized orchestration sessions to Redis so
// results survive process restarts. The store is optional: a nil
// *SnapshotStore disables persistence without affecting correctness.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/skywatch/backend/internal/config"
	"github.com/skywatch/backend/pkg/assessment"
	"github.com/skywatch/backend/pkg/common"
)

const sessionKeyPrefix = "skywatch:session:"

// SnapshotStore saves and restores session snapshots.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshotStore connects to Redis and verifies the connection.
func NewSnapshotStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*SnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, common.WrapWithCode(err, common.CodeProvider, "redis ping failed", map[string]interface{}{
			"addr": cfg.Addr,
		})
	}
	return &SnapshotStore{client: client, ttl: cfg.SnapshotTTL, logger: logger}, nil
}

// Save writes the session snapshot under its id with the configured TTL.
func (s *SnapshotStore) Save(ctx context.Context, session *assessment.OrchestrationSession) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return common.WrapWithCode(err, common.CodeProvider, "failed to encode session snapshot", map[string]interface{}{
			"session_id": session.SessionID,
		})
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.SessionID, data, s.ttl).Err(); err != nil {
		return common.WrapWithCode(err, common.CodeProvider, "failed to write session snapshot", map[string]interface{}{
			"session_id": session.SessionID,
		})
	}
	s.logger.Debug("session snapshot saved",
		zap.String("session_id", session.SessionID),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Load restores a session snapshot. A missing key returns a not-found error.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*assessment.OrchestrationSession, error) {
	if s == nil {
		return nil, common.NewError(common.CodeNotFound, "snapshot store disabled", nil)
	}
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, common.NewError(common.CodeNotFound, "session snapshot not found", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	if err != nil {
		return nil, common.WrapWithCode(err, common.CodeProvider, "failed to read session snapshot", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	var session assessment.OrchestrationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, common.WrapWithCode(err, common.CodeProvider, "corrupt session snapshot", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	return &session, nil
}

// Healthy reports whether Redis answers a ping.
func (s *SnapshotStore) Healthy(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (s *SnapshotStore) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
