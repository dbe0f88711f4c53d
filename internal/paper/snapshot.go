package paper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/market"
)

// Redis keys for position snapshots.
const (
	// positionKeyPrefix is the prefix for individual position keys.
	// Format: sniper:position:{address}
	positionKeyPrefix = "sniper:position"

	// positionSetKey holds the addresses of all snapshotted positions.
	positionSetKey = "sniper:positions"

	// snapshotTTL bounds how long stale snapshots linger after a crash.
	snapshotTTL = 48 * time.Hour
)

// SnapshotStore persists open paper positions to Redis so a restarted bot can
// resume managing them. A nil client disables persistence; every method
// becomes a no-op.
type SnapshotStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewSnapshotStore creates a snapshot store. client may be nil.
func NewSnapshotStore(client *redis.Client, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		logger: logger.With().Str("component", "SnapshotStore").Logger(),
	}
}

func (s *SnapshotStore) positionKey(address string) string {
	return fmt.Sprintf("%s:%s", positionKeyPrefix, address)
}

// Save writes a position snapshot. Called on open and on material state
// changes (price marks are not snapshotted).
func (s *SnapshotStore) Save(ctx context.Context, pos market.Position) error {
	if s.client == nil {
		return nil
	}

	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.positionKey(pos.Address), data, snapshotTTL)
	pipe.SAdd(ctx, positionSetKey, pos.Address)
	pipe.Expire(ctx, positionSetKey, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save position snapshot: %w", err)
	}
	return nil
}

// Delete removes a position snapshot after the position closes.
func (s *SnapshotStore) Delete(ctx context.Context, address string) error {
	if s.client == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.positionKey(address))
	pipe.SRem(ctx, positionSetKey, address)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete position snapshot: %w", err)
	}
	return nil
}

// Load returns all snapshotted positions. Missing or unparseable entries are
// skipped with a warning rather than failing the whole load.
func (s *SnapshotStore) Load(ctx context.Context) ([]market.Position, error) {
	if s.client == nil {
		return nil, nil
	}

	addresses, err := s.client.SMembers(ctx, positionSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list position snapshots: %w", err)
	}

	positions := make([]market.Position, 0, len(addresses))
	for _, addr := range addresses {
		data, err := s.client.Get(ctx, s.positionKey(addr)).Result()
		if err != nil {
			if err != redis.Nil {
				s.logger.Warn().Err(err).Str("address", addr).Msg("failed to read position snapshot")
			}
			continue
		}
		var pos market.Position
		if err := json.Unmarshal([]byte(data), &pos); err != nil {
			s.logger.Warn().Err(err).Str("address", addr).Msg("corrupt position snapshot skipped")
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// RestoreInto loads all snapshots and reinstates the open ones into the
// engine. Returns the number restored.
func (s *SnapshotStore) RestoreInto(ctx context.Context, engine *Engine) (int, error) {
	positions, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	engine.restore(positions)

	count := 0
	for _, pos := range positions {
		if pos.Status == market.PositionOpen {
			count++
		}
	}
	if count > 0 {
		s.logger.Info().Int("count", count).Msg("restored open positions from snapshot")
	}
	return count, nil
}
