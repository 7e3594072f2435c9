// Package preferences stores per-session dashboard preferences.
package preferences

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fixora/dashboard/internal/domain"
)

const (
	fieldTheme           = "theme"
	fieldAutoRefresh     = "auto_refresh"
	fieldLastInteraction = "last_interaction"
)

// RedisConfig configures the Redis backed store
type RedisConfig struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps preferences in one Redis hash per session. Every write refreshes the TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(cfg RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"prefix": cfg.KeyPrefix,
		"ttl":    cfg.TTL,
	}).Info("Preference store initialized")

	return NewRedisStoreWithClient(client, cfg, logger), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig, logger *logrus.Logger) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "dashboard:prefs:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		logger: logger,
		now:    time.Now,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get returns the stored preferences or the defaults
func (s *RedisStore) Get(ctx context.Context, sessionID string) (domain.Preferences, error) {
	values, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read preferences")
		return domain.DefaultPreferences(), fmt.Errorf("failed to read preferences: %w", err)
	}
	return decodePreferences(values), nil
}

// Save replaces the stored preferences
func (s *RedisStore) Save(ctx context.Context, sessionID string, prefs domain.Preferences) error {
	return s.write(ctx, sessionID, encodePreferences(prefs))
}

// Touch records the current time as the last interaction
func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	return s.write(ctx, sessionID, map[string]interface{}{
		fieldLastInteraction: s.now().UTC().Format(time.RFC3339Nano),
	})
}

// Delete removes the session hash
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete preferences")
		return fmt.Errorf("failed to delete preferences: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) write(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	key := s.key(sessionID)

	pipeline := s.client.Pipeline()
	pipeline.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipeline.Expire(ctx, key, s.ttl)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to store preferences")
		return fmt.Errorf("failed to store preferences: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"key":    key,
		"fields": len(fields),
	}).Debug("Preferences stored")
	return nil
}

func encodePreferences(p domain.Preferences) map[string]interface{} {
	fields := map[string]interface{}{
		fieldTheme:       p.Theme,
		fieldAutoRefresh: strconv.FormatBool(p.AutoRefresh),
	}
	if !p.LastInteraction.IsZero() {
		fields[fieldLastInteraction] = p.LastInteraction.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

// decodePreferences fills missing or unreadable fields from the defaults
func decodePreferences(values map[string]string) domain.Preferences {
	p := domain.DefaultPreferences()
	if v, ok := values[fieldTheme]; ok && v != "" {
		p.Theme = v
	}
	if v, ok := values[fieldAutoRefresh]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.AutoRefresh = b
		}
	}
	if v, ok := values[fieldLastInteraction]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.LastInteraction = t
		}
	}
	return p
}
