package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key patterns:
// presence:conns                 HASH<conn_id, user_id> - live connections
// presence:user:{user_id}:conns  SET<conn_id>           - per-user connection set
// presence:online                SET<user_id>           - users with >= 1 connection
const (
	connsKey  = "presence:conns"
	onlineKey = "presence:online"
)

func userConnsKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:user:%s:conns", userID)
}

// redisRegistry is a shared presence backend. Several gateway processes
// pointed at the same Redis see one consistent online view.
type redisRegistry struct {
	client *redis.Client
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisRegistry creates a Redis-backed presence registry.
func NewRedisRegistry(cfg RedisConfig) (Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &redisRegistry{client: client}, nil
}

func (r *redisRegistry) RegisterConnection(ctx context.Context, connID string, userID uuid.UUID) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, connsKey, connID, userID.String())
	pipe.SAdd(ctx, userConnsKey(userID), connID)
	pipe.SAdd(ctx, onlineKey, userID.String())
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisRegistry) UnregisterConnection(ctx context.Context, connID string) error {
	val, err := r.client.HGet(ctx, connsKey, connID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, connsKey, connID)
	pipe.SRem(ctx, userConnsKey(userID), connID)
	remaining := pipe.SCard(ctx, userConnsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if remaining.Val() == 0 {
		return r.client.SRem(ctx, onlineKey, userID.String()).Err()
	}
	return nil
}

func (r *redisRegistry) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.client.SIsMember(ctx, onlineKey, userID.String()).Result()
}

func (r *redisRegistry) ListOnlineUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *redisRegistry) Close() error {
	return r.client.Close()
}
