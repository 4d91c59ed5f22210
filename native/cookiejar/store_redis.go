package cookiejar

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each member log as a Redis list of "timestamp:amount"
// entries, oldest at the head.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func encodeRedisClaim(c Claim) string {
	return strconv.FormatUint(c.Timestamp, 10) + ":" + strconv.FormatUint(c.Amount, 10)
}

func decodeRedisClaim(raw string) (Claim, error) {
	ts, amount, ok := strings.Cut(raw, ":")
	if !ok {
		return Claim{}, fmt.Errorf("cookiejar: malformed claim entry %q", raw)
	}
	timestamp, err := strconv.ParseUint(ts, 10, 64)
	if err != nil {
		return Claim{}, fmt.Errorf("cookiejar: claim timestamp %q: %w", ts, err)
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return Claim{}, fmt.Errorf("cookiejar: claim amount %q: %w", amount, err)
	}
	return Claim{Timestamp: timestamp, Amount: value}, nil
}

func (s *RedisStore) withClient() (redis.UniversalClient, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("cookiejar: redis store not initialised")
	}
	return s.client, nil
}

// Load implements ClaimStore.
func (s *RedisStore) Load(ctx context.Context, member common.Address) ([]Claim, error) {
	client, err := s.withClient()
	if err != nil {
		return nil, err
	}
	entries, err := client.LRange(ctx, redisClaimsKey(member), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cookiejar: redis load claims: %w", err)
	}
	claims := make([]Claim, 0, len(entries))
	for _, entry := range entries {
		claim, err := decodeRedisClaim(entry)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// Append implements ClaimStore.
func (s *RedisStore) Append(ctx context.Context, member common.Address, claim Claim) error {
	client, err := s.withClient()
	if err != nil {
		return err
	}
	if err := client.RPush(ctx, redisClaimsKey(member), encodeRedisClaim(claim)).Err(); err != nil {
		return fmt.Errorf("cookiejar: redis append claim: %w", err)
	}
	return nil
}

// Replace implements ClaimStore. The delete and push run in one MULTI block
// so readers never observe a half-written log.
func (s *RedisStore) Replace(ctx context.Context, member common.Address, claims []Claim) error {
	client, err := s.withClient()
	if err != nil {
		return err
	}
	key := redisClaimsKey(member)
	values := make([]interface{}, 0, len(claims))
	for _, claim := range claims {
		values = append(values, encodeRedisClaim(claim))
	}
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cookiejar: redis replace claims: %w", err)
	}
	return nil
}
