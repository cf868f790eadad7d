package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/The-UnknownHacker/groundplane/internal/airtable"
)

// keyPrefix — пространство ключей кэша в Redis.
const keyPrefix = "groundplane:cache:"

// RedisStore — кэш снимков в Redis. Значение — JSON, TTL — время жизни сессии.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore создаёт Redis-кэш поверх client.
func NewRedisStore(client redis.Cmdable, sessionTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: sessionTTL}
}

func redisKey(sessionID string, kind airtable.Kind) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, sessionID, kind)
}

func genKey(sessionID string, kind airtable.Kind) string {
	return redisKey(sessionID, kind) + ":gen"
}

// writeIfGeneration: KEYS[1] — снимок, KEYS[2] — поколение;
// ARGV[1] — ожидаемое поколение, ARGV[2] — снимок, ARGV[3] — TTL в мс.
var writeIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// ReadListing возвращает снимок или ErrMiss.
func (s *RedisStore) ReadListing(ctx context.Context, sessionID string, kind airtable.Kind) (*Listing, error) {
	data, err := s.client.Get(ctx, redisKey(sessionID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		miss(kind)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("чтение снимка из Redis: %w", err)
	}

	var l Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("декодирование снимка: %w", err)
	}
	hit(kind)
	return &l, nil
}

// WriteListing сохраняет снимок с TTL сессии.
func (s *RedisStore) WriteListing(ctx context.Context, sessionID string, listing *Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("сериализация снимка: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(sessionID, listing.Kind), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("запись снимка в Redis: %w", err)
	}
	return nil
}

// Generation возвращает поколение ключа, 0 — инвалидаций не было.
func (s *RedisStore) Generation(ctx context.Context, sessionID string, kind airtable.Kind) (uint64, error) {
	gen, err := s.client.Get(ctx, genKey(sessionID, kind)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("чтение поколения из Redis: %w", err)
	}
	return gen, nil
}

// WriteListingAt сохраняет снимок, если поколение не изменилось.
// Сравнение и запись выполняются одним Lua-скриптом.
func (s *RedisStore) WriteListingAt(ctx context.Context, sessionID string, listing *Listing, gen uint64) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("сериализация снимка: %w", err)
	}

	keys := []string{redisKey(sessionID, listing.Kind), genKey(sessionID, listing.Kind)}
	written, err := writeIfGeneration.Run(ctx, s.client, keys,
		strconv.FormatUint(gen, 10), data, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("запись снимка в Redis: %w", err)
	}
	if written == 0 {
		return ErrStale
	}
	return nil
}

// Invalidate увеличивает поколение и удаляет снимок.
// Поколение увеличивается первым: запись, начатая до инвалидации, уже не пройдёт.
func (s *RedisStore) Invalidate(ctx context.Context, sessionID string, kind airtable.Kind) error {
	gk := genKey(sessionID, kind)
	if err := s.client.Incr(ctx, gk).Err(); err != nil {
		return fmt.Errorf("инвалидация снимка в Redis: %w", err)
	}
	if err := s.client.Expire(ctx, gk, s.ttl).Err(); err != nil {
		return fmt.Errorf("инвалидация снимка в Redis: %w", err)
	}
	if err := s.client.Del(ctx, redisKey(sessionID, kind)).Err(); err != nil {
		return fmt.Errorf("инвалидация снимка в Redis: %w", err)
	}
	invalidated(kind)
	return nil
}

// Purge удаляет все снимки сессии.
func (s *RedisStore) Purge(ctx context.Context, sessionID string) error {
	keys := make([]string, 0, len(CachedKinds))
	for _, kind := range CachedKinds {
		keys = append(keys, redisKey(sessionID, kind))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("очистка кэша сессии в Redis: %w", err)
	}
	return nil
}

// CheckReady проверяет доступность Redis.
func (s *RedisStore) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}
