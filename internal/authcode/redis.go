package authcode

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore respalda los códigos en Redis con vencimiento. Es el reemplazo
// del mapa en memoria cuando corre más de una instancia.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(targetID string) string {
	return "authcode:" + targetID
}

func (s *RedisStore) Put(ctx context.Context, targetID, code string) error {
	return s.client.Set(ctx, key(targetID), code, s.ttl).Err()
}

// takeScript borra la llave solo si el valor coincide, en un solo paso.
var takeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) Take(ctx context.Context, targetID, code string) (bool, error) {
	n, err := takeScript.Run(ctx, s.client, []string{key(targetID)}, code).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
