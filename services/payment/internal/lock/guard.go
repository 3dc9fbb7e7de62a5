// Package lock содержит короткоживущую блокировку обработки платежа в Redis.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyPrefix — префикс ключей блокировки в Redis.
const keyPrefix = "payment:processing:"

// releaseScript удаляет ключ, только если он принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard не даёт двум запросам одновременно обрабатывать один платёж.
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewGuard создаёт Guard. ttl ограничивает время жизни ключа, если процесс упал.
func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

// Acquire пытается занять платёж. acquired=false — блокировку держит другой запрос.
// release освобождает блокировку и безопасна при повторном вызове.
func (g *Guard) Acquire(ctx context.Context, paymentID string) (release func(), acquired bool, err error) {
	key := keyPrefix + paymentID
	token := uuid.New().String()

	ok, err := g.rdb.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("ошибка Redis SETNX: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Отмена запроса не должна оставлять ключ до истечения TTL
		_ = releaseScript.Run(context.WithoutCancel(ctx), g.rdb, []string{key}, token).Err()
	}, true, nil
}
