package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache mirrors session membership into Redis so sibling instances
// (and read-only consumers) can see who is online. It is a best-effort
// mirror: the in-memory registry stays authoritative and mirror failures are
// logged by callers, never propagated to clients.
type PresenceCache interface {
	AddMember(ctx context.Context, sessionID, userID, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, sessionID, userID string) error
	AliveMembers(ctx context.Context, sessionID string) ([]Member, error)
	SetCursor(ctx context.Context, sessionID, userID string, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, sessionID, userID string) ([]byte, error)
}

type Member struct {
	UserID   string
	Username string
}

type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember registers (or refreshes) a member. The ZSet score carries the
// logical expiry, so a heartbeat is just another AddMember.
func (p *redisPresence) AddMember(ctx context.Context, sessionID, userID, username string, ttl time.Duration) error {
	expireAt := time.Now().Add(ttl).Unix()
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(sessionID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(sessionID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, sessionID, userID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(sessionID), userID)
	tx.HDel(ctx, namesKey(sessionID), userID)
	tx.Del(ctx, cursorKey(sessionID, userID))
	_, err := tx.Exec(ctx)
	return err
}

// expired-member cleanup, run before each read. score = expireAt unix seconds.
var cleanupScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) AliveMembers(ctx context.Context, sessionID string) ([]Member, error) {
	now := time.Now().Unix()
	if _, err := cleanupScript.Run(ctx, p.rdb, []string{roomKey(sessionID), namesKey(sessionID)}, now).Int(); err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(sessionID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(sessionID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]Member, 0, len(aliveIDs))
	for i, id := range aliveIDs {
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, Member{UserID: id, Username: name})
	}
	return members, nil
}

func (p *redisPresence) SetCursor(ctx context.Context, sessionID, userID string, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(sessionID, userID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, sessionID, userID string) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(sessionID, userID)).Bytes()
}
