package notifications

import (
	"context"
	"strconv"
	"sync"
	"time"

	"askallery/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPresenceSetKey    = "presence:online_users"
	defaultPresenceKeyPrefix = "presence:last_seen:"
	defaultPresenceTTL       = 90 * time.Second
)

// PresenceConfig overrides the Redis keys and TTL used by Presence.
type PresenceConfig struct {
	OnlineSetKey      string
	LastSeenKeyPrefix string
	LastSeenTTL       time.Duration
}

// Presence counts open notification streams per user. Counts are kept locally
// and mirrored in Redis so every API process sees the same online set. A
// user stays online in Redis until LastSeenTTL passes without a Touch.
type Presence struct {
	rdb *redis.Client

	mu     sync.RWMutex
	counts map[uint]int

	setKey    string
	keyPrefix string
	ttl       time.Duration
}

// NewPresence builds a tracker. A nil client tracks local streams only.
func NewPresence(rdb *redis.Client, cfg PresenceConfig) *Presence {
	p := &Presence{
		rdb:       rdb,
		counts:    make(map[uint]int),
		setKey:    defaultPresenceSetKey,
		keyPrefix: defaultPresenceKeyPrefix,
		ttl:       defaultPresenceTTL,
	}
	if cfg.OnlineSetKey != "" {
		p.setKey = cfg.OnlineSetKey
	}
	if cfg.LastSeenKeyPrefix != "" {
		p.keyPrefix = cfg.LastSeenKeyPrefix
	}
	if cfg.LastSeenTTL > 0 {
		p.ttl = cfg.LastSeenTTL
	}
	return p
}

// Register records a newly opened stream.
func (p *Presence) Register(ctx context.Context, userID uint) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.counts[userID]++
	p.mu.Unlock()
	p.Touch(ctx, userID)
}

// Touch refreshes the user's last-seen key.
func (p *Presence) Touch(ctx context.Context, userID uint) {
	if p == nil || p.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, p.setKey, uid)
		pipe.SetEx(ctx, p.lastSeenKey(userID), strconv.FormatInt(time.Now().Unix(), 10), p.ttl)
		return nil
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "presence touch failed", "user_id", userID, "error", err.Error())
	}
}

// Unregister records a closed stream. The Redis entry is dropped once the
// last local stream for the user is gone.
func (p *Presence) Unregister(ctx context.Context, userID uint) {
	if p == nil {
		return
	}
	p.mu.Lock()
	n := p.counts[userID] - 1
	if n > 0 {
		p.counts[userID] = n
		p.mu.Unlock()
		return
	}
	delete(p.counts, userID)
	p.mu.Unlock()

	if p.rdb == nil {
		return
	}
	uid := strconv.FormatUint(uint64(userID), 10)
	if err := p.rdb.SRem(ctx, p.setKey, uid).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "presence remove failed", "user_id", userID, "error", err.Error())
	}
	_ = p.rdb.Del(ctx, p.lastSeenKey(userID)).Err()
}

// IsOnline reports whether userID has an open stream on any process.
func (p *Presence) IsOnline(ctx context.Context, userID uint) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	local := p.counts[userID] > 0
	p.mu.RUnlock()
	if local || p.rdb == nil {
		return local
	}

	exists, err := p.rdb.Exists(ctx, p.lastSeenKey(userID)).Result()
	return err == nil && exists > 0
}

// OnlineUserIDs lists online users, pruning set members whose last-seen key
// has expired.
func (p *Presence) OnlineUserIDs(ctx context.Context) []uint {
	if p == nil {
		return nil
	}
	seen := make(map[uint]struct{})
	var ids []uint
	add := func(id uint) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if p.rdb != nil {
		members, err := p.rdb.SMembers(ctx, p.setKey).Result()
		if err == nil {
			for _, raw := range members {
				id64, err := strconv.ParseUint(raw, 10, 32)
				if err != nil {
					continue
				}
				id := uint(id64)
				exists, err := p.rdb.Exists(ctx, p.lastSeenKey(id)).Result()
				if err != nil {
					continue
				}
				if exists == 0 {
					_ = p.rdb.SRem(ctx, p.setKey, raw).Err()
					continue
				}
				add(id)
			}
		}
	}

	p.mu.RLock()
	for id, n := range p.counts {
		if n > 0 {
			add(id)
		}
	}
	p.mu.RUnlock()
	return ids
}

func (p *Presence) lastSeenKey(userID uint) string {
	return p.keyPrefix + strconv.FormatUint(uint64(userID), 10)
}
