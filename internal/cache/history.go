package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"crashfair/internal/game"
)

const REDIS_KEY_HISTORY = "history:"

// replaceRound swaps the cached summary with a matching round_id in place.
var replaceRound = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
for i, item in ipairs(items) do
	local ok, decoded = pcall(cjson.decode, item)
	if ok and decoded['round_id'] == ARGV[1] then
		redis.call('LSET', KEYS[1], i - 1, ARGV[2])
		return 1
	end
end
return 0
`)

// HistoryCache keeps the latest settled rounds of each game in a capped Redis list.
type HistoryCache struct {
	client *redis.Client
	limit  int64
}

func NewHistoryCache(client *redis.Client, limit int) *HistoryCache {
	if limit <= 0 {
		limit = 50
	}
	return &HistoryCache{client: client, limit: int64(limit)}
}

func HistoryKey(gameType game.GameType) string {
	return REDIS_KEY_HISTORY + string(gameType)
}

func (h *HistoryCache) SaveRound(ctx context.Context, s game.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := HistoryKey(s.Game)
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, h.limit-1)
		return nil
	})
	return err
}

// UpdateFlags rewrites a cached round. A round already trimmed from the list is ignored.
func (h *HistoryCache) UpdateFlags(ctx context.Context, s game.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return replaceRound.Run(ctx, h.client, []string{HistoryKey(s.Game)}, s.RoundID, data).Err()
}

// Recent returns up to limit cached rounds, newest first.
func (h *HistoryCache) Recent(ctx context.Context, gameType game.GameType, limit int) ([]game.Summary, error) {
	if limit <= 0 || int64(limit) > h.limit {
		limit = int(h.limit)
	}
	raw, err := h.client.LRange(ctx, HistoryKey(gameType), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]game.Summary, 0, len(raw))
	for _, item := range raw {
		var s game.Summary
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
