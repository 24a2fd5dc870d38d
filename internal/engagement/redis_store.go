package engagement

import (
	"context"
	"fmt"
	"strings"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "yolinkify"

// missingLinkReply is what every script returns when the link key is absent.
const missingLinkReply = -1

// Every script takes the link key as KEYS[1] and the counter key as KEYS[2],
// so existence and the counter change are one atomic step on the server.
var (
	incrementClicksScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('INCR', KEYS[2])
`)

	readClicksScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local value = redis.call('GET', KEYS[2])
if not value then return 0 end
return tonumber(value)
`)

	hasLikeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('SISMEMBER', KEYS[2], ARGV[1])
`)

	likeCountScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('SCARD', KEYS[2])
`)

	addLikeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('SADD', KEYS[2], ARGV[1])
`)

	removeLikeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('SREM', KEYS[2], ARGV[1])
`)

	toggleLikeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	redis.call('SREM', KEYS[2], ARGV[1])
	return 0
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)
)

// RedisStoreConfig describes the dependencies of the redis counter store.
type RedisStoreConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string
}

// RedisStore keeps click counters in INCR keys and like memberships in one set
// per link. A link exists for the store while its link key is present; the key
// is written by LinkCreated and removed with the counters by LinkDeleted.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: cfg.Client, prefix: prefix}, nil
}

// LinkCreated marks the link as known to the store.
func (s *RedisStore) LinkCreated(ctx context.Context, linkID links.LinkID) error {
	return s.client.Set(ctx, s.linkKey(linkID), 1, 0).Err()
}

// LinkDeleted removes the link key together with its counters.
func (s *RedisStore) LinkDeleted(ctx context.Context, linkID links.LinkID) error {
	return s.client.Del(ctx, s.linkKey(linkID), s.clicksKey(linkID), s.likesKey(linkID)).Err()
}

// RegisterLinks marks existing links as known, leaving their counters untouched.
func (s *RedisStore) RegisterLinks(ctx context.Context, ids []links.LinkID) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, linkID := range ids {
			pipe.SetNX(ctx, s.linkKey(linkID), 1, 0)
		}
		return nil
	})
	return err
}

// IncrementClicks adds one to the click counter and returns the new value.
func (s *RedisStore) IncrementClicks(ctx context.Context, linkID links.LinkID) (int64, error) {
	return s.run(ctx, incrementClicksScript, linkID, s.clicksKey(linkID))
}

// ClickCount reads the click counter.
func (s *RedisStore) ClickCount(ctx context.Context, linkID links.LinkID) (int64, error) {
	return s.run(ctx, readClicksScript, linkID, s.clicksKey(linkID))
}

// HasLike reports whether the viewer is in the link's like set.
func (s *RedisStore) HasLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	member, err := s.run(ctx, hasLikeScript, linkID, s.likesKey(linkID), viewerID.String())
	return member == 1, err
}

// LikeCount returns the size of the link's like set.
func (s *RedisStore) LikeCount(ctx context.Context, linkID links.LinkID) (int64, error) {
	return s.run(ctx, likeCountScript, linkID, s.likesKey(linkID))
}

// AddLike puts the viewer in the like set.
func (s *RedisStore) AddLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	added, err := s.run(ctx, addLikeScript, linkID, s.likesKey(linkID), viewerID.String())
	return added == 1, err
}

// RemoveLike takes the viewer out of the like set.
func (s *RedisStore) RemoveLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	removed, err := s.run(ctx, removeLikeScript, linkID, s.likesKey(linkID), viewerID.String())
	return removed == 1, err
}

// ToggleLike flips the viewer's membership inside one script.
func (s *RedisStore) ToggleLike(ctx context.Context, linkID links.LinkID, viewerID ViewerID) (bool, error) {
	state, err := s.run(ctx, toggleLikeScript, linkID, s.likesKey(linkID), viewerID.String())
	return state == 1, err
}

func (s *RedisStore) run(ctx context.Context, script *redis.Script, linkID links.LinkID, key string, args ...interface{}) (int64, error) {
	value, err := script.Run(ctx, s.client, []string{s.linkKey(linkID), key}, args...).Int64()
	if err != nil {
		return 0, err
	}
	if value == missingLinkReply {
		return 0, linkNotFound(linkID)
	}
	return value, nil
}

// Keys share the {linkID} hash tag so the scripts stay on one cluster slot.
func (s *RedisStore) linkKey(linkID links.LinkID) string {
	return fmt.Sprintf("%s:link:{%s}", s.prefix, linkID)
}

func (s *RedisStore) clicksKey(linkID links.LinkID) string {
	return fmt.Sprintf("%s:clicks:{%s}", s.prefix, linkID)
}

func (s *RedisStore) likesKey(linkID links.LinkID) string {
	return fmt.Sprintf("%s:likes:{%s}", s.prefix, linkID)
}
