package engagement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("redis container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if terminateErr := testcontainers.TerminateContainer(container); terminateErr != nil {
			t.Logf("terminate redis container: %v", terminateErr)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err())
	return client
}

func TestNewRedisStoreValidatesConfig(t *testing.T) {
	_, err := NewRedisStore(RedisStoreConfig{})
	assert.ErrorIs(t, err, errMissingClient)
}

func newTestRedisStore(t *testing.T, client *redis.Client, ids ...links.LinkID) *RedisStore {
	t.Helper()
	store, err := NewRedisStore(RedisStoreConfig{Client: client, KeyPrefix: "test"})
	require.NoError(t, err)
	require.NoError(t, store.RegisterLinks(context.Background(), ids))
	return store
}

func TestRedisStoreCounters(t *testing.T) {
	client := newTestRedisClient(t)
	linkID := links.LinkID("link-1")
	store := newTestRedisStore(t, client, linkID)
	ctx := context.Background()

	clicks, err := store.ClickCount(ctx, linkID)
	require.NoError(t, err)
	assert.Zero(t, clicks)

	clicks, err = store.IncrementClicks(ctx, linkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), clicks)

	added, err := store.AddLike(ctx, linkID, ViewerID("viewer-1"))
	require.NoError(t, err)
	assert.True(t, added)
	added, err = store.AddLike(ctx, linkID, ViewerID("viewer-1"))
	require.NoError(t, err)
	assert.False(t, added)

	liked, err := store.ToggleLike(ctx, linkID, ViewerID("viewer-1"))
	require.NoError(t, err)
	assert.False(t, liked)

	count, err := store.LikeCount(ctx, linkID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.IncrementClicks(ctx, links.LinkID("missing"))
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestRedisStoreRegisterLinksKeepsCounters(t *testing.T) {
	client := newTestRedisClient(t)
	linkID := links.LinkID("link-1")
	store := newTestRedisStore(t, client, linkID)
	ctx := context.Background()

	_, err := store.IncrementClicks(ctx, linkID)
	require.NoError(t, err)
	require.NoError(t, store.RegisterLinks(ctx, []links.LinkID{linkID}))

	clicks, err := store.ClickCount(ctx, linkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), clicks)
}

func TestRedisStoreRefusesDeletedLink(t *testing.T) {
	client := newTestRedisClient(t)
	db := newTestDatabase(t)
	store := newTestRedisStore(t, client)
	catalog, err := links.NewCatalog(links.CatalogConfig{
		Database:   db,
		IDProvider: staticIDs{"link-1"},
		Lifecycle:  store,
	})
	require.NoError(t, err)
	ctx := context.Background()

	link, err := catalog.Create(ctx, links.NewLink{OwnerID: "owner-1", TargetURL: "https://example.com"})
	require.NoError(t, err)
	linkID := links.LinkID(link.LinkID)

	_, err = store.IncrementClicks(ctx, linkID)
	require.NoError(t, err)
	_, err = store.ToggleLike(ctx, linkID, ViewerID("viewer-1"))
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(ctx, linkID))

	_, err = store.IncrementClicks(ctx, linkID)
	assert.ErrorIs(t, err, ErrLinkNotFound)
	_, err = store.ToggleLike(ctx, linkID, ViewerID("viewer-1"))
	assert.ErrorIs(t, err, ErrLinkNotFound)
	_, err = store.LikeCount(ctx, linkID)
	assert.ErrorIs(t, err, ErrLinkNotFound)

	remaining, err := client.Exists(ctx, store.linkKey(linkID), store.clicksKey(linkID), store.likesKey(linkID)).Result()
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestRedisStoreConcurrentToggleParity(t *testing.T) {
	client := newTestRedisClient(t)
	linkID := links.LinkID("link-1")
	store := newTestRedisStore(t, client, linkID)
	engine := newTestEngine(t, store)

	const toggles = 51
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Toggle(context.Background(), linkID, ViewerID("viewer-1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	liked, err := store.HasLike(context.Background(), linkID, ViewerID("viewer-1"))
	require.NoError(t, err)
	assert.True(t, liked)
	count, err := store.LikeCount(context.Background(), linkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
