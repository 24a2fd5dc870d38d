package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheSize = 512

// LocalLike is a like state held on the viewer's side while the server is unreachable.
type LocalLike struct {
	Liked      bool      `json:"liked"`
	LikesCount int64     `json:"likesCount"`
	SavedAt    time.Time `json:"savedAt"`
}

// LikeCache persists local like overrides per viewer and link.
type LikeCache interface {
	Load(viewerID, linkID string) (LocalLike, bool, error)
	Store(viewerID, linkID string, like LocalLike) error
	Delete(viewerID, linkID string) error
}

func cacheKey(viewerID, linkID string) string {
	return viewerID + "|" + linkID
}

// MemoryLikeCache keeps overrides in a bounded in-process LRU.
type MemoryLikeCache struct {
	entries *lru.Cache[string, LocalLike]
}

// NewMemoryLikeCache builds a cache holding at most size entries.
func NewMemoryLikeCache(size int) (*MemoryLikeCache, error) {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	entries, err := lru.New[string, LocalLike](size)
	if err != nil {
		return nil, fmt.Errorf("client: create like cache: %w", err)
	}
	return &MemoryLikeCache{entries: entries}, nil
}

// Load returns the cached like, if any.
func (c *MemoryLikeCache) Load(viewerID, linkID string) (LocalLike, bool, error) {
	like, ok := c.entries.Get(cacheKey(viewerID, linkID))
	return like, ok, nil
}

// Store caches the like, evicting the least recently used entry when full.
func (c *MemoryLikeCache) Store(viewerID, linkID string, like LocalLike) error {
	c.entries.Add(cacheKey(viewerID, linkID), like)
	return nil
}

// Delete drops the cached like.
func (c *MemoryLikeCache) Delete(viewerID, linkID string) error {
	c.entries.Remove(cacheKey(viewerID, linkID))
	return nil
}

var errMissingCachePath = errors.New("client: like cache path is required")

// FileLikeCache keeps overrides in a JSON document so they survive restarts.
type FileLikeCache struct {
	path string
	mu   sync.Mutex
}

// NewFileLikeCache returns a cache backed by the file at path. The file is
// created on first write.
func NewFileLikeCache(path string) (*FileLikeCache, error) {
	if path == "" {
		return nil, errMissingCachePath
	}
	return &FileLikeCache{path: path}, nil
}

// Load reads the like from the cache file.
func (c *FileLikeCache) Load(viewerID, linkID string) (LocalLike, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return LocalLike{}, false, err
	}
	like, ok := entries[cacheKey(viewerID, linkID)]
	return like, ok, nil
}

// Store writes the like and replaces the cache file atomically.
func (c *FileLikeCache) Store(viewerID, linkID string, like LocalLike) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return err
	}
	entries[cacheKey(viewerID, linkID)] = like
	return c.write(entries)
}

// Delete removes the like from the cache file.
func (c *FileLikeCache) Delete(viewerID, linkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return err
	}
	key := cacheKey(viewerID, linkID)
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return c.write(entries)
}

func (c *FileLikeCache) read() (map[string]LocalLike, error) {
	entries := make(map[string]LocalLike)
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client: read like cache: %w", err)
	}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("client: decode like cache: %w", err)
	}
	return entries, nil
}

func (c *FileLikeCache) write(entries map[string]LocalLike) error {
	encoded, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("client: encode like cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("client: create like cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".likes-*.json")
	if err != nil {
		return fmt.Errorf("client: create like cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("client: write like cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("client: close like cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("client: replace like cache: %w", err)
	}
	return nil
}
