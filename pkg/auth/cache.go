package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const authCacheFile = "cached_auth.json"

// tokenTTL is how long a fetched token stays valid. The service rotates
// tokens on a daily cycle; 24 hours matches the observed window.
const tokenTTL = 24 * time.Hour

// authCache is the on-disk shape of cached_auth.json. CachedAt is epoch
// milliseconds.
type authCache struct {
	XSRFToken     string `json:"xsrf_token"`
	SessionID     string `json:"session_id,omitempty"`
	MoleWorldBody string `json:"mole_world_body"`
	CachedAt      int64  `json:"cached_at"`
}

func (c *authCache) expired(now time.Time) bool {
	acquired := time.UnixMilli(c.CachedAt)
	return now.Sub(acquired) >= tokenTTL
}

func loadAuthCache(cacheDir string, now time.Time) *authCache {
	data, err := os.ReadFile(filepath.Join(cacheDir, authCacheFile))
	if err != nil {
		return nil
	}
	var cache authCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	if cache.XSRFToken == "" || cache.CachedAt == 0 || cache.expired(now) {
		return nil
	}
	return &cache
}

func saveAuthCache(cacheDir string, cache *authCache) error {
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cacheDir, authCacheFile), data, 0o600)
}

func deleteAuthCache(cacheDir string) error {
	err := os.Remove(filepath.Join(cacheDir, authCacheFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
