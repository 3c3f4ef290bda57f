package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	ModelCacheTTL = 30 * time.Minute
	cacheDir      = "grade-llm"
)

// ModelCache is the model list last fetched from one endpoint.
type ModelCache struct {
	BaseURL   string    `json:"base_url"`
	Models    []string  `json:"models"`
	FetchedAt time.Time `json:"fetched_at"`
}

func getCacheDir() (string, error) {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, cacheDir), nil
}

// cacheName keys the file by endpoint so switching base_url never serves
// another service's models.
func cacheName(baseURL string) string {
	sum := sha256.Sum256([]byte(baseURL))
	return "models-" + hex.EncodeToString(sum[:6])
}

func getCachePath(baseURL string) (string, error) {
	dir, err := getCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheName(baseURL)+".json"), nil
}

// ReadModelCache returns the cached list for baseURL, or an error when
// there is none.
func ReadModelCache(baseURL string) (*ModelCache, error) {
	path, err := getCachePath(baseURL)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cache ModelCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// WriteModelCache atomically replaces the cached list for baseURL.
func WriteModelCache(baseURL string, models []string) error {
	dir, err := getCacheDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := getCachePath(baseURL)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ModelCache{
		BaseURL:   baseURL,
		Models:    models,
		FetchedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, cacheName(baseURL)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	renamed = true
	return nil
}

// IsCacheValid reports whether cache is for baseURL and younger than
// ModelCacheTTL.
func IsCacheValid(cache *ModelCache, baseURL string) bool {
	if cache == nil || cache.BaseURL != baseURL || len(cache.Models) == 0 {
		return false
	}
	return time.Since(cache.FetchedAt) < ModelCacheTTL
}
