// Package intel maintains the deny-reputation list consulted during
// session risk scoring.
package intel

import (
	"bufio"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/user/vncguard/internal/util"
)

// Reputation answers "is this address known-suspicious" from a configured
// list plus an optional feed file. Lookups are cached because the poll task
// asks about the same handful of addresses every few seconds.
type Reputation struct {
	mu    sync.RWMutex
	deny  map[string]struct{}
	cache *lru.Cache[string, bool]
	feed  string
}

// NewReputation builds a reputation list from static entries and an
// optional feed file (one address per line, # comments).
func NewReputation(static []string, feedFile string, cacheSize int) (*Reputation, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, err
	}

	r := &Reputation{
		deny:  make(map[string]struct{}, len(static)),
		cache: cache,
		feed:  feedFile,
	}
	for _, addr := range static {
		r.deny[strings.TrimSpace(addr)] = struct{}{}
	}

	if feedFile != "" {
		if err := r.Refresh(); err != nil {
			util.Warn("Reputation feed %s not loaded: %v", feedFile, err)
		}
	}

	return r, nil
}

// Refresh reloads the feed file, merging it into the deny set.
func (r *Reputation) Refresh() error {
	if r.feed == "" {
		return nil
	}

	f, err := os.Open(r.feed)
	if err != nil {
		return err
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)

	r.mu.Lock()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.deny[line] = struct{}{}
		loaded++
	}
	r.mu.Unlock()
	r.cache.Purge()

	if err := scanner.Err(); err != nil {
		return err
	}

	util.Debug("Reputation feed loaded: %d entries from %s", loaded, r.feed)
	return nil
}

// IsSuspicious reports whether the address is on the deny-reputation list.
func (r *Reputation) IsSuspicious(addr string) bool {
	if v, ok := r.cache.Get(addr); ok {
		return v
	}

	r.mu.RLock()
	_, bad := r.deny[addr]
	r.mu.RUnlock()

	r.cache.Add(addr, bad)
	return bad
}

// Add inserts an address into the deny set at runtime.
func (r *Reputation) Add(addr string) {
	r.mu.Lock()
	r.deny[addr] = struct{}{}
	r.mu.Unlock()
	r.cache.Remove(addr)
}

// Size returns the number of deny-listed addresses.
func (r *Reputation) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deny)
}
