package authz

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Stamp is a snapshot of the generation counters governing one cache
// entry: the global scope, the user's own scope, and every team the
// user belonged to at resolution time. An entry is served only while
// its stamp still matches the live counters, so a revocation is
// visible on the very next call after its bump. TTL expiry in the LRU
// is a memory bound, never a correctness mechanism.
type Stamp struct {
	Global uint64
	User   uint64
	Teams  map[string]uint64
}

// TeamIDs returns the team scopes covered by the stamp.
func (s Stamp) TeamIDs() []string {
	ids := make([]string, 0, len(s.Teams))
	for id := range s.Teams {
		ids = append(ids, id)
	}
	return ids
}

// Generations tracks per-scope invalidation counters. Writers bump
// the affected scope strictly after their transaction commits;
// readers snapshot counters strictly before reading store data. That
// ordering is what rules out serving a revoked grant from cache: any
// entry stamped before a bump mismatches after it.
type Generations interface {
	// SnapshotUser reads the global counter and one user's counter.
	SnapshotUser(ctx context.Context, userID string) (global, user uint64, err error)

	// SnapshotTeams reads the counters for a set of teams. Teams
	// never bumped report generation zero.
	SnapshotTeams(ctx context.Context, teamIDs []string) (map[string]uint64, error)

	BumpGlobal(ctx context.Context) error
	BumpUser(ctx context.Context, userID string) error
	BumpTeam(ctx context.Context, teamID string) error
}

// LocalGenerations is a process-local Generations implementation.
// Suitable for single-replica deployments and tests; multi-replica
// deployments share counters through RedisGenerations instead.
type LocalGenerations struct {
	global atomic.Uint64
	mu     sync.RWMutex
	users  map[string]uint64
	teams  map[string]uint64
}

// NewLocalGenerations creates an in-process generation tracker.
func NewLocalGenerations() *LocalGenerations {
	return &LocalGenerations{
		users: make(map[string]uint64),
		teams: make(map[string]uint64),
	}
}

func (g *LocalGenerations) SnapshotUser(_ context.Context, userID string) (uint64, uint64, error) {
	g.mu.RLock()
	user := g.users[userID]
	g.mu.RUnlock()
	return g.global.Load(), user, nil
}

func (g *LocalGenerations) SnapshotTeams(_ context.Context, teamIDs []string) (map[string]uint64, error) {
	gens := make(map[string]uint64, len(teamIDs))
	g.mu.RLock()
	for _, id := range teamIDs {
		gens[id] = g.teams[id]
	}
	g.mu.RUnlock()
	return gens, nil
}

func (g *LocalGenerations) BumpGlobal(_ context.Context) error {
	g.global.Add(1)
	return nil
}

func (g *LocalGenerations) BumpUser(_ context.Context, userID string) error {
	g.mu.Lock()
	g.users[userID]++
	g.mu.Unlock()
	return nil
}

func (g *LocalGenerations) BumpTeam(_ context.Context, teamID string) error {
	g.mu.Lock()
	g.teams[teamID]++
	g.mu.Unlock()
	return nil
}

type cacheEntry struct {
	decision Decision
	rule     *MatchedRule
	stamp    Stamp
}

// Cache memoizes resolver output keyed by (user, resource type,
// normalized path, action), validated against a Generations source. A
// hit costs only generation reads, never a store query. Population on
// miss may race between goroutines; resolution is pure, so last write
// wins without locking.
type Cache struct {
	entries *lru.LRU[string, cacheEntry]
	gens    Generations
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewCache creates a bounded decision cache over a generation source.
// ttl caps how long an entry can occupy memory; staleness is governed
// by generation stamps alone.
func NewCache(maxEntries int, ttl time.Duration, gens Generations) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache{
		entries: lru.NewLRU[string, cacheEntry](maxEntries, nil, ttl),
		gens:    gens,
	}
}

// CacheKey builds the canonical cache key for a request tuple.
func CacheKey(userID, resourceType, normalizedPath string, action Capability) string {
	return strings.Join([]string{userID, resourceType, normalizedPath, string(action)}, "\x1f")
}

// Lookup returns a cached decision if present and still covered by
// the live generation counters. Stale entries are dropped and count
// as misses, as does a generation source failure.
func (c *Cache) Lookup(ctx context.Context, key, userID string) (Decision, *MatchedRule, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return DecisionDeny, nil, false
	}

	global, user, err := c.gens.SnapshotUser(ctx, userID)
	if err != nil || global != entry.stamp.Global || user != entry.stamp.User {
		return c.stale(key)
	}
	teams, err := c.gens.SnapshotTeams(ctx, entry.stamp.TeamIDs())
	if err != nil {
		return c.stale(key)
	}
	for id, gen := range entry.stamp.Teams {
		if teams[id] != gen {
			return c.stale(key)
		}
	}

	c.hits.Add(1)
	return entry.decision, entry.rule, true
}

func (c *Cache) stale(key string) (Decision, *MatchedRule, bool) {
	c.entries.Remove(key)
	c.misses.Add(1)
	return DecisionDeny, nil, false
}

// NewStamp begins a stamp with the global and user counters. Callers
// must take it before their first store read.
func (c *Cache) NewStamp(ctx context.Context, userID string) (Stamp, error) {
	global, user, err := c.gens.SnapshotUser(ctx, userID)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Global: global, User: user, Teams: map[string]uint64{}}, nil
}

// StampTeams extends a stamp with team counters once memberships are
// known, still ahead of any role or permission read for those teams.
func (c *Cache) StampTeams(ctx context.Context, stamp *Stamp, teamIDs []string) error {
	teams, err := c.gens.SnapshotTeams(ctx, teamIDs)
	if err != nil {
		return err
	}
	stamp.Teams = teams
	return nil
}

// Store records a freshly resolved decision under its stamp.
func (c *Cache) Store(key string, stamp Stamp, decision Decision, rule *MatchedRule) {
	c.entries.Add(key, cacheEntry{decision: decision, rule: rule, stamp: stamp})
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
