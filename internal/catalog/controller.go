package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/shopstate/internal/observe"
	"github.com/abgdnv/shopstate/pkg/kvstore"
)

// Namespace is the typed-store namespace owned by the catalog controller.
const Namespace = "catalog-cache"

// Phase is the listing lifecycle state for one query key.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// QueryKey identifies one independent pagination session.
type QueryKey struct {
	Category    string `json:"category"`
	SearchQuery string `json:"search_query"`
}

// cacheKey derives the typed-store key for a query key. Encoded so the key
// stays within the character set every medium accepts.
func (k QueryKey) cacheKey() string {
	raw, _ := json.Marshal(k)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Snapshot is the observable state pushed to consumers on every transition.
// Results stays populated through Loading and Error phases whenever
// stale-but-available data exists.
type Snapshot struct {
	Query   QueryKey
	Phase   Phase
	Results []Product
	HasMore bool
	Err     error
}

// session is the pagination state for one query key.
type session struct {
	page     int
	hasMore  bool
	loading  bool
	fetchGen uint64
	results  []Product
	err      error
}

// Controller owns paginated, filterable product listings. One Controller
// instance is the single logical owner of its sessions; switching category
// or search query supersedes the active session without merging into it.
//
// The only built-in concurrency guard is the duplicate-page-fetch rejection:
// LoadNextPage is a no-op while the active session is already loading. A
// fetch that resolves after a newer Load or Refresh has reset the state is
// discarded via a generation counter.
type Controller struct {
	client   Client
	store    *kvstore.Store
	pageSize int
	logger   *slog.Logger
	notifier *observe.Notifier[Snapshot]

	mu       sync.Mutex
	gen      uint64
	current  QueryKey
	started  bool
	sessions map[QueryKey]*session
}

// NewController creates a catalog controller with a fixed page size.
func NewController(client Client, store *kvstore.Store, pageSize int, logger *slog.Logger) *Controller {
	return &Controller{
		client:   client,
		store:    store,
		pageSize: pageSize,
		logger:   logger.With("component", "catalog"),
		notifier: observe.NewNotifier[Snapshot](),
		sessions: make(map[QueryKey]*session),
	}
}

// Subscribe registers a consumer for every state transition.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	return c.notifier.Subscribe(fn)
}

// Current returns the active session's state without side effects.
func (c *Controller) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[c.current]
	if !ok || !c.started {
		return Snapshot{Query: c.current, Phase: PhaseIdle}
	}
	return c.snapshotLocked(c.current, s)
}

// Load starts (or restarts) the session for the given category and search
// query: it becomes the active query key, page 0 is fetched and the cached
// results are replaced wholesale on success. A prior session for a different
// key is retained, not merged. On failure the last-known-good listing is
// served from the typed store when one exists.
func (c *Controller) Load(ctx context.Context, category, searchQuery string) error {
	key := QueryKey{Category: category, SearchQuery: searchQuery}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.current = key
	c.started = true
	s, ok := c.sessions[key]
	if !ok {
		s = &session{hasMore: true}
		c.sessions[key] = s
	}
	s.loading = true
	s.fetchGen = gen
	s.err = nil
	loading := c.snapshotLocked(key, s)
	c.mu.Unlock()
	c.notifier.Publish(loading)

	products, fetchErr := c.client.FetchProducts(ctx, FetchParams{
		Offset:      0,
		Limit:       c.pageSize,
		Category:    category,
		SearchQuery: searchQuery,
	})
	var cached []Product
	if fetchErr != nil {
		cached = c.readCache(ctx, key)
	}

	c.mu.Lock()
	if s.fetchGen == gen {
		s.loading = false
	}
	if gen != c.gen {
		// A newer Load or Refresh superseded this fetch; discard its result.
		c.mu.Unlock()
		return nil
	}
	if fetchErr != nil {
		if len(s.results) == 0 && len(cached) > 0 {
			s.results = cached
		}
		s.err = fetchErr
		snap := c.snapshotLocked(key, s)
		c.mu.Unlock()
		c.notifier.Publish(snap)
		return fmt.Errorf("failed to load catalog page 0: %w", fetchErr)
	}
	s.results = products
	s.page = 0
	s.hasMore = len(products) >= c.pageSize
	snap := c.snapshotLocked(key, s)
	c.mu.Unlock()
	c.notifier.Publish(snap)

	c.writeCache(ctx, key, products)
	return nil
}

// LoadNextPage fetches the next page for the active session and appends it
// to the cached results. It is a no-op when there is nothing more to fetch
// or a fetch for the session is already in flight. On failure the prior
// results remain observable (stale-but-available).
func (c *Controller) LoadNextPage(ctx context.Context) error {
	c.mu.Lock()
	key := c.current
	s, ok := c.sessions[key]
	if !ok || s.loading || !s.hasMore {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	s.loading = true
	s.fetchGen = gen
	s.err = nil
	offset := (s.page + 1) * c.pageSize
	loading := c.snapshotLocked(key, s)
	c.mu.Unlock()
	c.notifier.Publish(loading)

	products, fetchErr := c.client.FetchProducts(ctx, FetchParams{
		Offset:      offset,
		Limit:       c.pageSize,
		Category:    key.Category,
		SearchQuery: key.SearchQuery,
	})

	c.mu.Lock()
	if s.fetchGen == gen {
		s.loading = false
	}
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	if fetchErr != nil {
		s.err = fetchErr
		snap := c.snapshotLocked(key, s)
		c.mu.Unlock()
		c.notifier.Publish(snap)
		return fmt.Errorf("failed to load catalog page at offset %d: %w", offset, fetchErr)
	}
	s.results = append(s.results, products...)
	s.page++
	s.hasMore = len(products) >= c.pageSize
	snap := c.snapshotLocked(key, s)
	allResults := snap.Results
	c.mu.Unlock()
	c.notifier.Publish(snap)

	c.writeCache(ctx, key, allResults)
	return nil
}

// Refresh re-issues page 0 for the active session bypassing the
// collaborator's cache layer, resetting pagination and replacing the cached
// results wholesale on success.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	key := c.current
	c.started = true
	s, ok := c.sessions[key]
	if !ok {
		s = &session{}
		c.sessions[key] = s
	}
	s.page = 0
	s.hasMore = true
	s.loading = true
	s.fetchGen = gen
	s.err = nil
	loading := c.snapshotLocked(key, s)
	c.mu.Unlock()
	c.notifier.Publish(loading)

	products, fetchErr := c.client.FetchProducts(ctx, FetchParams{
		Offset:      0,
		Limit:       c.pageSize,
		Category:    key.Category,
		SearchQuery: key.SearchQuery,
		BypassCache: true,
	})

	c.mu.Lock()
	if s.fetchGen == gen {
		s.loading = false
	}
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	if fetchErr != nil {
		s.err = fetchErr
		snap := c.snapshotLocked(key, s)
		c.mu.Unlock()
		c.notifier.Publish(snap)
		return fmt.Errorf("failed to refresh catalog: %w", fetchErr)
	}
	s.results = products
	s.hasMore = len(products) >= c.pageSize
	snap := c.snapshotLocked(key, s)
	c.mu.Unlock()
	c.notifier.Publish(snap)

	c.writeCache(ctx, key, products)
	return nil
}

// Categories returns the collaborator's category identifiers.
func (c *Controller) Categories(ctx context.Context) ([]string, error) {
	categories, err := c.client.FetchCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return categories, nil
}

// snapshotLocked builds the observable state for a session. Caller holds c.mu.
func (c *Controller) snapshotLocked(key QueryKey, s *session) Snapshot {
	results := make([]Product, len(s.results))
	copy(results, s.results)
	snap := Snapshot{
		Query:   key,
		Phase:   PhaseReady,
		Results: results,
		HasMore: s.hasMore,
		Err:     s.err,
	}
	if s.loading {
		snap.Phase = PhaseLoading
	} else if s.err != nil {
		snap.Phase = PhaseError
	}
	return snap
}

// readCache returns the last listing persisted for a query key, or nil.
// Corruption self-heals by clearing the offending key; it is never surfaced.
func (c *Controller) readCache(ctx context.Context, key QueryKey) []Product {
	value, err := c.store.Get(ctx, Namespace, key.cacheKey(), kvstore.KindRecord)
	if err != nil {
		c.healCache(ctx, key, err)
		return nil
	}
	var products []Product
	if err := value.Decode(&products); err != nil {
		c.healCache(ctx, key, err)
		return nil
	}
	return products
}

// healCache clears a cache entry that failed to decode.
func (c *Controller) healCache(ctx context.Context, key QueryKey, err error) {
	var decodeErr *kvstore.DecodeError
	if !errors.As(err, &decodeErr) {
		return
	}
	c.logger.WarnContext(ctx, "Clearing corrupt catalog cache entry", "query", key, "error", err)
	if err := c.store.Remove(ctx, Namespace, key.cacheKey()); err != nil {
		c.logger.ErrorContext(ctx, "Failed to clear corrupt catalog cache entry", "query", key, "error", err)
	}
}

// writeCache persists a listing for stale-on-error recovery. Best effort: a
// cache write failure is logged, never propagated.
func (c *Controller) writeCache(ctx context.Context, key QueryKey, products []Product) {
	value, err := kvstore.RecordValue(products)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to encode catalog cache entry", "query", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, Namespace, key.cacheKey(), value); err != nil {
		c.logger.WarnContext(ctx, "Failed to persist catalog cache entry", "query", key, "error", err)
	}
}
