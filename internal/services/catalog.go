package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"storefront-api/internal/models"
	"storefront-api/internal/sources"
	"storefront-api/pkg/cache"
)

const (
	StatusEmpty   = "empty"
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// Snapshot is one complete, immutable catalog load.
type Snapshot struct {
	Products []models.EnhancedProduct
	Lookups  *Lookups
	Stats    models.LoadStats

	byID map[string]int
}

func (s *Snapshot) Product(id string) (models.EnhancedProduct, bool) {
	if s == nil {
		return models.EnhancedProduct{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return models.EnhancedProduct{}, false
	}
	return s.Products[i], true
}

// CatalogService loads the four catalog sources and publishes the result as
// a Snapshot. A load either succeeds for every source or publishes nothing.
type CatalogService struct {
	sources []sources.Source
	format  string
	fetcher sources.Fetcher
	cache   *cache.RedisCache
	timeout time.Duration

	snapshot atomic.Pointer[Snapshot]
	group    singleflight.Group

	mu     sync.RWMutex
	status models.LoadStats
}

func NewCatalogService(srcs []sources.Source, format string, fetcher sources.Fetcher, redisCache *cache.RedisCache, timeout time.Duration) *CatalogService {
	return &CatalogService{
		sources: srcs,
		format:  format,
		fetcher: fetcher,
		cache:   redisCache,
		timeout: timeout,
		status:  models.LoadStats{Status: StatusEmpty},
	}
}

// Snapshot returns the current catalog, or ErrCatalogUnavailable when no load
// has succeeded.
func (s *CatalogService) Snapshot() (*Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, models.ErrCatalogUnavailable
	}
	return snap, nil
}

func (s *CatalogService) Stats() models.LoadStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Load fetches every source and swaps in the new snapshot. Callers arriving
// while a load runs wait for it and share its result. refresh skips the raw
// payload cache.
func (s *CatalogService) Load(ctx context.Context, refresh bool) (*Snapshot, error) {
	ch := s.group.DoChan("catalog", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.load(loadCtx, refresh)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *CatalogService) load(ctx context.Context, refresh bool) (*Snapshot, error) {
	startTime := time.Now()
	s.setStatus(func(st *models.LoadStats) { st.Status = StatusLoading })

	results := make([]sources.Result, len(s.sources))
	fromCache := make([]bool, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			payload, cached, err := s.fetch(gctx, src, refresh)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Kind, err)
			}

			result, err := sources.Decode(src.Kind, s.format, payload)
			if err != nil {
				return err
			}
			results[i] = result
			fromCache[i] = cached

			if !cached && s.cache.IsAvailable() {
				key := s.cache.GenerateSourceKey(string(src.Kind), src.URL)
				if err := s.cache.SetPayload(gctx, key, payload); err != nil {
					log.Warnf("Failed to cache %s payload: %v", src.Kind, err)
				}
			}

			log.Infof("%s source loaded: %d rows, %d skipped", src.Kind, len(result.Rows), result.Skipped)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Errorf("Catalog load failed: %v", err)
		s.snapshot.Store(nil)
		s.setStatus(func(st *models.LoadStats) {
			*st = models.LoadStats{Status: StatusFailed, LastError: err.Error()}
		})
		return nil, fmt.Errorf("%w: %w", models.ErrCatalogUnavailable, err)
	}

	snap := s.build(results)
	snap.Stats.Duration = time.Since(startTime).String()
	for i, src := range s.sources {
		if fromCache[i] {
			snap.Stats.CachedSources = append(snap.Stats.CachedSources, string(src.Kind))
		}
	}

	s.snapshot.Store(snap)
	s.setStatus(func(st *models.LoadStats) { *st = snap.Stats })

	log.Infof("Catalog ready: %d products, %d brands, %d categories, %d subcategories in %s",
		snap.Stats.Products, snap.Stats.Brands, snap.Stats.Categories, snap.Stats.SubCategories, snap.Stats.Duration)
	return snap, nil
}

// fetch returns the payload for src, from the cache unless refresh is set.
func (s *CatalogService) fetch(ctx context.Context, src sources.Source, refresh bool) ([]byte, bool, error) {
	if !refresh && s.cache.IsAvailable() {
		key := s.cache.GenerateSourceKey(string(src.Kind), src.URL)
		payload, err := s.cache.GetPayload(ctx, key)
		switch {
		case err != nil:
			log.Warnf("Cache read for %s failed: %v", src.Kind, err)
		case payload != nil:
			log.Debugf("Cache HIT for key: %s", key)
			return payload, true, nil
		default:
			log.Debugf("Cache MISS for key: %s", key)
		}
	}

	if s.fetcher == nil {
		return nil, false, errors.New("no fetcher configured")
	}
	payload, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

func (s *CatalogService) build(results []sources.Result) *Snapshot {
	byKind := make(map[sources.Kind]sources.Result, len(results))
	for _, r := range results {
		byKind[r.Kind] = r
	}

	lookups, orphans := BuildLookups(
		byKind[sources.Brands].Rows,
		byKind[sources.Categories].Rows,
		byKind[sources.SubCategories].Rows,
	)
	products, productOrphans := Normalize(byKind[sources.Products].Rows, lookups)
	for k, v := range productOrphans {
		orphans[k] += v
	}

	skipped := map[string]int{}
	for kind, r := range byKind {
		if r.Skipped > 0 {
			skipped[string(kind)] = r.Skipped
		}
		if r.Inactive > 0 {
			skipped[string(kind)+"_inactive"] = r.Inactive
		}
	}

	kinds := make([]string, 0, len(orphans))
	for k := range orphans {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		log.WithFields(log.Fields{"reference": k, "count": orphans[k]}).
			Warn("Catalog has orphaned references, using placeholder names")
	}

	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	return &Snapshot{
		Products: products,
		Lookups:  lookups,
		byID:     byID,
		Stats: models.LoadStats{
			Status:        StatusReady,
			LoadedAt:      time.Now(),
			Products:      len(products),
			Brands:        len(lookups.Brands),
			Categories:    len(lookups.Categories),
			SubCategories: len(lookups.SubCategories),
			RowsSkipped:   skipped,
			OrphanedRefs:  orphans,
		},
	}
}

func (s *CatalogService) setStatus(update func(*models.LoadStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.status)
}
