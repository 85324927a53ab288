package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront-api/internal/models"
	"storefront-api/internal/sources"
	"storefront-api/pkg/cache"
)

const (
	testProductsCSV = `id,name,price,image,brandId,categoryId,subCategoryId,quantity,status
p1,Arij Agarbatti,45,"a.jpg,b.jpg",b1,c1,s1,100g,a
p2,Camphor Tablets,280,c.jpg,b2,c1,s2,,a
p3,Retired,10,d.jpg,b1,c1,s1,,i
p4,Mystery,15,e.jpg,b9,c1,s1,,a
`
	testBrandsJSON        = `{"records":[{"_id":"b1","brandName":"Cycle"},{"_id":"b2","brandName":"Zed Black"}]}`
	testCategoriesCSV     = "id,categoryName\nc1,Pooja\n"
	testSubCategoriesHTML = `<table><tr><th>id</th><th>name</th><th>categoryId</th></tr>
<tr><td>s1</td><td>Sticks</td><td>c1</td></tr><tr><td>s2</td><td>Tablets</td><td>c1</td></tr></table>`
)

type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	errs     map[string]error
	calls    atomic.Int32
	release  chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: map[string]string{
			"mem://products":      testProductsCSV,
			"mem://brands":        testBrandsJSON,
			"mem://categories":    testCategoriesCSV,
			"mem://subcategories": testSubCategoriesHTML,
		},
		errs: map[string]error{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	payload, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", models.ErrFetchFailure, url)
	}
	return []byte(payload), nil
}

func testSources() []sources.Source {
	out := make([]sources.Source, 0, len(sources.Kinds))
	for _, k := range sources.Kinds {
		out = append(out, sources.Source{Kind: k, URL: "mem://" + string(k)})
	}
	return out
}

func newTestCatalog(t *testing.T, fetcher sources.Fetcher, redisCache *cache.RedisCache) *CatalogService {
	t.Helper()
	return NewCatalogService(testSources(), "auto", fetcher, redisCache, 5*time.Second)
}

func TestCatalogService_Load(t *testing.T) {
	svc := newTestCatalog(t, newFakeFetcher(), nil)

	_, err := svc.Snapshot()
	assert.True(t, errors.Is(err, models.ErrCatalogUnavailable))
	assert.Equal(t, StatusEmpty, svc.Stats().Status)

	snap, err := svc.Load(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, snap.Products, 3)
	p1, ok := snap.Product("p1")
	require.True(t, ok)
	assert.Equal(t, "Cycle", p1.BrandName)
	assert.Equal(t, "Pooja", p1.CategoryName)
	assert.Equal(t, "Sticks", p1.SubCategoryName)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, p1.Images)

	p4, ok := snap.Product("p4")
	require.True(t, ok)
	assert.Equal(t, models.UnknownBrand, p4.BrandName)

	_, ok = snap.Product("p3")
	assert.False(t, ok, "inactive products are not published")

	stats := svc.Stats()
	assert.Equal(t, StatusReady, stats.Status)
	assert.Equal(t, 3, stats.Products)
	assert.Equal(t, 2, stats.Brands)
	assert.Equal(t, 1, stats.Categories)
	assert.Equal(t, 2, stats.SubCategories)
	assert.Equal(t, 1, stats.OrphanedRefs[OrphanBrand])
	assert.Equal(t, 1, stats.RowsSkipped["products_inactive"])

	current, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, current)
}

func TestCatalogService_FailClosed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeFetcher)
		want   error
	}{
		{
			name: "fetch failure",
			mutate: func(f *fakeFetcher) {
				f.errs["mem://categories"] = fmt.Errorf("%w: 502", models.ErrFetchFailure)
			},
			want: models.ErrFetchFailure,
		},
		{
			name: "parse failure",
			mutate: func(f *fakeFetcher) {
				f.payloads["mem://brands"] = `{"records":`
			},
			want: models.ErrParseFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			svc := newTestCatalog(t, fetcher, nil)
			_, err := svc.Load(context.Background(), false)
			require.NoError(t, err)

			tt.mutate(fetcher)
			_, err = svc.Load(context.Background(), true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrCatalogUnavailable))
			assert.True(t, errors.Is(err, tt.want))

			_, err = svc.Snapshot()
			assert.True(t, errors.Is(err, models.ErrCatalogUnavailable), "no partial catalog is served")

			stats := svc.Stats()
			assert.Equal(t, StatusFailed, stats.Status)
			assert.NotEmpty(t, stats.LastError)
		})
	}
}

func TestCatalogService_ConcurrentLoadsShareOneFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.release = make(chan struct{})
	svc := newTestCatalog(t, fetcher, nil)

	var wg sync.WaitGroup
	var entered atomic.Int32
	snaps := make([]*Snapshot, 3)
	for i := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entered.Add(1)
			snap, err := svc.Load(context.Background(), true)
			assert.NoError(t, err)
			snaps[i] = snap
		}()
	}

	require.Eventually(t, func() bool {
		return entered.Load() == 3 && fetcher.calls.Load() == 4
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(4), fetcher.calls.Load())
	assert.Same(t, snaps[0], snaps[1])
	assert.Same(t, snaps[1], snaps[2])
}

func TestCatalogService_UsesPayloadCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewRedisCacheFromClient(client, time.Minute)

	fetcher := newFakeFetcher()
	svc := newTestCatalog(t, fetcher, redisCache)

	_, err := svc.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(4), fetcher.calls.Load())
	assert.Len(t, redisCache.GetAllKeys(context.Background()), 4)

	snap, err := svc.Load(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(4), fetcher.calls.Load(), "second load is served from cache")
	assert.ElementsMatch(t, []string{"products", "brands", "categories", "subcategories"}, snap.Stats.CachedSources)

	_, err = svc.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(8), fetcher.calls.Load(), "refresh bypasses the cache")
}

func TestCatalogService_NoFetcher(t *testing.T) {
	svc := newTestCatalog(t, nil, nil)
	_, err := svc.Load(context.Background(), false)
	assert.True(t, errors.Is(err, models.ErrCatalogUnavailable))
}
