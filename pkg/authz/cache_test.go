package authz

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/observability"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewCache(rdb, nil, logger, nil), mr
}

func testPrincipal(jti string, expiresIn time.Duration) *auth.Principal {
	return &auth.Principal{
		Subject:   "user-1",
		Issuer:    "https://auth.formloft.io",
		TokenID:   jti,
		TenantID:  3,
		ExpiresAt: time.Now().Add(expiresIn),
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("caches resolved data and stamps metadata", func(t *testing.T) {
		cache, _ := newTestCache(t)
		p := testPrincipal("jti-1", time.Hour)

		calls := 0
		resolve := func(context.Context) (*AuthorizationData, error) {
			calls++
			return NewAuthorizationData("user-1", 3, []string{"editor"}, []string{"forms.edit"}), nil
		}

		first, err := cache.GetOrCreate(ctx, p, resolve)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if first.ETag == "" || first.CachedAt.IsZero() || first.ExpiresAt.IsZero() {
			t.Errorf("metadata not stamped: %+v", first)
		}

		second, err := cache.GetOrCreate(ctx, p, resolve)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if calls != 1 {
			t.Errorf("resolver called %d times, want 1", calls)
		}
		if second.ETag != first.ETag {
			t.Errorf("etag changed across cache hits: %q vs %q", first.ETag, second.ETag)
		}
		if !second.CachedAt.Equal(first.CachedAt) {
			t.Errorf("CachedAt changed across cache hits")
		}
	})

	t.Run("ttl derives from token expiry minus safety buffer", func(t *testing.T) {
		cache, mr := newTestCache(t)
		p := testPrincipal("jti-ttl", 5*time.Minute)

		_, err := cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
			return NewAuthorizationData("user-1", 3, nil, nil), nil
		})
		if err != nil {
			t.Fatal(err)
		}

		ttl := mr.TTL("jwt_auth:jti-ttl")
		if ttl <= 4*time.Minute || ttl > 5*time.Minute-5*time.Second {
			t.Errorf("ttl = %v, want within (4m, 4m50s]", ttl)
		}
	})

	t.Run("expired token falls back to fixed ttl", func(t *testing.T) {
		cache, mr := newTestCache(t)
		p := testPrincipal("jti-expired", -time.Minute)

		_, err := cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
			return NewAuthorizationData("user-1", 3, nil, nil), nil
		})
		if err != nil {
			t.Fatal(err)
		}

		ttl := mr.TTL("jwt_auth:jti-expired")
		if ttl <= 14*time.Minute || ttl > 15*time.Minute {
			t.Errorf("ttl = %v, want close to 15m fallback", ttl)
		}
	})

	t.Run("resolver failure propagates and caches nothing", func(t *testing.T) {
		cache, mr := newTestCache(t)
		p := testPrincipal("jti-fail", time.Hour)

		wantErr := errors.New("database down")
		_, err := cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("expected resolver error, got %v", err)
		}
		if mr.Exists("jwt_auth:jti-fail") {
			t.Error("failure must not be cached")
		}

		// A later attempt runs the resolver again.
		calls := 0
		_, err = cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
			calls++
			return NewAuthorizationData("user-1", 3, nil, nil), nil
		})
		if err != nil || calls != 1 {
			t.Errorf("retry after failure: err=%v calls=%d", err, calls)
		}
	})

	t.Run("corrupt entry is dropped and re-resolved", func(t *testing.T) {
		cache, mr := newTestCache(t)
		p := testPrincipal("jti-corrupt", time.Hour)
		mr.Set("jwt_auth:jti-corrupt", "{not json")

		data, err := cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
			return NewAuthorizationData("user-1", 3, []string{"editor"}, nil), nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !data.HasRole("editor") {
			t.Error("expected freshly resolved data")
		}
	})
}

func TestCacheSingleFlight(t *testing.T) {
	cache, _ := newTestCache(t)
	p := testPrincipal("jti-flight", time.Hour)

	var calls int32
	release := make(chan struct{})
	resolve := func(context.Context) (*AuthorizationData, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return NewAuthorizationData("user-1", 3, []string{"editor"}, nil), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetOrCreate(context.Background(), p, resolve)
			errs <- err
		}()
	}

	// Give the goroutines time to pile onto the same flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent GetOrCreate: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("resolver called %d times under concurrency, want 1", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	p := testPrincipal("jti-inv", time.Hour)

	if _, err := cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
		return NewAuthorizationData("user-1", 3, nil, nil), nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := cache.Invalidate(ctx, "user-1", 3, "jti-inv"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if mr.Exists("jwt_auth:jti-inv") {
		t.Error("token entry survived invalidation")
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	for _, jti := range []string{"a", "b", "c"} {
		p := testPrincipal(jti, time.Hour)
		if _, err := cache.GetOrCreate(ctx, p, func(context.Context) (*AuthorizationData, error) {
			return NewAuthorizationData("user-1", 3, nil, nil), nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	for _, jti := range []string{"a", "b", "c"} {
		if mr.Exists("jwt_auth:" + jti) {
			t.Errorf("entry jwt_auth:%s survived flush", jti)
		}
	}
	if mr.Exists("auth_tags") {
		t.Error("tag set survived flush")
	}
}

func TestCacheWithoutTokenID(t *testing.T) {
	// No jti to key on: the entry falls back to the user-scoped key.
	cache, mr := newTestCache(t)
	p := testPrincipal("", time.Hour)

	calls := 0
	resolve := func(context.Context) (*AuthorizationData, error) {
		calls++
		return NewAuthorizationData("user-1", 3, []string{"editor"}, nil), nil
	}

	data, err := cache.GetOrCreate(context.Background(), p, resolve)
	if err != nil {
		t.Fatal(err)
	}
	if data.ETag == "" {
		t.Error("metadata must still be stamped")
	}
	if !mr.Exists("usr_auth:user-1:3") {
		t.Errorf("expected a user-scoped entry, found keys %v", mr.Keys())
	}

	if _, err := cache.GetOrCreate(context.Background(), p, resolve); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("resolver ran %d times, want 1", calls)
	}
}
