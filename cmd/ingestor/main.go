// Standalone ingestion runner: same pipeline as the API server's scheduler,
// deployable as a cron-style job without the HTTP surface.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/auction-ingest/internal/env"
	"github.com/yourorg/auction-ingest/internal/ingest"
	"github.com/yourorg/auction-ingest/internal/redisx"
	"github.com/yourorg/auction-ingest/internal/runguard"
	"github.com/yourorg/auction-ingest/internal/store"
	"github.com/yourorg/auction-ingest/kakao"
	"github.com/yourorg/auction-ingest/onbid"
)

func main() {
	dsn := env.Must("PG_DSN")

	onbidClient := onbid.NewClient(onbid.Config{
		BaseURL:    env.Get("ONBID_BASE_URL", ""),
		ServiceKey: env.Must("ONBID_SERVICE_KEY"),
		Timeout:    env.GetDuration("ONBID_TIMEOUT", 10*time.Second),
	})
	kakaoClient := kakao.NewClient(kakao.Config{
		BaseURL:    env.Get("KAKAO_BASE_URL", ""),
		RESTAPIKey: env.Must("KAKAO_REST_API_KEY"),
	})

	st, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("store open error: %v", err)
	}
	defer st.DB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("postgres ping error: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		cancel()
		log.Fatalf("postgres migrate error: %v", err)
	}
	cancel()

	var guard runguard.Guard = runguard.NewMemoryGuard()
	if addr := env.Get("REDIS_ADDR", ""); addr != "" {
		rdb := redisx.New(addr, env.Get("REDIS_PASSWORD", ""), env.GetInt("REDIS_DB", 0))
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx); err != nil {
			pingCancel()
			log.Fatalf("redis ping error: %v", err)
		}
		pingCancel()
		guard = runguard.NewRedisGuard(rdb)
	}

	runner := &ingest.Runner{
		Source: onbidClient,
		Geo:    kakaoClient,
		Store:  st,
		Guard:  guard,
		Config: ingest.Config{
			PageSize:  env.GetInt("INGEST_PAGE_SIZE", 100),
			PagePause: env.GetDuration("INGEST_PAGE_PAUSE", 1*time.Second),
			MinHold:   env.GetDuration("INGEST_LEASE_MIN_HOLD", 5*time.Minute),
			MaxHold:   env.GetDuration("INGEST_LEASE_MAX_HOLD", 30*time.Minute),
			Interval:  env.GetDuration("INGEST_INTERVAL", 24*time.Hour),
		},
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if env.GetBool("INGEST_RUN_ONCE", false) {
		sum, err := runner.RunOnce(rootCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("ingest run failed after %s: %v", sum, err)
		}
		log.Printf("ingest run: %s", sum)
		return
	}

	if err := runner.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("ingest runner stopped with error: %v", err)
	}
}
