package main

import (
	"context"
	"log"
	"net/http"
	"time"

	httpapi "github.com/yourorg/auction-ingest/http"
	"github.com/yourorg/auction-ingest/internal/env"
	"github.com/yourorg/auction-ingest/internal/events"
	"github.com/yourorg/auction-ingest/internal/ingest"
	"github.com/yourorg/auction-ingest/internal/logger"
	"github.com/yourorg/auction-ingest/internal/redisx"
	"github.com/yourorg/auction-ingest/internal/runguard"
	"github.com/yourorg/auction-ingest/internal/store"
	"github.com/yourorg/auction-ingest/kakao"
	"github.com/yourorg/auction-ingest/onbid"
)

func main() {
	port := env.Get("PORT", "4002")
	dsn := env.Must("PG_DSN")
	adminToken := env.Must("ADMIN_TOKEN")

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

	// Redis-backed lease when configured; in-process guard otherwise. Both
	// trigger paths (scheduler and admin endpoint) contend for the same lease.
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

	pub := events.NewInMemory(256)
	go func() {
		for evt := range pub.SubscribeListingUpdated() {
			log.Printf("listing updated: cltr_no=%s hstr_no=%s geocoded=%v", evt.CltrNo, evt.CltrHstrNo, evt.Geocoded)
		}
	}()

	runner := &ingest.Runner{
		Source: onbidClient,
		Geo:    kakaoClient,
		Store:  st,
		Guard:  guard,
		Pub:    pub,
		Config: ingest.Config{
			PageSize:  env.GetInt("INGEST_PAGE_SIZE", 100),
			PagePause: env.GetDuration("INGEST_PAGE_PAUSE", 1*time.Second),
			MinHold:   env.GetDuration("INGEST_LEASE_MIN_HOLD", 5*time.Minute),
			MaxHold:   env.GetDuration("INGEST_LEASE_MAX_HOLD", 30*time.Minute),
			Interval:  env.GetDuration("INGEST_INTERVAL", 0),
		},
	}

	if runner.Config.Interval > 0 {
		go func() {
			if err := runner.Run(context.Background()); err != nil {
				log.Printf("scheduled ingest stopped: %v", err)
			}
		}()
	}

	router := BuildRouter(
		httpapi.AdminDeps{Runner: runner, Token: adminToken},
		httpapi.AuctionsDeps{Store: st, Onbid: onbidClient},
	)

	log.Printf("auction-ingest listening on :%s", port)
	if err := http.ListenAndServe(":"+port, logger.Middleware(router)); err != nil {
		log.Fatal(err)
	}
}
