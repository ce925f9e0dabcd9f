// Package ingest drives the periodic collection of auction listings from the
// Onbid feed into the store: page fetch, cleansing, geocoding, idempotent
// upsert, with per-record failure isolation.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/auction-ingest/internal/events"
	"github.com/yourorg/auction-ingest/internal/runguard"
	"github.com/yourorg/auction-ingest/internal/store"
	"github.com/yourorg/auction-ingest/kakao"
	"github.com/yourorg/auction-ingest/onbid"
)

type Source interface {
	FetchPage(ctx context.Context, pageNo, numOfRows int) ([]onbid.Item, int, error)
}

type Geocoder interface {
	Resolve(ctx context.Context, address string) (*kakao.Coordinate, error)
}

type Upserter interface {
	UpsertListing(ctx context.Context, l store.Listing) error
	UpsertSnapshot(ctx context.Context, s store.Snapshot) error
}

type Config struct {
	PageSize  int
	PagePause time.Duration // courtesy delay between page fetches
	LeaseName string
	MinHold   time.Duration
	MaxHold   time.Duration
	Interval  time.Duration // scheduled-run period; <= 0 means run once
}

// Summary is the outcome of one run. Per-record failures are counted here and
// logged; they never fail the run itself.
type Summary struct {
	Skipped   bool // another run held the lease
	Pages     int
	Succeeded int
	Failed    int
}

func (s Summary) String() string {
	if s.Skipped {
		return "skipped (lease held by another run)"
	}
	return fmt.Sprintf("%d page(s), %d record(s) ok, %d failed", s.Pages, s.Succeeded, s.Failed)
}

type Runner struct {
	Source Source
	Geo    Geocoder
	Store  Upserter
	Guard  runguard.Guard
	Pub    events.Publisher
	Logger *log.Logger
	Config Config
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (r *Runner) validate() error {
	if r == nil {
		return errors.New("nil runner")
	}
	if r.Source == nil || r.Store == nil || r.Guard == nil {
		return errors.New("ingest runner requires source, store, and guard")
	}
	if r.Config.PageSize <= 0 {
		r.Config.PageSize = 100
	}
	if r.Config.PagePause <= 0 {
		r.Config.PagePause = 1 * time.Second
	}
	if r.Config.LeaseName == "" {
		r.Config.LeaseName = "onbid-ingest"
	}
	if r.Config.MinHold <= 0 {
		r.Config.MinHold = 5 * time.Minute
	}
	if r.Config.MaxHold <= 0 {
		r.Config.MaxHold = 30 * time.Minute
	}
	return nil
}

// Run executes one run immediately, then repeats every Config.Interval until
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	if r.Config.Interval <= 0 {
		_, err := r.RunOnce(ctx)
		return err
	}

	ticker := time.NewTicker(r.Config.Interval)
	defer ticker.Stop()
	r.logf("ingest runner starting with interval %s", r.Config.Interval)

	if sum, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logf("ingest initial run aborted after %s: %v", sum, err)
	}
	for {
		select {
		case <-ctx.Done():
			r.logf("ingest runner stopping: %v", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if sum, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logf("ingest run aborted after %s: %v", sum, err)
			}
		}
	}
}

// RunOnce executes a single ingestion run under the run lease. Source-API
// failures abort the run and are returned; pages already persisted stay
// committed. Lease contention is not an error: the summary reports Skipped.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := r.validate(); err != nil {
		return sum, err
	}

	token, ok, err := r.Guard.TryAcquire(ctx, r.Config.LeaseName, r.Config.MinHold, r.Config.MaxHold)
	if err != nil {
		return sum, fmt.Errorf("lease acquire: %w", err)
	}
	if !ok {
		sum.Skipped = true
		r.logf("ingest run skipped: lease %q held by another run", r.Config.LeaseName)
		return sum, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Guard.Release(releaseCtx, r.Config.LeaseName, token); err != nil {
			r.logf("ingest lease release failed: %v", err)
		}
		r.logf("ingest run finished: %s", sum)
	}()

	// Burst 1 makes the first fetch immediate and every later fetch wait out
	// the courtesy pause.
	limiter := rate.NewLimiter(rate.Every(r.Config.PagePause), 1)

	totalCount := 0
	for page := 1; ; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}

		items, reported, err := r.Source.FetchPage(ctx, page, r.Config.PageSize)
		if err != nil {
			return sum, fmt.Errorf("page %d: %w", page, err)
		}

		if page == 1 {
			// totalCount is only reliable on the first page; later pages may
			// report it inconsistently and are ignored.
			totalCount = reported
			if totalCount == 0 {
				r.logf("ingest: source reports no data")
				return sum, nil
			}
			r.logf("ingest: source reports %d record(s)", totalCount)
		}

		if len(items) == 0 {
			r.logf("ingest: page %d empty, stopping early", page)
			return sum, nil
		}

		for _, item := range items {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			if err := r.processItem(ctx, item); err != nil {
				if ctx.Err() != nil {
					return sum, ctx.Err()
				}
				sum.Failed++
				r.logf("ingest: item %s failed: %v", item.CltrNo, err)
				continue
			}
			sum.Succeeded++
		}
		sum.Pages++
		r.logf("ingest: page %d done (%d item(s))", page, len(items))

		if sum.Pages*r.Config.PageSize >= totalCount {
			return sum, nil
		}
	}
}

// processItem handles one record end to end: transform, geocode, upsert
// listing then snapshot. Each upsert is its own atomic unit; an error here is
// isolated to this record.
func (r *Runner) processItem(ctx context.Context, item onbid.Item) error {
	listing, err := ToListing(item)
	if err != nil {
		return fmt.Errorf("transform listing: %w", err)
	}
	snapshot, err := ToSnapshot(item)
	if err != nil {
		return fmt.Errorf("transform snapshot: %w", err)
	}

	geocoded := r.geocode(ctx, &listing)

	if err := r.Store.UpsertListing(ctx, listing); err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	if err := r.Store.UpsertSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if r.Pub != nil {
		r.Pub.PublishListingUpdated(ctx, events.ListingUpdated{
			CltrNo:     listing.CltrNo,
			CltrHstrNo: snapshot.CltrHstrNo,
			Geocoded:   geocoded,
		})
	}
	return nil
}

// geocode resolves the cleansed lot-number address, falling back to the
// road-name address. A miss leaves the coordinates null.
func (r *Runner) geocode(ctx context.Context, listing *store.Listing) bool {
	if r.Geo == nil {
		return false
	}
	address := listing.ClnLdnmAdrs
	if address == "" {
		address = listing.ClnNmrdAdrs
	}
	if address == "" {
		r.logf("ingest: item %s has no geocodable address", listing.CltrNo)
		return false
	}

	coord, err := r.Geo.Resolve(ctx, address)
	if err != nil || coord == nil {
		if err != nil && ctx.Err() == nil {
			r.logf("ingest: geocode failed for item %s: %v", listing.CltrNo, err)
		}
		return false
	}
	listing.Lat = sql.NullFloat64{Float64: coord.Lat, Valid: true}
	listing.Lon = sql.NullFloat64{Float64: coord.Lon, Valid: true}
	return true
}
