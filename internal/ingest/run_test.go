package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yourorg/auction-ingest/internal/runguard"
	"github.com/yourorg/auction-ingest/internal/store"
	"github.com/yourorg/auction-ingest/kakao"
	"github.com/yourorg/auction-ingest/onbid"
)

type fakeSource struct {
	pages     map[int][]onbid.Item
	totals    map[int]int // totalCount reported per page
	fetches   int
	err       error
	errOnPage int
}

func (f *fakeSource) FetchPage(_ context.Context, pageNo, _ int) ([]onbid.Item, int, error) {
	f.fetches++
	if f.err != nil && pageNo == f.errOnPage {
		return nil, 0, f.err
	}
	return f.pages[pageNo], f.totals[pageNo], nil
}

type fakeGeo struct {
	queries []string
	coord   *kakao.Coordinate
}

func (f *fakeGeo) Resolve(_ context.Context, address string) (*kakao.Coordinate, error) {
	f.queries = append(f.queries, address)
	return f.coord, nil
}

type fakeStore struct {
	listings  map[string]store.Listing
	snapshots map[string]store.Snapshot
	failCltr  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: map[string]store.Listing{}, snapshots: map[string]store.Snapshot{}}
}

func (f *fakeStore) UpsertListing(_ context.Context, l store.Listing) error {
	if l.CltrNo == f.failCltr {
		return errors.New("boom")
	}
	f.listings[l.CltrNo] = l
	return nil
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, s store.Snapshot) error {
	f.snapshots[s.CltrHstrNo] = s
	return nil
}

func makeItems(page, n int) []onbid.Item {
	items := make([]onbid.Item, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d%03d", page, i)
		items = append(items, onbid.Item{
			CltrNo:         "C" + id,
			CltrHstrNo:     "H" + id,
			LdnmAdrs:       "서울시 강남구 역삼동 " + id,
			PbctCltrStatNm: "입찰중",
		})
	}
	return items
}

func newRunner(src *fakeSource, st *fakeStore, geo Geocoder, pageSize int) *Runner {
	return &Runner{
		Source: src,
		Geo:    geo,
		Store:  st,
		Guard:  runguard.NewMemoryGuard(),
		Config: Config{PageSize: pageSize, PagePause: time.Millisecond},
	}
}

func TestRunOnceFetchesExactlyEnoughPages(t *testing.T) {
	src := &fakeSource{
		pages:  map[int][]onbid.Item{1: makeItems(1, 100), 2: makeItems(2, 100), 3: makeItems(3, 50)},
		totals: map[int]int{1: 250, 2: 250, 3: 250},
	}
	st := newFakeStore()

	sum, err := newRunner(src, st, nil, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if src.fetches != 3 {
		t.Errorf("fetched %d pages; want 3", src.fetches)
	}
	if sum.Pages != 3 || sum.Succeeded != 250 || sum.Failed != 0 {
		t.Errorf("summary = %+v; want 3 pages, 250 ok", sum)
	}
	if len(st.listings) != 250 || len(st.snapshots) != 250 {
		t.Errorf("persisted %d listings / %d snapshots; want 250 each", len(st.listings), len(st.snapshots))
	}
}

func TestRunOnceFreezesTotalCountAtPageOne(t *testing.T) {
	// Later pages report an inflated total; the run must still stop at 3.
	src := &fakeSource{
		pages:  map[int][]onbid.Item{1: makeItems(1, 100), 2: makeItems(2, 100), 3: makeItems(3, 50), 4: makeItems(4, 100)},
		totals: map[int]int{1: 250, 2: 99999, 3: 99999, 4: 99999},
	}
	sum, err := newRunner(src, newFakeStore(), nil, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if src.fetches != 3 || sum.Pages != 3 {
		t.Errorf("fetched %d pages, summary %+v; want 3 pages", src.fetches, sum)
	}
}

func TestRunOnceZeroTotalCountStopsImmediately(t *testing.T) {
	src := &fakeSource{pages: map[int][]onbid.Item{1: makeItems(1, 0)}, totals: map[int]int{1: 0}}
	st := newFakeStore()

	sum, err := newRunner(src, st, nil, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if src.fetches != 1 || sum.Pages != 0 || len(st.listings) != 0 {
		t.Errorf("empty source not short-circuited: fetches=%d summary=%+v", src.fetches, sum)
	}
}

func TestRunOnceStopsOnEmptyPage(t *testing.T) {
	// totalCount promises more than the source actually serves.
	src := &fakeSource{
		pages:  map[int][]onbid.Item{1: makeItems(1, 100), 2: nil},
		totals: map[int]int{1: 500, 2: 500},
	}
	sum, err := newRunner(src, newFakeStore(), nil, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if src.fetches != 2 || sum.Pages != 1 || sum.Succeeded != 100 {
		t.Errorf("summary = %+v, fetches = %d; want 1 page, 100 ok, 2 fetches", sum, src.fetches)
	}
}

func TestRunOnceSourceErrorIsRunFatalButKeepsPriorPages(t *testing.T) {
	src := &fakeSource{
		pages:     map[int][]onbid.Item{1: makeItems(1, 2)},
		totals:    map[int]int{1: 6},
		err:       fmt.Errorf("%w: connection refused", onbid.ErrUnavailable),
		errOnPage: 2,
	}
	st := newFakeStore()

	sum, err := newRunner(src, st, nil, 2).RunOnce(context.Background())
	if !errors.Is(err, onbid.ErrUnavailable) {
		t.Fatalf("err = %v; want ErrUnavailable", err)
	}
	if sum.Succeeded != 2 || len(st.listings) != 2 {
		t.Errorf("page 1 records lost: summary=%+v persisted=%d", sum, len(st.listings))
	}
}

func TestRunOnceIsolatesSingleRecordFailure(t *testing.T) {
	items := makeItems(1, 10)
	src := &fakeSource{pages: map[int][]onbid.Item{1: items}, totals: map[int]int{1: 10}}
	st := newFakeStore()
	st.failCltr = items[4].CltrNo // record #5 fails persistence

	sum, err := newRunner(src, st, nil, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("one bad record aborted the run: %v", err)
	}
	if sum.Succeeded != 9 || sum.Failed != 1 {
		t.Errorf("summary = %+v; want 9 ok, 1 failed", sum)
	}
	if len(st.listings) != 9 {
		t.Errorf("persisted %d listings; want 9", len(st.listings))
	}
	if _, exists := st.listings[items[4].CltrNo]; exists {
		t.Error("failed record must not be persisted")
	}
}

func TestRunOnceIsolatesTransformFailure(t *testing.T) {
	items := makeItems(1, 3)
	items[1].CltrHstrNo = "" // snapshot transform fails
	src := &fakeSource{pages: map[int][]onbid.Item{1: items}, totals: map[int]int{1: 3}}
	st := newFakeStore()

	sum, err := newRunner(src, st, nil, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v; want 2 ok, 1 failed", sum)
	}
}

func TestRunOnceGeocodesLotAddressFirst(t *testing.T) {
	items := []onbid.Item{{
		CltrNo: "C1", CltrHstrNo: "H1",
		LdnmAdrs: "서울시 강남구 역삼동 123-4 (건물)",
		NmrdAdrs: "서울시 강남구 테헤란로 10",
	}}
	src := &fakeSource{pages: map[int][]onbid.Item{1: items}, totals: map[int]int{1: 1}}
	st := newFakeStore()
	geo := &fakeGeo{coord: &kakao.Coordinate{Lat: 37.5, Lon: 127.03}}

	if _, err := newRunner(src, st, geo, 100).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(geo.queries) != 1 || geo.queries[0] != "서울시 강남구 역삼동 123-4" {
		t.Errorf("geocoded %v; want the cleansed lot address", geo.queries)
	}
	got := st.listings["C1"]
	if !got.Lat.Valid || got.Lat.Float64 != 37.5 || !got.Lon.Valid || got.Lon.Float64 != 127.03 {
		t.Errorf("coordinates not persisted: %+v", got)
	}
}

func TestRunOnceGeocodeFallsBackToRoadAddress(t *testing.T) {
	items := []onbid.Item{{
		CltrNo: "C1", CltrHstrNo: "H1",
		LdnmAdrs: "", // no lot address
		NmrdAdrs: "서울시 강남구 테헤란로 10",
	}}
	src := &fakeSource{pages: map[int][]onbid.Item{1: items}, totals: map[int]int{1: 1}}
	geo := &fakeGeo{coord: &kakao.Coordinate{Lat: 37.5, Lon: 127.03}}

	if _, err := newRunner(src, newFakeStore(), geo, 100).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(geo.queries) != 1 || geo.queries[0] != "서울시 강남구 테헤란로 10" {
		t.Errorf("geocoded %v; want the road address fallback", geo.queries)
	}
}

func TestRunOnceGeocodeMissLeavesCoordinatesNull(t *testing.T) {
	items := makeItems(1, 1)
	src := &fakeSource{pages: map[int][]onbid.Item{1: items}, totals: map[int]int{1: 1}}
	st := newFakeStore()
	geo := &fakeGeo{coord: nil}

	sum, err := newRunner(src, st, geo, 100).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 0 {
		t.Errorf("geocode miss counted as failure: %+v", sum)
	}
	got := st.listings[items[0].CltrNo]
	if got.Lat.Valid || got.Lon.Valid {
		t.Errorf("coordinates must stay null on geocode miss: %+v", got)
	}
}

func TestRunOnceSkippedWhenLeaseHeld(t *testing.T) {
	src := &fakeSource{pages: map[int][]onbid.Item{1: makeItems(1, 1)}, totals: map[int]int{1: 1}}
	guard := runguard.NewMemoryGuard()
	r := newRunner(src, newFakeStore(), nil, 100)
	r.Guard = guard

	if _, ok, _ := guard.TryAcquire(context.Background(), "onbid-ingest", time.Minute, 30*time.Minute); !ok {
		t.Fatal("setup acquire failed")
	}

	sum, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("lease contention must not be an error: %v", err)
	}
	if !sum.Skipped {
		t.Error("summary not marked skipped")
	}
	if src.fetches != 0 {
		t.Errorf("skipped run still fetched %d pages", src.fetches)
	}
}

func TestRunOnceCancelledDuringPauseAbortsCleanly(t *testing.T) {
	src := &fakeSource{
		pages:  map[int][]onbid.Item{1: makeItems(1, 2), 2: makeItems(2, 2)},
		totals: map[int]int{1: 4, 2: 4},
	}
	r := newRunner(src, newFakeStore(), nil, 2)
	r.Config.PagePause = 30 * time.Second // the page-2 wait blocks until cancel

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sum, err := r.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
	if sum.Succeeded != 2 || src.fetches != 1 {
		t.Errorf("summary = %+v, fetches = %d; want page 1 committed before abort", sum, src.fetches)
	}
}
