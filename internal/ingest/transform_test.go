package ingest

import (
	"testing"
	"time"

	"github.com/yourorg/auction-ingest/onbid"
)

func sampleItem() onbid.Item {
	return onbid.Item{
		CltrNo:         "100001",
		CltrNm:         "역삼동 근린상가",
		CtgrFullNm:     "부동산 / 상가용및업무용건물",
		LdnmAdrs:       "서울시 강남구 역삼동 123-4 (건물) 외 2필지",
		NmrdAdrs:       "서울시 강남구 테헤란로 10 (역삼동)",
		CltrHstrNo:     "500001",
		MinBidPrc:      "150000000",
		ApslAsesAvgAmt: "200000000",
		PbctBegnDtm:    "20240101090000",
		PbctClsDtm:     "20240103170000",
		PbctCltrStatNm: "입찰준비중",
		PlnmNo:         "2024-0001",
		PbctNo:         "001",
	}
}

func TestToListing(t *testing.T) {
	l, err := ToListing(sampleItem())
	if err != nil {
		t.Fatalf("ToListing: %v", err)
	}
	if l.CltrNo != "100001" || l.PlnmNo != "2024-0001" || l.PbctNo != "001" {
		t.Errorf("identity fields wrong: %+v", l)
	}
	if l.LdnmAdrs != "서울시 강남구 역삼동 123-4 (건물) 외 2필지" {
		t.Errorf("raw address must be kept verbatim, got %q", l.LdnmAdrs)
	}
	if l.ClnLdnmAdrs != "서울시 강남구 역삼동 123-4" {
		t.Errorf("ClnLdnmAdrs = %q", l.ClnLdnmAdrs)
	}
	if l.ClnNmrdAdrs != "서울시 강남구 테헤란로 10" {
		t.Errorf("ClnNmrdAdrs = %q", l.ClnNmrdAdrs)
	}
	if want := "https://www.onbid.co.kr/op/cta/cltr/cltrView.do?cltrCltrNo=100001"; l.DetailURL != want {
		t.Errorf("DetailURL = %q; want %q", l.DetailURL, want)
	}
	if l.Lat.Valid || l.Lon.Valid {
		t.Error("coordinates must stay null before geocoding")
	}
}

func TestToListingRequiresID(t *testing.T) {
	item := sampleItem()
	item.CltrNo = ""
	if _, err := ToListing(item); err == nil {
		t.Error("ToListing accepted an item without CLTR_NO")
	}
}

func TestToSnapshot(t *testing.T) {
	s, err := ToSnapshot(sampleItem())
	if err != nil {
		t.Fatalf("ToSnapshot: %v", err)
	}
	if s.CltrHstrNo != "500001" || s.CltrNo != "100001" {
		t.Errorf("keys wrong: %+v", s)
	}
	if !s.MinBidPrc.Valid || s.MinBidPrc.Int64 != 150000000 {
		t.Errorf("MinBidPrc = %+v", s.MinBidPrc)
	}
	if !s.ApslAsesAvgAmt.Valid || s.ApslAsesAvgAmt.Int64 != 200000000 {
		t.Errorf("ApslAsesAvgAmt = %+v", s.ApslAsesAvgAmt)
	}
	want := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !s.PbctBegnDtm.Valid || !s.PbctBegnDtm.Time.Equal(want) {
		t.Errorf("PbctBegnDtm = %+v; want %s", s.PbctBegnDtm, want)
	}
	if s.PbctCltrStatNm != "입찰준비중" {
		t.Errorf("status = %q", s.PbctCltrStatNm)
	}
}

func TestToSnapshotBadFieldsBecomeNull(t *testing.T) {
	item := sampleItem()
	item.PbctBegnDtm = "not-a-date"
	item.PbctClsDtm = ""
	item.MinBidPrc = "억五千"

	s, err := ToSnapshot(item)
	if err != nil {
		t.Fatalf("ToSnapshot must not fail on unparsable fields: %v", err)
	}
	if s.PbctBegnDtm.Valid || s.PbctClsDtm.Valid {
		t.Errorf("unparsable timestamps must be null: %+v", s)
	}
	if s.MinBidPrc.Valid {
		t.Errorf("unparsable amount must be null: %+v", s.MinBidPrc)
	}
}

func TestParseOnbidTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"20240101090000", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), true},
		{"20231231235959", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"not-a-date", time.Time{}, false},
		{"2024-01-01", time.Time{}, false},
		{"20241301090000", time.Time{}, false}, // month 13
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseOnbidTime(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseOnbidTime(%q) ok = %v; want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseOnbidTime(%q) = %s; want %s", tt.in, got, tt.want)
		}
	}
}
