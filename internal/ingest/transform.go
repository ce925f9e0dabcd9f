package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/yourorg/auction-ingest/internal/canon"
	"github.com/yourorg/auction-ingest/internal/store"
	"github.com/yourorg/auction-ingest/onbid"
)

// onbidTimeLayout is the fixed 14-digit timestamp format of the source feed.
const onbidTimeLayout = "20060102150405"

const detailURLPrefix = "https://www.onbid.co.kr/op/cta/cltr/cltrView.do?cltrCltrNo="

// ToListing maps a raw source item onto the durable listing shape: identity
// fields 1:1, both addresses cleansed, the detail URL derived from the
// listing id. Coordinates stay null until geocoding.
func ToListing(item onbid.Item) (store.Listing, error) {
	if item.CltrNo == "" {
		return store.Listing{}, errors.New("item has no CLTR_NO")
	}
	return store.Listing{
		CltrNo:      item.CltrNo,
		CltrNm:      item.CltrNm,
		CtgrFullNm:  item.CtgrFullNm,
		LdnmAdrs:    item.LdnmAdrs,
		NmrdAdrs:    item.NmrdAdrs,
		ClnLdnmAdrs: canon.Cleanse(item.LdnmAdrs),
		ClnNmrdAdrs: canon.Cleanse(item.NmrdAdrs),
		DetailURL:   detailURLPrefix + item.CltrNo,
		PlnmNo:      item.PlnmNo,
		PbctNo:      item.PbctNo,
	}, nil
}

// ToSnapshot maps a raw source item onto the auction-state snapshot shape.
// Unparsable amounts and timestamps become null, never an error.
func ToSnapshot(item onbid.Item) (store.Snapshot, error) {
	if item.CltrHstrNo == "" {
		return store.Snapshot{}, fmt.Errorf("item %s has no CLTR_HSTR_NO", item.CltrNo)
	}
	return store.Snapshot{
		CltrHstrNo:     item.CltrHstrNo,
		CltrNo:         item.CltrNo,
		MinBidPrc:      parseAmount(item.MinBidPrc),
		ApslAsesAvgAmt: parseAmount(item.ApslAsesAvgAmt),
		PbctBegnDtm:    parseTimestamp(item.PbctBegnDtm),
		PbctClsDtm:     parseTimestamp(item.PbctClsDtm),
		PbctCltrStatNm: item.PbctCltrStatNm,
	}, nil
}

// ParseOnbidTime parses the feed's yyyyMMddHHmmss timestamps. Blank or
// malformed input reports ok=false; the record is persisted regardless.
func ParseOnbidTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(onbidTimeLayout, s)
	if err != nil {
		log.Printf("[WARN] unparsable onbid timestamp %q: %v", s, err)
		return time.Time{}, false
	}
	return t, true
}

func parseTimestamp(s string) sql.NullTime {
	t, ok := ParseOnbidTime(s)
	if !ok {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func parseAmount(s string) sql.NullInt64 {
	if s == "" {
		return sql.NullInt64{}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Printf("[WARN] unparsable onbid amount %q: %v", s, err)
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
