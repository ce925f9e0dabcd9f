package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/auction-ingest/internal/store"
	"github.com/yourorg/auction-ingest/onbid"
)

// OnbidDetail is the soft-failing slice of the source client the read
// surface needs.
type OnbidDetail interface {
	FetchBasicInfo(ctx context.Context, plnmNo, pbctNo string) *onbid.BasicInfo
	FetchFiles(ctx context.Context, plnmNo, pbctNo string) []onbid.FileInfo
}

type AuctionsDeps struct {
	Store *store.Store
	Onbid OnbidDetail
}

type auctionCard struct {
	CltrNo      string   `json:"cltr_no"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	LotAddress  string   `json:"lot_address"`
	RoadAddress string   `json:"road_address"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	DetailURL   string   `json:"detail_url"`
	MinBidPrice *int64   `json:"min_bid_price,omitempty"`
	Appraisal   *int64   `json:"appraisal,omitempty"`
	BidOpenAt   string   `json:"bid_open_at,omitempty"`
	BidCloseAt  string   `json:"bid_close_at,omitempty"`
	Status      string   `json:"status,omitempty"`
}

func RegisterAuctions(r chi.Router, d AuctionsDeps) {
	r.Get("/api/v1/auctions", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		size := atoiDefault(q.Get("size"), 20)
		if size > 100 {
			size = 100
		}
		offset := (page - 1) * size

		records, err := d.Store.SearchListings(req.Context(), q.Get("region"), size, offset)
		if err != nil {
			render.Status(req, http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "db_error", "detail": err.Error()})
			return
		}
		cards := make([]auctionCard, 0, len(records))
		for _, rec := range records {
			cards = append(cards, toCard(rec))
		}
		render.JSON(w, req, map[string]any{"ok": true, "page": page, "count": len(cards), "auctions": cards})
	})

	r.Get("/api/v1/auctions/{cltrNo}", func(w http.ResponseWriter, req *http.Request) {
		rec, ok := lookup(w, req, d)
		if !ok {
			return
		}
		resp := map[string]any{"ok": true, "auction": toCard(rec)}
		if d.Onbid != nil && rec.PlnmNo != "" {
			// Contact detail is supplementary; a miss just omits it.
			if info := d.Onbid.FetchBasicInfo(req.Context(), rec.PlnmNo, rec.PbctNo); info != nil {
				resp["announcement"] = map[string]string{
					"title":         info.PlnmNm,
					"department":    info.RsbyDept,
					"contact_name":  info.PscgNm,
					"contact_phone": info.PscgTpno,
					"contact_email": info.PscgEmalAdrs,
				}
			}
		}
		render.JSON(w, req, resp)
	})

	r.Get("/api/v1/auctions/{cltrNo}/files", func(w http.ResponseWriter, req *http.Request) {
		rec, ok := lookup(w, req, d)
		if !ok {
			return
		}
		var files []onbid.FileInfo
		if d.Onbid != nil && rec.PlnmNo != "" {
			files = d.Onbid.FetchFiles(req.Context(), rec.PlnmNo, rec.PbctNo)
		}
		out := make([]map[string]string, 0, len(files))
		for _, f := range files {
			out = append(out, map[string]string{"name": f.AtchFileNm, "path": f.FilePthCntn})
		}
		render.JSON(w, req, map[string]any{"ok": true, "count": len(out), "files": out})
	})
}

func lookup(w http.ResponseWriter, req *http.Request, d AuctionsDeps) (store.ListingSummary, bool) {
	cltrNo := chi.URLParam(req, "cltrNo")
	rec, err := d.Store.GetListing(req.Context(), cltrNo)
	if errors.Is(err, store.ErrNotFound) {
		render.Status(req, http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "not_found", "cltr_no": cltrNo})
		return rec, false
	}
	if err != nil {
		render.Status(req, http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "db_error", "detail": err.Error()})
		return rec, false
	}
	return rec, true
}

func toCard(rec store.ListingSummary) auctionCard {
	card := auctionCard{
		CltrNo:      rec.CltrNo,
		Title:       rec.CltrNm,
		Category:    rec.CtgrFullNm,
		LotAddress:  rec.ClnLdnmAdrs,
		RoadAddress: rec.ClnNmrdAdrs,
		DetailURL:   rec.DetailURL,
	}
	card.Lat = nullFloatPtr(rec.Lat)
	card.Lon = nullFloatPtr(rec.Lon)
	card.MinBidPrice = nullIntPtr(rec.MinBidPrc)
	card.Appraisal = nullIntPtr(rec.ApslAsesAvgAmt)
	if rec.PbctBegnDtm.Valid {
		card.BidOpenAt = rec.PbctBegnDtm.Time.Format("2006-01-02T15:04:05")
	}
	if rec.PbctClsDtm.Valid {
		card.BidCloseAt = rec.PbctClsDtm.Time.Format("2006-01-02T15:04:05")
	}
	if rec.PbctCltrStatNm.Valid {
		card.Status = rec.PbctCltrStatNm.String
	}
	return card
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullIntPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}
