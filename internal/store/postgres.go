package store

import (
    "context"
    "database/sql"
    "errors"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("store: not found")

type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return nil, err }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(5)
    db.SetConnMaxLifetime(30 * time.Minute)
    return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS auction_listings (
            cltr_no         TEXT PRIMARY KEY,
            cltr_nm         TEXT,
            ctgr_full_nm    TEXT,
            ldnm_adrs       TEXT,
            nmrd_adrs       TEXT,
            cln_ldnm_adrs   TEXT,
            cln_nmrd_adrs   TEXT,
            lat             DOUBLE PRECISION,
            lon             DOUBLE PRECISION,
            detail_url      TEXT,
            plnm_no         TEXT,
            pbct_no         TEXT,
            created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
        `CREATE INDEX IF NOT EXISTS idx_auction_listings_addr ON auction_listings(cln_ldnm_adrs);`,
        `CREATE TABLE IF NOT EXISTS auction_state_history (
            cltr_hstr_no      TEXT PRIMARY KEY,
            cltr_no           TEXT NOT NULL REFERENCES auction_listings(cltr_no) ON DELETE CASCADE,
            min_bid_prc       BIGINT,
            apsl_ases_avg_amt BIGINT,
            pbct_begn_dtm     TIMESTAMPTZ,
            pbct_cls_dtm      TIMESTAMPTZ,
            pbct_cltr_stat_nm TEXT,
            created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
        `CREATE INDEX IF NOT EXISTS idx_state_history_cltr ON auction_state_history(cltr_no);`,
        `CREATE INDEX IF NOT EXISTS idx_state_history_cls ON auction_state_history(pbct_cls_dtm);`,
    }
    for _, q := range stmts {
        if _, err := s.DB.ExecContext(ctx, q); err != nil { return err }
    }
    return nil
}

// Listing is the durable identity of one auctioned item, keyed by the
// externally assigned cltr_no.
type Listing struct {
    CltrNo      string
    CltrNm      string
    CtgrFullNm  string
    LdnmAdrs    string
    NmrdAdrs    string
    ClnLdnmAdrs string
    ClnNmrdAdrs string
    Lat         sql.NullFloat64
    Lon         sql.NullFloat64
    DetailURL   string
    PlnmNo      string
    PbctNo      string
}

// Snapshot is one observed auction-state record, keyed by cltr_hstr_no.
// Re-observing the same history id overwrites the non-key fields.
type Snapshot struct {
    CltrHstrNo     string
    CltrNo         string
    MinBidPrc      sql.NullInt64
    ApslAsesAvgAmt sql.NullInt64
    PbctBegnDtm    sql.NullTime
    PbctClsDtm     sql.NullTime
    PbctCltrStatNm string
}

func (s *Store) UpsertListing(ctx context.Context, l Listing) error {
    _, err := s.DB.ExecContext(ctx, `
        INSERT INTO auction_listings
            (cltr_no, cltr_nm, ctgr_full_nm, ldnm_adrs, nmrd_adrs, cln_ldnm_adrs, cln_nmrd_adrs, lat, lon, detail_url, plnm_no, pbct_no)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (cltr_no)
        DO UPDATE SET cltr_nm=EXCLUDED.cltr_nm, ctgr_full_nm=EXCLUDED.ctgr_full_nm,
            ldnm_adrs=EXCLUDED.ldnm_adrs, nmrd_adrs=EXCLUDED.nmrd_adrs,
            cln_ldnm_adrs=EXCLUDED.cln_ldnm_adrs, cln_nmrd_adrs=EXCLUDED.cln_nmrd_adrs,
            lat=EXCLUDED.lat, lon=EXCLUDED.lon, detail_url=EXCLUDED.detail_url,
            plnm_no=EXCLUDED.plnm_no, pbct_no=EXCLUDED.pbct_no, updated_at=now()`,
        l.CltrNo, l.CltrNm, l.CtgrFullNm, l.LdnmAdrs, l.NmrdAdrs, l.ClnLdnmAdrs, l.ClnNmrdAdrs,
        l.Lat, l.Lon, l.DetailURL, l.PlnmNo, l.PbctNo,
    )
    return err
}

func (s *Store) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
    _, err := s.DB.ExecContext(ctx, `
        INSERT INTO auction_state_history
            (cltr_hstr_no, cltr_no, min_bid_prc, apsl_ases_avg_amt, pbct_begn_dtm, pbct_cls_dtm, pbct_cltr_stat_nm)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (cltr_hstr_no)
        DO UPDATE SET cltr_no=EXCLUDED.cltr_no, min_bid_prc=EXCLUDED.min_bid_prc,
            apsl_ases_avg_amt=EXCLUDED.apsl_ases_avg_amt, pbct_begn_dtm=EXCLUDED.pbct_begn_dtm,
            pbct_cls_dtm=EXCLUDED.pbct_cls_dtm, pbct_cltr_stat_nm=EXCLUDED.pbct_cltr_stat_nm,
            updated_at=now()`,
        snap.CltrHstrNo, snap.CltrNo, snap.MinBidPrc, snap.ApslAsesAvgAmt,
        snap.PbctBegnDtm, snap.PbctClsDtm, snap.PbctCltrStatNm,
    )
    return err
}

// ListingSummary joins a listing with its latest observed state for the read
// surface.
type ListingSummary struct {
    Listing
    MinBidPrc      sql.NullInt64
    ApslAsesAvgAmt sql.NullInt64
    PbctBegnDtm    sql.NullTime
    PbctClsDtm     sql.NullTime
    PbctCltrStatNm sql.NullString
}

const summarySelect = `
    SELECT l.cltr_no, l.cltr_nm, l.ctgr_full_nm, l.ldnm_adrs, l.nmrd_adrs,
           l.cln_ldnm_adrs, l.cln_nmrd_adrs, l.lat, l.lon, l.detail_url,
           l.plnm_no, l.pbct_no,
           h.min_bid_prc, h.apsl_ases_avg_amt, h.pbct_begn_dtm, h.pbct_cls_dtm, h.pbct_cltr_stat_nm
    FROM auction_listings l
    LEFT JOIN LATERAL (
        SELECT * FROM auction_state_history h
        WHERE h.cltr_no = l.cltr_no
        ORDER BY h.updated_at DESC
        LIMIT 1
    ) h ON true`

func (s *Store) SearchListings(ctx context.Context, region string, limit, offset int) ([]ListingSummary, error) {
    if limit <= 0 { limit = 20 }
    rows, err := s.DB.QueryContext(ctx, summarySelect+`
        WHERE ($1 = '' OR l.cln_ldnm_adrs LIKE $1 || '%' OR l.cln_nmrd_adrs LIKE $1 || '%')
        ORDER BY l.updated_at DESC
        LIMIT $2 OFFSET $3`, region, limit, offset)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []ListingSummary
    for rows.Next() {
        var r ListingSummary
        if err := rows.Scan(
            &r.CltrNo, &r.CltrNm, &r.CtgrFullNm, &r.LdnmAdrs, &r.NmrdAdrs,
            &r.ClnLdnmAdrs, &r.ClnNmrdAdrs, &r.Lat, &r.Lon, &r.DetailURL,
            &r.PlnmNo, &r.PbctNo,
            &r.MinBidPrc, &r.ApslAsesAvgAmt, &r.PbctBegnDtm, &r.PbctClsDtm, &r.PbctCltrStatNm,
        ); err != nil { return nil, err }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (s *Store) GetListing(ctx context.Context, cltrNo string) (ListingSummary, error) {
    var r ListingSummary
    err := s.DB.QueryRowContext(ctx, summarySelect+` WHERE l.cltr_no = $1`, cltrNo).Scan(
        &r.CltrNo, &r.CltrNm, &r.CtgrFullNm, &r.LdnmAdrs, &r.NmrdAdrs,
        &r.ClnLdnmAdrs, &r.ClnNmrdAdrs, &r.Lat, &r.Lon, &r.DetailURL,
        &r.PlnmNo, &r.PbctNo,
        &r.MinBidPrc, &r.ApslAsesAvgAmt, &r.PbctBegnDtm, &r.PbctClsDtm, &r.PbctCltrStatNm,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return r, ErrNotFound
    }
    return r, err
}
