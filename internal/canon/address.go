package canon

import (
    "regexp"
    "strings"
)

var (
    reParen   = regexp.MustCompile(`\([^)]*\)`)
    reBracket = regexp.MustCompile(`\[[^\]]*\]`)
    // Trailing detail clauses: floor (제N층), building (제N동), extra parcels
    // (외 N필지), lot counts (총 N좌).
    reDetail = regexp.MustCompile(` 제\d+층.*| 제\d+동.*| 외\s*\d*필지.*| 총\s*\d*좌.*`)
    // Custody and share-certificate clauses, e.g. "...세무서 보관중인 ...".
    reCustody = regexp.MustCompile(`\s보관중인.*| 출자증권.*| 내\s*보관.*`)
)

// Cleanse normalizes a raw Onbid address into a geocoder-safe form.
// Annotations in parentheses/brackets, trailing detail clauses, and everything
// past the first comma are dropped; multi-parcel addresses keep the first
// parcel only. Blank input yields "". Cleanse(Cleanse(x)) == Cleanse(x).
func Cleanse(raw string) string {
    if strings.TrimSpace(raw) == "" {
        return ""
    }

    cleaned := strings.TrimSpace(raw)
    cleaned = strings.TrimSpace(reParen.ReplaceAllString(cleaned, ""))
    cleaned = strings.TrimSpace(reBracket.ReplaceAllString(cleaned, ""))
    cleaned = strings.TrimSpace(reDetail.ReplaceAllString(cleaned, ""))
    cleaned = strings.TrimSpace(reCustody.ReplaceAllString(cleaned, ""))

    if i := strings.Index(cleaned, ","); i != -1 {
        cleaned = cleaned[:i]
    }
    return strings.TrimSpace(cleaned)
}
