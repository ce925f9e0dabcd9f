package onbid

import "encoding/xml"

// Item is one auction listing as served by the Kamco public-sale list
// endpoint. Amount and timestamp fields arrive as text and are parsed
// downstream; a bad value in one field must not poison the whole item.
type Item struct {
	CltrNo         string `xml:"CLTR_NO"`            // listing id (master key)
	CltrNm         string `xml:"CLTR_NM"`            // listing title
	CtgrFullNm     string `xml:"CTGR_FULL_NM"`       // category path
	LdnmAdrs       string `xml:"LDNM_ADRS"`          // lot-number address, raw
	NmrdAdrs       string `xml:"NMRD_ADRS"`          // road-name address, raw
	CltrHstrNo     string `xml:"CLTR_HSTR_NO"`       // history id (snapshot key)
	MinBidPrc      string `xml:"MIN_BID_PRC"`        // bid floor, won
	ApslAsesAvgAmt string `xml:"APSL_ASES_AVG_AMT"`  // appraisal amount, won
	FeeRate        string `xml:"FEE_RATE"`           // e.g. "(100%)"
	PbctBegnDtm    string `xml:"PBCT_BEGN_DTM"`      // bid open, yyyyMMddHHmmss
	PbctClsDtm     string `xml:"PBCT_CLS_DTM"`       // bid close, yyyyMMddHHmmss
	PbctCltrStatNm string `xml:"PBCT_CLTR_STAT_NM"`  // status label
	PlnmNo         string `xml:"PLNM_NO"`            // announcement no
	PbctNo         string `xml:"PBCT_NO"`            // auction no
}

// BasicInfo is the announcement-level detail record (single item, no
// <items> wrapper on the wire).
type BasicInfo struct {
	PlnmNm       string `xml:"PLNM_NM"`        // announcement title
	RsbyDept     string `xml:"RSBY_DEPT"`      // responsible department
	PscgNm       string `xml:"PSCG_NM"`        // contact name
	PscgTpno     string `xml:"PSCG_TPNO"`      // contact phone
	PscgEmalAdrs string `xml:"PSCG_EMAL_ADRS"` // contact email
}

// FileInfo is one attachment of an announcement.
type FileInfo struct {
	AtchFileNm  string `xml:"ATCH_FILE_NM"`
	FilePthCntn string `xml:"FILE_PTH_CNTN"`
}

type listResponse struct {
	XMLName xml.Name  `xml:"response"`
	Header  *header   `xml:"header"`
	Body    *listBody `xml:"body"`
}

type header struct {
	ResultCode string `xml:"resultCode"`
	ResultMsg  string `xml:"resultMsg"`
}

type listBody struct {
	// Items distinguishes a missing <items> wrapper (malformed envelope)
	// from a present-but-empty one (exhausted pagination).
	Items      *listItems `xml:"items"`
	NumOfRows  int        `xml:"numOfRows"`
	PageNo     int        `xml:"pageNo"`
	TotalCount int        `xml:"totalCount"`
}

type listItems struct {
	Item []Item `xml:"item"`
}

type basicInfoResponse struct {
	XMLName xml.Name       `xml:"response"`
	Body    *basicInfoBody `xml:"body"`
}

type basicInfoBody struct {
	Item *BasicInfo `xml:"item"`
}

type fileInfoResponse struct {
	XMLName xml.Name      `xml:"response"`
	Body    *fileInfoBody `xml:"body"`
}

type fileInfoBody struct {
	Items *fileInfoItems `xml:"items"`
}

type fileInfoItems struct {
	// The attachment endpoint wraps entries in <fileItem>, not <item>.
	FileItem []FileInfo `xml:"fileItem"`
}
