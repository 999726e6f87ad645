package analyses

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis is one AI analysis run over a scan, stored for auditing and
// retrieval. Result holds the provider's raw JSON response.
type Analysis struct {
	ID        AnalysisID `json:"id"`
	UserID    int64      `json:"user_id"`
	ScanID    string     `json:"scan_id"`
	Result    string     `json:"result"`
	CreatedAt time.Time  `json:"created_at"`
}
