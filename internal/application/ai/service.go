package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/depscan-io/depscan/internal/application"
	domain "github.com/depscan-io/depscan/internal/domain/ai"
	"github.com/depscan-io/depscan/internal/domain/analyses"
	scansdomain "github.com/depscan-io/depscan/internal/domain/scans"
	"github.com/depscan-io/depscan/internal/domain/vulns"
	"github.com/depscan-io/depscan/internal/infra/ai/prompt"
)

// Service runs false-positive analysis over a scan's findings and persists
// the verdicts per vulnerability plus one audit row per run.
type Service struct {
	Client   domain.Client
	Scans    scansdomain.Repository
	Vulns    vulns.Repository
	Analyses analyses.Repository
	Clock    application.Clock
}

type verdict struct {
	ID              int64    `json:"id"`
	IsFalsePositive *bool    `json:"is_false_positive"`
	Confidence      *float64 `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	RiskSummary     string   `json:"risk_summary"`
}

type analysisResponse struct {
	Analyses          []verdict `json:"analyses"`
	OverallAssessment string    `json:"overall_assessment"`
}

type Result struct {
	ScanID            string `json:"scan_id"`
	Analyzed          int    `json:"analyzed"`
	Flagged           int    `json:"flagged_false_positives"`
	OverallAssessment string `json:"overall_assessment"`
	Raw               string `json:"-"`
}

// Analyze sends the selected findings (or all of the scan's findings when ids
// is empty) to the model and stores the verdicts.
func (s *Service) Analyze(ctx context.Context, userID int64, scanID string, ids []int64) (*Result, error) {
	if s.Client == nil {
		return nil, domain.ErrNotConfigured
	}

	// Ownership check before touching any vulnerability rows.
	if _, err := s.Scans.Get(ctx, userID, scansdomain.ScanID(scanID)); err != nil {
		return nil, err
	}

	var rows []*vulns.Vulnerability
	var err error
	if len(ids) > 0 {
		rows, err = s.Vulns.GetByIDs(ctx, scanID, ids)
	} else {
		rows, err = s.Vulns.ListByScan(ctx, scanID)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Result{ScanID: scanID}, nil
	}

	findings := prompt.BuildFindings(rows)
	raw, err := s.Client.AnalyzeFindings(ctx, findings)
	if err != nil {
		return nil, err
	}

	result := &Result{ScanID: scanID, Raw: raw}
	parsed, perr := parseResponse(raw)
	if perr != nil {
		// Keep the raw text on every row rather than dropping the run.
		log.Printf("ai analysis %s: unparseable response: %v", scanID, perr)
		for _, v := range rows {
			if err := s.Vulns.UpdateAI(ctx, v.ID, vulns.AIVerdict{Analysis: raw}); err != nil {
				return nil, err
			}
		}
		result.Analyzed = len(rows)
	} else {
		byID := make(map[int64]*vulns.Vulnerability, len(rows))
		for _, v := range rows {
			byID[v.ID] = v
		}
		for _, a := range parsed.Analyses {
			v, ok := byID[a.ID]
			if !ok {
				continue
			}
			detail, _ := json.Marshal(map[string]any{
				"risk_summary": a.RiskSummary,
				"reasoning":    a.Reasoning,
			})
			if err := s.Vulns.UpdateAI(ctx, v.ID, vulns.AIVerdict{
				IsFalsePositive: a.IsFalsePositive,
				Confidence:      a.Confidence,
				Reasoning:       a.Reasoning,
				Analysis:        string(detail),
			}); err != nil {
				return nil, err
			}
			result.Analyzed++
			if a.IsFalsePositive != nil && *a.IsFalsePositive {
				result.Flagged++
			}
		}
		result.OverallAssessment = parsed.OverallAssessment
	}

	if s.Analyses != nil {
		rec := &analyses.Analysis{
			ID:        analyses.AnalysisID(uuid.New().String()),
			UserID:    userID,
			ScanID:    scanID,
			Result:    raw,
			CreatedAt: s.Clock.Now(),
		}
		if err := s.Analyses.Save(ctx, rec); err != nil {
			log.Printf("ai analysis %s: save audit row: %v", scanID, err)
		}
	}
	return result, nil
}

// History lists past analysis runs for a scan.
func (s *Service) History(ctx context.Context, userID int64, scanID string, limit int) ([]*analyses.Analysis, error) {
	if _, err := s.Scans.Get(ctx, userID, scansdomain.ScanID(scanID)); err != nil {
		return nil, err
	}
	return s.Analyses.ListByScan(ctx, userID, scanID, limit)
}

// parseResponse tolerates markdown code fences around the JSON object.
func parseResponse(raw string) (*analysisResponse, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var out analysisResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	if len(out.Analyses) == 0 {
		return nil, fmt.Errorf("analysis response has no entries")
	}
	return &out, nil
}
