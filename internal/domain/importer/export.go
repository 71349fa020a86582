package importer

import (
	"context"
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// queueCSVRow flattens one queue item for spreadsheet review.
type queueCSVRow struct {
	RowIndex     int     `csv:"row_index"`
	Name         string  `csv:"name"`
	SKU          string  `csv:"sku"`
	Price        string  `csv:"price"`
	Unit         string  `csv:"unit"`
	Verdict      string  `csv:"verdict"`
	Method       string  `csv:"method"`
	Score        float64 `csv:"score"`
	MatchedItem  string  `csv:"matched_item"`
	TopCandidate string  `csv:"top_candidate"`
	Decision     string  `csv:"decision"`
	Error        string  `csv:"error"`
}

// ExportQueueCSV renders the resolution queue as CSV for offline review.
func (s *Service) ExportQueueCSV(ctx context.Context, id uuid.UUID) ([]byte, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows := make([]queueCSVRow, 0, len(sess.Queue))
	for _, q := range sess.Queue {
		row := queueCSVRow{
			RowIndex: q.RowIndex,
			Name:     q.Name,
			SKU:      q.SKU,
			Price:    q.Price.String(),
			Unit:     deref(q.Unit),
			Verdict:  string(q.Verdict),
			Method:   string(q.Method),
			Score:    q.Score,
			Error:    q.Error,
		}
		if q.ItemID != nil {
			row.MatchedItem = q.ItemID.String()
		}
		if len(q.Candidates) > 0 {
			top := q.Candidates[0]
			row.TopCandidate = fmt.Sprintf("%s (%.2f)", top.Name, top.Score)
		}
		if d := q.EffectiveDecision(); d != nil {
			row.Decision = string(d.Action)
		}
		rows = append(rows, row)
	}

	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal queue csv: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
