package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/matching"
	"github.com/mkravets/priceport/internal/domain/textnorm"
)

// buildQueue runs the matching pass over every data row and returns the
// resolution queue plus the count of rows filtered out before matching.
// Rows at or above the header, rows without a name, and operation rows
// without a positive price never enter the queue.
func buildQueue(ctx context.Context, m *matching.Matcher, sess *Session) ([]QueueItem, int) {
	var (
		queue      []QueueItem
		preSkipped int
	)
	for idx, row := range sess.Rows {
		if idx <= sess.HeaderRow {
			continue
		}
		name := cellAt(row, sess.Mapping, FieldName)
		if name == "" {
			continue
		}

		rawPrice := cellAt(row, sess.Mapping, FieldPrice)
		price, priceOK := textnorm.ExtractPrice(rawPrice)

		// Operation price lists carry section headers and zero-priced
		// placeholder rows. Those are dropped before matching; they must
		// never be imported.
		if sess.Kind == catalog.KindOperations && (!priceOK || price.Sign() <= 0) {
			preSkipped++
			continue
		}

		item := matchOne(ctx, m, sess, idx, row, name, rawPrice, price, priceOK)
		queue = append(queue, item)
	}
	return queue, preSkipped
}

// matchOne classifies a single row. A panic or error inside matching becomes
// an error verdict on that row; the pass itself never aborts.
func matchOne(ctx context.Context, m *matching.Matcher, sess *Session, idx int, row []string, name, rawPrice string, price decimal.Decimal, priceOK bool) (item QueueItem) {
	item = QueueItem{
		RowIndex: idx,
		Name:     name,
		SKU:      cellAt(row, sess.Mapping, FieldSKU),
		RawPrice: rawPrice,
		Price:    price,
		Unit:     textnorm.NormalizeUnit(cellAt(row, sess.Mapping, FieldUnit)),
		Category: optional(cellAt(row, sess.Mapping, FieldCategory)),
	}

	defer func() {
		if r := recover(); r != nil {
			item.Verdict = VerdictError
			item.Error = fmt.Sprintf("match panic: %v", r)
		}
	}()

	if !priceOK {
		item.Verdict = VerdictError
		item.Error = fmt.Sprintf("unparsable price %q", rawPrice)
		return item
	}

	var supplierID = sess.supplierOrNil()
	res, err := m.Match(ctx, matching.Input{
		SupplierID: supplierID,
		Kind:       sess.Kind,
		RawName:    name,
		SKU:        item.SKU,
		Scope:      catalog.Scope{UserID: &sess.UserID},
	})
	if err != nil {
		item.Verdict = VerdictError
		item.Error = err.Error()
		return item
	}

	item.NormalizedName = res.NormalizedName
	item.Method = res.Method
	item.Score = res.Score
	for _, c := range res.Candidates {
		item.Candidates = append(item.Candidates, CandidateView{
			ItemID:   c.Item.ID,
			Name:     c.Item.Name,
			Unit:     c.Item.Unit,
			Category: c.Item.Category,
			Score:    c.Score,
			Method:   res.Method,
		})
	}

	switch {
	case res.Matched():
		item.Verdict = VerdictAutoMatched
		id := res.Item.ID
		item.ItemID = &id
		item.Suggested = suggestLink(item, res.Item, res.Alias)
	case res.Ambiguous():
		item.Verdict = VerdictAmbiguous
		top := res.Candidates[0].Item
		item.Suggested = suggestLink(item, &top, nil)
	default:
		item.Verdict = VerdictNew
		item.Suggested = &Decision{
			Action:       ActionCreate,
			Conversion:   decimal.NewFromInt(1),
			SupplierUnit: item.Unit,
			InternalUnit: item.Unit,
		}
	}
	return item
}

// suggestLink proposes linking to the given item. An alias carries the
// conversion factor learned from past imports; otherwise the unit-pair table
// guesses one, defaulting to 1.
func suggestLink(q QueueItem, target *catalog.Item, alias *catalog.Alias) *Decision {
	id := target.ID
	d := &Decision{
		Action:       ActionLink,
		ItemID:       &id,
		SupplierUnit: q.Unit,
		InternalUnit: target.Unit,
	}
	if alias != nil && alias.Conversion.Sign() > 0 {
		d.Conversion = alias.Conversion
		if alias.SupplierUnit != nil {
			d.SupplierUnit = alias.SupplierUnit
		}
		if alias.InternalUnit != nil {
			d.InternalUnit = alias.InternalUnit
		}
		return d
	}
	d.Conversion = textnorm.GuessConversion(q.Unit, target.Unit)
	return d
}

func cellAt(row []string, mapping ColumnMapping, f Field) string {
	col := mapping.Column(f)
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
