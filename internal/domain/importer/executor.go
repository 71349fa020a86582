package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/matching"
)

// ErrInconsistentLink marks a manual link decision that crosses a semantic
// marker or dimension boundary. Such a link aborts the whole execution:
// silently mis-pricing an operation is worse than failing the import.
var ErrInconsistentLink = errors.New("importer: link target is semantically inconsistent with the row")

// ErrUnresolvedRow marks a queue row that still needs a decision.
var ErrUnresolvedRow = errors.New("importer: row has no resolution decision")

// executor writes one session's resolved queue into the catalog. All writes
// happen through the Tx it is handed; the caller owns transaction scope.
type executor struct {
	guard *matching.Guard
	// touched accumulates item refs whose prices changed, for median-cache
	// invalidation after commit.
	touched []catalog.ItemRef
}

// validateDecisions checks every row before any write. New and ambiguous
// rows require an explicit or suggested decision with a recognized action;
// link targets and conversion factors are shape-checked here, existence and
// guard checks happen inside the transaction.
func validateDecisions(sess *Session) error {
	for i := range sess.Queue {
		q := &sess.Queue[i]
		switch q.Verdict {
		case VerdictIgnored, VerdictError:
			continue
		case VerdictNew, VerdictAmbiguous:
			// Suggestions prefill the UI but never execute on their own:
			// these rows need an explicit human decision.
			if q.Decision == nil {
				return fmt.Errorf("row %d: %w", q.RowIndex, ErrUnresolvedRow)
			}
		}
		d := q.EffectiveDecision()
		if d == nil {
			return fmt.Errorf("row %d: %w", q.RowIndex, ErrUnresolvedRow)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", q.RowIndex, err)
		}
	}
	return nil
}

// run executes every queue row inside tx. The first row error aborts with a
// partial result for diagnostics; the transaction rolls back behind it.
func (e *executor) run(ctx context.Context, tx catalog.Tx, sess *Session) (*ExecResult, error) {
	res := &ExecResult{}
	supplierID := *sess.SupplierID
	versionID := *sess.VersionID

	for i := range sess.Queue {
		q := &sess.Queue[i]
		if q.Verdict == VerdictIgnored || q.Verdict == VerdictError {
			res.Skipped++
			continue
		}
		d := q.EffectiveDecision()
		if d.Action == ActionIgnore {
			res.Skipped++
			continue
		}

		if err := e.writeRow(ctx, tx, sess, q, d, supplierID, versionID, res); err != nil {
			res.Errors = append(res.Errors, RowError{RowIndex: q.RowIndex, Error: err.Error()})
			return res, fmt.Errorf("row %d: %w", q.RowIndex, err)
		}
	}

	if err := tx.ActivateVersion(ctx, versionID); err != nil {
		return res, err
	}
	return res, nil
}

func (e *executor) writeRow(ctx context.Context, tx catalog.Tx, sess *Session, q *QueueItem, d *Decision, supplierID, versionID uuid.UUID, res *ExecResult) error {
	item, err := e.resolveTarget(ctx, tx, sess, q, d, res)
	if err != nil {
		return err
	}

	perUnit, err := catalog.ComputePerUnit(q.Price, d.Conversion)
	if err != nil {
		return err
	}

	itemID := item.ID
	manual := q.Decision != nil
	snap := &catalog.PriceSnapshot{
		SupplierID:   supplierID,
		VersionID:    versionID,
		ItemKind:     sess.Kind,
		ItemID:       &itemID,
		SourceName:   q.Name,
		SourceKey:    optional(q.SKU),
		SourcePrice:  q.Price,
		SourceUnit:   d.SupplierUnit,
		InternalUnit: d.InternalUnit,
		Conversion:   d.Conversion,
		PricePerUnit: perUnit,
		Currency:     "RUB",
		PriceType:    catalog.PriceRetail,
		SourceRow:    q.RowIndex,
		Confidence:   confidenceFor(q, manual),
	}
	created, err := tx.UpsertPriceSnapshot(ctx, snap)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if created {
		res.CreatedPrices++
	} else {
		res.UpdatedPrices++
	}
	e.touched = append(e.touched, item.Ref())

	alias := &catalog.Alias{
		SupplierID:   supplierID,
		ExternalKey:  aliasKeyFor(q),
		ExternalName: q.Name,
		Item:         item.Ref(),
		SupplierUnit: d.SupplierUnit,
		InternalUnit: d.InternalUnit,
		Conversion:   d.Conversion,
		Confidence:   confidenceFor(q, manual),
	}
	aliasCreated, err := tx.UpsertAlias(ctx, alias)
	if err != nil {
		return fmt.Errorf("upsert alias: %w", err)
	}
	if aliasCreated {
		res.CreatedAliases++
	}
	return nil
}

// resolveTarget finds or creates the catalog item the row writes against.
func (e *executor) resolveTarget(ctx context.Context, tx catalog.Tx, sess *Session, q *QueueItem, d *Decision, res *ExecResult) (*catalog.Item, error) {
	scope := catalog.Scope{UserID: &sess.UserID}

	switch d.Action {
	case ActionLink:
		item, err := tx.ItemByID(ctx, sess.Kind, *d.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, fmt.Errorf("link target %s: %w", d.ItemID, catalog.ErrNotFound)
		}
		// A manual link is re-validated: the user may override scores but
		// not semantics.
		if !e.guard.Consistent(q.NormalizedName, item.NormalizedName) {
			return nil, fmt.Errorf("%w: %q vs %q", ErrInconsistentLink, q.Name, item.Name)
		}
		return item, nil

	case ActionCreate:
		// Resolve-or-create keeps re-imports idempotent: an item created by
		// an earlier session is reused, never duplicated.
		item, err := tx.ItemByNormalizedName(ctx, sess.Kind, q.NormalizedName, scope)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
		userID := sess.UserID
		item = &catalog.Item{
			Kind:           sess.Kind,
			UserID:         &userID,
			Name:           q.Name,
			NormalizedName: q.NormalizedName,
			Unit:           d.InternalUnit,
			Category:       q.Category,
		}
		if err := tx.CreateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("create item: %w", err)
		}
		res.CreatedItems++
		return item, nil

	default:
		return nil, fmt.Errorf("unrecognized action %q", d.Action)
	}
}

func aliasKeyFor(q *QueueItem) string {
	if q.SKU != "" {
		return matching.SKUKey(q.SKU)
	}
	return matching.NameKeyFor(q.NormalizedName)
}

func confidenceFor(q *QueueItem, manual bool) catalog.AliasConfidence {
	if manual {
		return catalog.ConfidenceManual
	}
	switch q.Method {
	case matching.MethodExact, matching.MethodAliasSKU, matching.MethodAliasName:
		return catalog.ConfidenceAutoExact
	case matching.MethodFuzzyAuto:
		return catalog.ConfidenceAutoFuzzy
	default:
		// Suggested creations and suggested links accepted without an
		// explicit decision.
		return catalog.ConfidenceAutoFuzzy
	}
}
