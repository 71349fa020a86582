// Package importer owns the price-list import workflow: session lifecycle,
// the dry-run matching pass, the resolution queue and the final atomic
// execution into the catalog.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/ingest"
	"github.com/mkravets/priceport/internal/domain/matching"
	"github.com/mkravets/priceport/pkg/metrics"
)

// ErrVersionRequired blocks execution of a session that has no supplier or
// price-list version attribution yet.
var ErrVersionRequired = errors.New("importer: supplier and version must be set before execution")

// DuplicateError signals that the uploaded file was already imported by a
// completed session for the same supplier and kind. The caller decides
// whether to reuse that session or abort.
type DuplicateError struct {
	ExistingSessionID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("importer: file already imported by session %s", e.ExistingSessionID)
}

// Service orchestrates import sessions.
type Service struct {
	repo    Repository
	store   catalog.Store
	matcher *matching.Matcher
	guard   *matching.Guard
	stats   *catalog.PriceStats
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService wires the import service.
func NewService(repo Repository, store catalog.Store, priceStats *catalog.PriceStats, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		store:   store,
		matcher: matching.NewMatcher(store),
		guard:   matching.NewGuard(),
		stats:   priceStats,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("importer"),
	}
}

// CreateUploadInput describes a file upload.
type CreateUploadInput struct {
	UserID     uuid.UUID
	SupplierID *uuid.UUID
	VersionID  *uuid.UUID
	Kind       catalog.ItemKind
	FileName   string
	Data       []byte
	SheetIndex int
	// HeaderRow is 0-based; negative requests auto-detection.
	HeaderRow int
	Delimiter rune
}

// CreatePasteInput describes pasted clipboard content.
type CreatePasteInput struct {
	UserID     uuid.UUID
	SupplierID *uuid.UUID
	VersionID  *uuid.UUID
	Kind       catalog.ItemKind
	Text       string
	HeaderRow  int
	Delimiter  rune
}

// CreateFromUpload parses an uploaded file into a new session. A parse
// failure still creates the session, in parsing_failed, so the attempt is
// auditable. A content-hash hit against a prior completed session returns
// DuplicateError without creating anything.
func (s *Service) CreateFromUpload(ctx context.Context, in CreateUploadInput) (*Session, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("invalid item kind %q", in.Kind)
	}

	hash := ingest.ContentHash(in.Data)
	if err := s.checkDuplicate(ctx, hash, in.SupplierID, in.Kind); err != nil {
		return nil, err
	}

	sess := &Session{
		UserID:      in.UserID,
		SupplierID:  in.SupplierID,
		VersionID:   in.VersionID,
		Kind:        in.Kind,
		Source:      SourceUpload,
		FileName:    in.FileName,
		ContentHash: hash,
		SheetIndex:  in.SheetIndex,
		Status:      StatusCreated,
	}

	table, err := ingest.Parse(in.Data, in.FileName, ingest.Options{
		SheetIndex: in.SheetIndex,
		HeaderRow:  in.HeaderRow,
		Delimiter:  in.Delimiter,
	})
	return s.finishCreate(ctx, sess, table, err)
}

// CreateFromPaste parses pasted text (delimited or an HTML table fragment)
// into a new session.
func (s *Service) CreateFromPaste(ctx context.Context, in CreatePasteInput) (*Session, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("invalid item kind %q", in.Kind)
	}

	hash := ingest.ContentHash([]byte(in.Text))
	if err := s.checkDuplicate(ctx, hash, in.SupplierID, in.Kind); err != nil {
		return nil, err
	}

	sess := &Session{
		UserID:      in.UserID,
		SupplierID:  in.SupplierID,
		VersionID:   in.VersionID,
		Kind:        in.Kind,
		Source:      SourcePaste,
		ContentHash: hash,
		Status:      StatusCreated,
	}

	table, err := ingest.ParsePasted(in.Text, ingest.Options{
		HeaderRow: in.HeaderRow,
		Delimiter: in.Delimiter,
	})
	return s.finishCreate(ctx, sess, table, err)
}

func (s *Service) checkDuplicate(ctx context.Context, hash string, supplierID *uuid.UUID, kind catalog.ItemKind) error {
	prior, err := s.repo.CompletedWithHash(ctx, hash, supplierID, kind)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if prior != nil {
		s.metrics.DuplicateUploads.Inc()
		return &DuplicateError{ExistingSessionID: *prior}
	}
	return nil
}

func (s *Service) finishCreate(ctx context.Context, sess *Session, table *ingest.Table, parseErr error) (*Session, error) {
	if parseErr != nil {
		sess.Error = parseErr.Error()
		if err := sess.Transition(StatusParsingFailed); err != nil {
			return nil, err
		}
		s.logger.Warn("import parse failed",
			slog.String("file", sess.FileName), slog.String("error", sess.Error))
	} else {
		sess.Rows = table.Rows
		sess.HeaderRow = table.HeaderRow
		sess.SheetIndex = table.SheetIndex
		sess.SheetNames = table.SheetNames
		if err := sess.Transition(StatusMappingRequired); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.metrics.SessionsCreated.WithLabelValues(string(sess.Kind), string(sess.Source)).Inc()
	s.logger.Info("import session created",
		slog.String("session_id", sess.ID.String()),
		slog.String("kind", string(sess.Kind)),
		slog.String("status", string(sess.Status)),
		slog.Int("rows", len(sess.Rows)))
	return sess, nil
}

// Get loads one session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.Get(ctx, id)
}

// ApplyMapping validates and saves the column mapping. Legal while the
// session still holds raw rows and has not started executing.
func (s *Service) ApplyMapping(ctx context.Context, id uuid.UUID, mapping ColumnMapping) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case StatusCreated, StatusMappingRequired, StatusResolutionRequired:
	default:
		return nil, fmt.Errorf("%w: cannot apply mapping in %s", ErrIllegalTransition, sess.Status)
	}
	if err := mapping.Validate(sess.Kind); err != nil {
		return nil, err
	}
	sess.Mapping = mapping
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// DryRun runs the matching pass over all data rows and rebuilds the
// resolution queue. Re-running from resolution_required is allowed and
// discards the previous queue.
func (s *Service) DryRun(ctx context.Context, id uuid.UUID) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "importer.DryRun",
		trace.WithAttributes(attribute.String("session_id", id.String())))
	defer span.End()

	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Mapping == nil {
		return nil, errors.New("importer: no column mapping saved")
	}
	if err := sess.Mapping.Validate(sess.Kind); err != nil {
		return nil, err
	}
	if err := sess.Transition(StatusResolutionRequired); err != nil {
		return nil, err
	}

	started := time.Now()
	sess.Queue, sess.PreSkipped = buildQueue(ctx, s.matcher, sess)
	sess.recomputeStats()

	for verdict, count := range map[Verdict]int{
		VerdictAutoMatched: sess.Stats.AutoMatched,
		VerdictAmbiguous:   sess.Stats.Ambiguous,
		VerdictNew:         sess.Stats.New,
		VerdictIgnored:     sess.Stats.Ignored,
		VerdictError:       sess.Stats.Errors,
	} {
		s.metrics.DryRunRows.WithLabelValues(string(verdict)).Add(float64(count))
	}

	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("dry run finished",
		slog.String("session_id", sess.ID.String()),
		slog.Int("total", sess.Stats.Total),
		slog.Int("auto_matched", sess.Stats.AutoMatched),
		slog.Int("ambiguous", sess.Stats.Ambiguous),
		slog.Int("new", sess.Stats.New),
		slog.Duration("took", time.Since(started)))
	return sess, nil
}

// BulkOp is one queue-wide resolution operation.
type BulkOp string

const (
	BulkAcceptNew     BulkOp = "accept_new"
	BulkIgnore        BulkOp = "ignore"
	BulkLink          BulkOp = "link"
	BulkSetConversion BulkOp = "set_conversion"
)

// BulkAction applies one operation to a set of queue rows.
type BulkAction struct {
	Rows         []int            `json:"rows"`
	Op           BulkOp           `json:"op"`
	ItemID       *uuid.UUID       `json:"item_id,omitempty"`
	Conversion   *decimal.Decimal `json:"conversion_factor,omitempty"`
	SupplierUnit *string          `json:"supplier_unit,omitempty"`
	InternalUnit *string          `json:"internal_unit,omitempty"`
}

// Resolve applies bulk actions to the queue and recomputes stats. Legal only
// while the session sits in resolution_required.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, actions []BulkAction) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusResolutionRequired {
		return nil, fmt.Errorf("%w: cannot resolve in %s", ErrIllegalTransition, sess.Status)
	}

	for _, action := range actions {
		if err := applyBulkAction(sess, action); err != nil {
			return nil, err
		}
	}
	sess.recomputeStats()

	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func applyBulkAction(sess *Session, action BulkAction) error {
	for _, rowIdx := range action.Rows {
		q := sess.item(rowIdx)
		if q == nil {
			return fmt.Errorf("row %d is not in the queue", rowIdx)
		}
		switch action.Op {
		case BulkAcceptNew:
			q.Decision = &Decision{
				Action:       ActionCreate,
				Conversion:   conversionOr(action.Conversion, decimal.NewFromInt(1)),
				SupplierUnit: firstUnit(action.SupplierUnit, q.Unit),
				InternalUnit: firstUnit(action.InternalUnit, q.Unit),
			}
		case BulkIgnore:
			q.Decision = &Decision{Action: ActionIgnore}
			q.Verdict = VerdictIgnored
		case BulkLink:
			if action.ItemID == nil {
				return fmt.Errorf("row %d: link action requires item_id", rowIdx)
			}
			q.Decision = &Decision{
				Action:       ActionLink,
				ItemID:       action.ItemID,
				Conversion:   conversionOr(action.Conversion, decimal.NewFromInt(1)),
				SupplierUnit: firstUnit(action.SupplierUnit, q.Unit),
				InternalUnit: action.InternalUnit,
			}
		case BulkSetConversion:
			if action.Conversion == nil || action.Conversion.Sign() <= 0 {
				return fmt.Errorf("row %d: conversion factor must be strictly positive", rowIdx)
			}
			target := q.Decision
			if target == nil {
				if q.Suggested == nil {
					return fmt.Errorf("row %d: no decision to set conversion on", rowIdx)
				}
				copied := *q.Suggested
				q.Decision = &copied
				target = q.Decision
			}
			target.Conversion = *action.Conversion
			if action.SupplierUnit != nil {
				target.SupplierUnit = action.SupplierUnit
			}
			if action.InternalUnit != nil {
				target.InternalUnit = action.InternalUnit
			}
		default:
			return fmt.Errorf("unrecognized bulk op %q", action.Op)
		}
	}
	return nil
}

// mergeDecisions merges explicit per-row decisions into the queue; used by
// Execute so a caller can resolve and execute in one call.
func mergeDecisions(sess *Session, decisions map[int]Decision) error {
	for rowIdx, d := range decisions {
		q := sess.item(rowIdx)
		if q == nil {
			return fmt.Errorf("row %d is not in the queue", rowIdx)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", rowIdx, err)
		}
		copied := d
		q.Decision = &copied
		if d.Action == ActionIgnore {
			q.Verdict = VerdictIgnored
		}
	}
	return nil
}

// Execute writes the resolved queue into the catalog inside one transaction.
// Any row failure rolls back every write and marks the session
// execution_failed with the partial in-memory result attached.
func (s *Service) Execute(ctx context.Context, id uuid.UUID, decisions map[int]Decision) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "importer.Execute",
		trace.WithAttributes(attribute.String("session_id", id.String())))
	defer span.End()

	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.Transition(StatusExecutionRunning); err != nil {
		return nil, err
	}
	if sess.SupplierID == nil || sess.VersionID == nil {
		return nil, ErrVersionRequired
	}
	if err := mergeDecisions(sess, decisions); err != nil {
		return nil, err
	}
	if err := validateDecisions(sess); err != nil {
		return nil, err
	}

	// The running state is persisted before any catalog write so a crashed
	// run is visible and retryable.
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}

	exec := &executor{guard: s.guard}
	var result *ExecResult
	txErr := s.store.InTx(ctx, func(tx catalog.Tx) error {
		var runErr error
		result, runErr = exec.run(ctx, tx, sess)
		return runErr
	})

	if txErr != nil {
		sess.Result = result
		sess.Error = txErr.Error()
		if err := sess.Transition(StatusExecutionFailed); err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, sess); err != nil {
			return nil, err
		}
		s.metrics.Executions.WithLabelValues("failed").Inc()
		s.logger.Error("import execution failed",
			slog.String("session_id", sess.ID.String()),
			slog.String("error", txErr.Error()))
		return sess, txErr
	}

	sess.Result = result
	sess.Error = ""
	if err := sess.Transition(StatusCompleted); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}

	for _, ref := range exec.touched {
		s.stats.Invalidate(ref.Kind, ref.ID)
	}
	s.metrics.Executions.WithLabelValues("completed").Inc()
	s.metrics.ImportedRows.Add(float64(result.CreatedPrices + result.UpdatedPrices))
	s.logger.Info("import execution completed",
		slog.String("session_id", sess.ID.String()),
		slog.Int("created_items", result.CreatedItems),
		slog.Int("created_prices", result.CreatedPrices),
		slog.Int("updated_prices", result.UpdatedPrices),
		slog.Int("created_aliases", result.CreatedAliases),
		slog.Int("skipped", result.Skipped))
	return sess, nil
}

// Cancel moves a non-terminal session to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.Transition(StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("import session cancelled", slog.String("session_id", sess.ID.String()))
	return sess, nil
}

// Queue returns the resolution queue, optionally filtered by verdict.
func (s *Service) Queue(ctx context.Context, id uuid.UUID, verdict Verdict) ([]QueueItem, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if verdict == "" {
		return sess.Queue, nil
	}
	var filtered []QueueItem
	for _, q := range sess.Queue {
		if q.Verdict == verdict {
			filtered = append(filtered, q)
		}
	}
	return filtered, nil
}

// SweepStale cancels sessions abandoned before reaching resolution. Wired
// to the maintenance scheduler.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.repo.Stale(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		if _, err := s.Cancel(ctx, id); err != nil {
			s.logger.Warn("stale sweep skip",
				slog.String("session_id", id.String()), slog.String("error", err.Error()))
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func conversionOr(v *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if v != nil && v.Sign() > 0 {
		return *v
	}
	return fallback
}

func firstUnit(units ...*string) *string {
	for _, u := range units {
		if u != nil {
			return u
		}
	}
	return nil
}
