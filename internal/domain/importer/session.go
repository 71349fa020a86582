package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/matching"
)

// Status is the import session lifecycle state.
type Status string

const (
	StatusCreated            Status = "created"
	StatusParsingFailed      Status = "parsing_failed"
	StatusMappingRequired    Status = "mapping_required"
	StatusResolutionRequired Status = "resolution_required"
	StatusExecutionRunning   Status = "execution_running"
	StatusCompleted          Status = "completed"
	StatusExecutionFailed    Status = "execution_failed"
	StatusCancelled          Status = "cancelled"
)

var (
	ErrIllegalTransition = errors.New("importer: illegal session transition")
	ErrSessionNotFound   = errors.New("importer: session not found")
)

// transitions is the single source of truth for lifecycle legality. An edge
// absent here must fail loudly, never silently succeed.
//
// resolution_required re-enters itself so the matcher can be re-run without
// discarding rows. execution_running self-loops to let a stuck run be
// retried, and execution_failed re-enters execution for repair-and-resubmit.
var transitions = map[Status][]Status{
	StatusCreated:            {StatusParsingFailed, StatusMappingRequired, StatusCancelled},
	StatusMappingRequired:    {StatusResolutionRequired, StatusCancelled},
	StatusResolutionRequired: {StatusResolutionRequired, StatusExecutionRunning, StatusCancelled},
	StatusExecutionRunning:   {StatusExecutionRunning, StatusCompleted, StatusExecutionFailed, StatusCancelled},
	StatusExecutionFailed:    {StatusExecutionRunning, StatusCancelled},
	StatusParsingFailed:      {},
	StatusCompleted:          {},
	StatusCancelled:          {},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further work can happen in this status.
// execution_failed is deliberately not terminal: it permits retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusParsingFailed || s == StatusCancelled
}

// Field is the semantic meaning assigned to one spreadsheet column.
type Field string

const (
	FieldName     Field = "name"
	FieldPrice    Field = "price"
	FieldUnit     Field = "unit"
	FieldSKU      Field = "sku"
	FieldCategory Field = "category"
	FieldIgnore   Field = "ignore"
)

var knownFields = map[Field]bool{
	FieldName: true, FieldPrice: true, FieldUnit: true,
	FieldSKU: true, FieldCategory: true, FieldIgnore: true,
}

// ColumnMapping assigns a semantic field to each mapped column index.
type ColumnMapping map[int]Field

// Validate enforces one column per field (ignore may repeat) and the
// required fields for the target kind: both kinds need name and price.
func (m ColumnMapping) Validate(kind catalog.ItemKind) error {
	seen := make(map[Field]int, len(m))
	for col, f := range m {
		if !knownFields[f] {
			return fmt.Errorf("column %d: unknown field %q", col, f)
		}
		if f == FieldIgnore {
			continue
		}
		if prev, dup := seen[f]; dup {
			return fmt.Errorf("field %q mapped to both column %d and %d", f, prev, col)
		}
		seen[f] = col
	}
	for _, required := range []Field{FieldName, FieldPrice} {
		if _, ok := seen[required]; !ok {
			return fmt.Errorf("required field %q is not mapped for %s import", required, kind)
		}
	}
	return nil
}

// Column returns the column index carrying the field, or -1.
func (m ColumnMapping) Column(f Field) int {
	for col, field := range m {
		if field == f {
			return col
		}
	}
	return -1
}

// Verdict classifies one queue row after the matching pass.
type Verdict string

const (
	VerdictAutoMatched Verdict = "auto_matched"
	VerdictAmbiguous   Verdict = "ambiguous"
	VerdictNew         Verdict = "new"
	VerdictIgnored     Verdict = "ignored"
	VerdictError       Verdict = "error"
)

// Action is a user resolution choice for one queue row.
type Action string

const (
	ActionLink   Action = "link"
	ActionCreate Action = "create"
	ActionIgnore Action = "ignore"
)

// Decision is an explicit user resolution. Once present it supersedes the
// row's verdict at execution time.
type Decision struct {
	Action       Action           `json:"action"`
	ItemID       *uuid.UUID       `json:"item_id,omitempty"`
	Conversion   decimal.Decimal  `json:"conversion_factor"`
	SupplierUnit *string          `json:"supplier_unit,omitempty"`
	InternalUnit *string          `json:"internal_unit,omitempty"`
}

// Validate checks the decision shape before any write happens.
func (d Decision) Validate() error {
	switch d.Action {
	case ActionIgnore:
		return nil
	case ActionLink:
		if d.ItemID == nil {
			return errors.New("link decision requires an item id")
		}
	case ActionCreate:
	default:
		return fmt.Errorf("unrecognized action %q", d.Action)
	}
	if d.Conversion.Sign() <= 0 {
		return errors.New("conversion factor must be strictly positive")
	}
	return nil
}

// CandidateView is one ranked match candidate kept on the queue for
// resolution UI and audit.
type CandidateView struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Name     string          `json:"name"`
	Unit     *string         `json:"unit,omitempty"`
	Category *string         `json:"category,omitempty"`
	Score    float64         `json:"score"`
	Method   matching.Method `json:"method"`
}

// QueueItem is one data row of the resolution queue.
type QueueItem struct {
	RowIndex       int             `json:"row_index"`
	Name           string          `json:"name"`
	NormalizedName string          `json:"normalized_name"`
	SKU            string          `json:"sku,omitempty"`
	RawPrice       string          `json:"raw_price"`
	Price          decimal.Decimal `json:"price"`
	Unit           *string         `json:"unit,omitempty"`
	Category       *string         `json:"category,omitempty"`

	Verdict    Verdict         `json:"verdict"`
	Method     matching.Method `json:"method"`
	Score      float64         `json:"score"`
	ItemID     *uuid.UUID      `json:"item_id,omitempty"`
	Candidates []CandidateView `json:"candidates,omitempty"`
	Error      string          `json:"error,omitempty"`

	Suggested *Decision `json:"suggested,omitempty"`
	Decision  *Decision `json:"decision,omitempty"`
}

// EffectiveDecision is the user's decision if present, else the suggestion.
func (q *QueueItem) EffectiveDecision() *Decision {
	if q.Decision != nil {
		return q.Decision
	}
	return q.Suggested
}

// Stats are verdict counters for UI polling.
type Stats struct {
	Total       int `json:"total"`
	AutoMatched int `json:"auto_matched"`
	Ambiguous   int `json:"ambiguous"`
	New         int `json:"new"`
	Ignored     int `json:"ignored"`
	Errors      int `json:"errors"`
}

// ComputeStats recounts verdicts over the queue. Used after the dry run and
// after every bulk action so the numbers never drift from the queue itself.
func ComputeStats(queue []QueueItem) Stats {
	s := Stats{Total: len(queue)}
	for i := range queue {
		switch queue[i].Verdict {
		case VerdictAutoMatched:
			s.AutoMatched++
		case VerdictAmbiguous:
			s.Ambiguous++
		case VerdictNew:
			s.New++
		case VerdictIgnored:
			s.Ignored++
		case VerdictError:
			s.Errors++
		}
	}
	return s
}

// RowError is one failed row inside an execution result.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Error    string `json:"error"`
}

// ExecResult is the execution outcome attached to the session. On failure it
// holds the partial in-memory counts for diagnostics; nothing partial is
// persisted to the catalog.
type ExecResult struct {
	CreatedItems   int        `json:"created_items"`
	CreatedPrices  int        `json:"created_prices"`
	UpdatedPrices  int        `json:"updated_prices"`
	CreatedAliases int        `json:"created_aliases"`
	Skipped        int        `json:"skipped"`
	Errors         []RowError `json:"errors,omitempty"`
}

// SourceType records how the rows entered the system.
type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourcePaste  SourceType = "paste"
)

// Session owns one import workflow end to end: the cached row matrix, the
// column mapping, the resolution queue and the lifecycle status. Sessions
// are never physically deleted; completed ones feed duplicate detection.
type Session struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	SupplierID *uuid.UUID       `json:"supplier_id,omitempty"`
	VersionID  *uuid.UUID       `json:"version_id,omitempty"`
	Kind       catalog.ItemKind `json:"kind"`

	Source      SourceType `json:"source"`
	FileName    string     `json:"file_name,omitempty"`
	ContentHash string     `json:"content_hash"`
	SheetIndex  int        `json:"sheet_index"`
	SheetNames  []string   `json:"sheet_names,omitempty"`
	HeaderRow   int        `json:"header_row"`

	Mapping ColumnMapping `json:"mapping,omitempty"`
	Rows    [][]string    `json:"rows"`
	Queue   []QueueItem   `json:"queue,omitempty"`
	Stats   Stats         `json:"stats"`
	// PreSkipped counts rows filtered out before matching, such as operation
	// rows without a positive price. They never enter the queue but still
	// show up in the ignored stat.
	PreSkipped int         `json:"pre_skipped,omitempty"`
	Result     *ExecResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the session to the next status, failing loudly on any
// edge the lifecycle map does not allow.
func (s *Session) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, to)
	}
	s.Status = to
	return nil
}

// supplierOrNil flattens the optional supplier id for matcher input.
func (s *Session) supplierOrNil() uuid.UUID {
	if s.SupplierID == nil {
		return uuid.Nil
	}
	return *s.SupplierID
}

// recomputeStats recounts verdicts, folding pre-skipped rows into the
// ignored and total counters.
func (s *Session) recomputeStats() {
	s.Stats = ComputeStats(s.Queue)
	s.Stats.Total += s.PreSkipped
	s.Stats.Ignored += s.PreSkipped
}

// item returns the queue item at the given data-row index, or nil.
func (s *Session) item(rowIndex int) *QueueItem {
	for i := range s.Queue {
		if s.Queue[i].RowIndex == rowIndex {
			return &s.Queue[i]
		}
	}
	return nil
}
