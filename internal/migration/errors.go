package migration

import (
	"fmt"
)

// Stage names the pipeline step an item failed in.
type Stage string

const (
	StageDownload  Stage = "download"
	StageTransform Stage = "transform"
	StageUpload    Stage = "upload"
	StagePersist   Stage = "persist"
	StageInternal  Stage = "internal"
)

// ItemError is a failure confined to one item. It is recorded on the item
// and in the migration log and never stops the batch.
type ItemError struct {
	ItemID string
	Stage  Stage
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Reasons a discovery row is skipped.
const (
	ReasonMissingKey         = "missing_key"
	ReasonUnknownUnit        = "unknown_unit"
	ReasonMalformedReference = "malformed_reference"
	ReasonMissingReference   = "missing_reference"
	ReasonResolution         = "resolution"
	ReasonPersist            = "persist"
)

// ValidationError is a discovery row that was skipped.
type ValidationError struct {
	RowKey string `json:"rowKey,omitempty"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d (%s): %s: %v", e.Row, e.RowKey, e.Reason, e.Err)
	}
	return fmt.Sprintf("row %d (%s): %s", e.Row, e.RowKey, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BatchFatalError is a store failure that stopped a batch. The run is moved
// to error state when one is returned.
type BatchFatalError struct {
	TenantID string
	Op       string
	Err      error
}

func (e *BatchFatalError) Error() string {
	return fmt.Sprintf("batch for tenant %s: %s: %v", e.TenantID, e.Op, e.Err)
}

func (e *BatchFatalError) Unwrap() error { return e.Err }
