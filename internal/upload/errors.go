package upload

import (
	"errors"
	"fmt"
)

// Commit and management errors.
var (
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrFileTooLarge       = errors.New("file size exceeds maximum allowed")
	ErrEmptyFile          = errors.New("file is empty")
	ErrInvalidRequest     = errors.New("invalid upload request")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrRowInsertFailed    = errors.New("row insert failed")
	ErrNotFound           = errors.New("photo not found")
	ErrForbidden          = errors.New("photo belongs to another user")
)

// Stage names a step of the commit sequence.
type Stage string

// Commit stages in execution order.
const (
	StageBlob        Stage = "blob_upload"
	StagePhoto       Stage = "photo_row"
	StageVisibility  Stage = "visibility_row"
	StageInfo        Stage = "info_row"
	StageDescription Stage = "description_row"
)

// StageError reports the stage at which a commit aborted.
// Compensated is true when every undo action for earlier stages succeeded;
// it is always false when compensation is disabled.
type StageError struct {
	Stage       Stage
	Err         error
	Compensated bool
	// Leftovers lists the undo actions that failed, e.g. "remove_blob".
	Leftovers []string
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("upload failed at %s: %v", e.Stage, e.Err)
	if len(e.Leftovers) > 0 {
		msg += fmt.Sprintf(" (cleanup incomplete: %v)", e.Leftovers)
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, sentinel, cause error) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
