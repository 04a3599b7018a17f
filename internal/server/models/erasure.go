package models

import "time"

// ErasureStep is the outcome of one teardown step.
type ErasureStep struct {
	Name        string
	RowsDeleted int64
}

// BlobFailure is a blob that could not be removed from the blob store.
type BlobFailure struct {
	FileID  string
	BlobKey string
	Error   string
}

// ErasureReport accumulates everything an account erasure did.
type ErasureReport struct {
	UserID       string
	Email        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Resumed      bool
	BlobsDeleted int
	BlobFailures []BlobFailure
	Steps        []ErasureStep
	EventError   string
}

// AddStep appends a step result.
func (r *ErasureReport) AddStep(name string, rows int64) {
	r.Steps = append(r.Steps, ErasureStep{Name: name, RowsDeleted: rows})
}

// TotalRows sums rows deleted across all steps.
func (r *ErasureReport) TotalRows() int64 {
	var n int64
	for _, s := range r.Steps {
		n += s.RowsDeleted
	}
	return n
}
