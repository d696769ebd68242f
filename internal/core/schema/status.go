package schema

import "sync"

// StatusEntry is one line of a run report.
type StatusEntry struct {
	Locator string `json:"locator"`
	FieldID string `json:"fieldId,omitempty"`
	Message string `json:"message"`
}

// Outcome is the overall result of a run that did not fail fatally.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeCompletedWithErrors Outcome = "completed_with_errors"
)

// SyncStatus collects per-item errors, warnings and info during a run.
// It is safe for concurrent use.
type SyncStatus struct {
	mu       sync.Mutex
	Errors   []StatusEntry `json:"errors"`
	Warnings []StatusEntry `json:"warnings"`
	Info     []StatusEntry `json:"info"`
}

// NewSyncStatus returns an empty status with non-nil lists.
func NewSyncStatus() *SyncStatus {
	return &SyncStatus{Errors: []StatusEntry{}, Warnings: []StatusEntry{}, Info: []StatusEntry{}}
}

func (s *SyncStatus) AddError(locator, fieldID, msg string) {
	s.mu.Lock()
	s.Errors = append(s.Errors, StatusEntry{Locator: locator, FieldID: fieldID, Message: msg})
	s.mu.Unlock()
}

func (s *SyncStatus) AddWarning(locator, fieldID, msg string) {
	s.mu.Lock()
	s.Warnings = append(s.Warnings, StatusEntry{Locator: locator, FieldID: fieldID, Message: msg})
	s.mu.Unlock()
}

func (s *SyncStatus) AddInfo(locator, fieldID, msg string) {
	s.mu.Lock()
	s.Info = append(s.Info, StatusEntry{Locator: locator, FieldID: fieldID, Message: msg})
	s.mu.Unlock()
}

// Counts returns the number of entries in each list.
func (s *SyncStatus) Counts() (errors, warnings, info int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Errors), len(s.Warnings), len(s.Info)
}

// Outcome is success when no errors or warnings were recorded.
func (s *SyncStatus) Outcome() Outcome {
	e, w, _ := s.Counts()
	if e == 0 && w == 0 {
		return OutcomeSuccess
	}
	return OutcomeCompletedWithErrors
}
