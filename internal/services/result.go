package services

import (
	"fmt"
)

// BatchResult reports the outcome of a bulk assignment operation. Bulk
// operations never roll back the whole batch; per-item failures land in Errors.
type BatchResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
	Assigned int      `json:"assigned"`
	Synced   int      `json:"synced"`
	Skipped  int      `json:"skipped"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{Errors: []string{}}
}

// Success reports whether every item went through without error.
func (r *BatchResult) Success() bool {
	return len(r.Errors) == 0
}

// Summary renders the counts in a single line.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("Assigned: %d, Synced: %d, Skipped: %d, Errors: %d",
		r.Assigned, r.Synced, r.Skipped, len(r.Errors))
}

func (r *BatchResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *BatchResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SyncResult reports the outcome of a reconciliation pass.
type SyncResult struct {
	Errors         []string `json:"errors"`
	TagsResolved   int      `json:"tagsResolved"`
	Synced         int      `json:"synced"`
	Failed         int      `json:"failed"`
	Skipped        int      `json:"skipped"`
	IntegrationOff bool     `json:"integrationOff,omitempty"`
}

func newSyncResult() *SyncResult {
	return &SyncResult{Errors: []string{}}
}

// Success reports whether nothing failed.
func (r *SyncResult) Success() bool {
	return r.Failed == 0 && len(r.Errors) == 0
}

// Message renders the counts in a single line.
func (r *SyncResult) Message() string {
	if r.IntegrationOff {
		return "Sync skipped: integration disabled"
	}
	return fmt.Sprintf("Synced %d assignments, %d failed, %d skipped", r.Synced, r.Failed, r.Skipped)
}

func (r *SyncResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// MigrationResult reports the outcome of a one-off data migration.
type MigrationResult struct {
	Errors   []string `json:"errors"`
	Migrated int      `json:"migrated"`
	Skipped  int      `json:"skipped"`
}

func newMigrationResult() *MigrationResult {
	return &MigrationResult{Errors: []string{}}
}

// Summary renders the counts in a single line.
func (r *MigrationResult) Summary() string {
	return fmt.Sprintf("Migrated: %d, Skipped: %d, Errors: %d", r.Migrated, r.Skipped, len(r.Errors))
}

func (r *MigrationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AdoptResult reports the outcome of adopting external tags as portfolios.
type AdoptResult struct {
	Errors  []string `json:"errors"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
}

// Message renders the counts in a single line.
func (r *AdoptResult) Message() string {
	return fmt.Sprintf("External tags adopted. Created: %d portfolios, Updated: %d portfolios", r.Created, r.Updated)
}
