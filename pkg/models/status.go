package models

// SyncStatus is the outcome of one sync attempt.
type SyncStatus string

const (
	// StatusSkipped means there was nothing to report and no request was made.
	StatusSkipped SyncStatus = "skipped"
	// StatusOffline means the connectivity check failed and no request was made.
	StatusOffline SyncStatus = "offline"
	// StatusSynced means the server confirmed the merge.
	StatusSynced SyncStatus = "synced"
	// StatusFailed is a transient failure; the same delta is retried next cycle.
	StatusFailed SyncStatus = "failed"
	// StatusRejected is a bootstrap or authentication failure.
	StatusRejected SyncStatus = "rejected"
)
