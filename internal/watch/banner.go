// Package watch binds the queue and sync engine to the driver UI: it reacts
// to connectivity transitions, schedules the storage-loss probe, and keeps
// the banner state machine the shell renders from.
package watch

// BannerState is the single queue-health state shown to the driver. Exactly
// one state is active at a time; when the queue is empty, the device online,
// and no recent result, nothing is shown.
//
// Transitions:
//
//	hidden → syncing → success (auto-hides) | error → hidden
//	hidden → offline-pending   when connectivity drops with a nonzero queue
//	any    → syncing           when a drain starts
//
// Storage loss is deliberately not a banner state: lost actions cannot be
// retried, so the loss warning is sticky and sits outside this machine until
// the driver acknowledges it (see Watcher.LossReport).
type BannerState string

const (
	// StateHidden means there is nothing to tell the driver.
	StateHidden BannerState = "hidden"
	// StateSyncing means a drain is in flight.
	StateSyncing BannerState = "syncing"
	// StateSuccess means the last drain cleared everything; auto-hides.
	StateSuccess BannerState = "success"
	// StateError means the last drain left failures or conflicts behind;
	// the UI offers a manual retry control.
	StateError BannerState = "error"
	// StateOfflinePending means the device is offline with queued actions;
	// retry is disabled because there is no network to retry over.
	StateOfflinePending BannerState = "offline_pending"
)
