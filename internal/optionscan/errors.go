package optionscan

import "errors"

// Sentinel errors for the scan pipeline, checked with errors.Is throughout.
var (
	// ErrScanInProgress is returned by TriggerNow when a scan is already
	// running. Surfaces at the TriggerNow boundary only.
	ErrScanInProgress = errors.New("optionscan: scan already in progress")

	// ErrCancelled names cooperative cancellation of an in-flight scan.
	// The orchestrator does not return it: a cancelled scan is closed as
	// Failed with the error message "cancelled".
	ErrCancelled = errors.New("optionscan: cancelled")

	// ErrTransientProvider names network/5xx/429 failures that are retried
	// per policy. The provider transport recognises these by error type and
	// does not wrap them with this sentinel; a failure that outlasts the
	// retries is wrapped as ErrProvider by the adapters.
	ErrTransientProvider = errors.New("optionscan: transient provider error")

	// ErrProvider is a non-recoverable upstream failure. Surfaces as a
	// SymbolError event and never fails the scan.
	ErrProvider = errors.New("optionscan: provider error")

	// ErrDataValidation marks an inconsistent or partial provider
	// payload. Treated as ErrProvider by callers.
	ErrDataValidation = errors.New("optionscan: invalid provider payload")

	// ErrStore wraps a persistence failure on one row. Surfaces as a
	// SymbolError event; never fails the scan.
	ErrStore = errors.New("optionscan: store error")

	// ErrFatalConfiguration names an unusable start-up configuration. No
	// function in this module returns it, and Orchestrator.Start runs no
	// configuration check before entering the scheduler loop.
	ErrFatalConfiguration = errors.New("optionscan: fatal configuration error")
)
