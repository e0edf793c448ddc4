package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Session errors
var (
	// ErrSessionNotFound is returned when no session matches the given criteria.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession is returned when inserting a session whose id already
	// exists. Practically unreachable with UUIDs but the store reports it.
	ErrDuplicateSession = errors.New("session id already exists")

	// ErrSessionExists is returned at creation when the user already has a
	// session in awaiting_deposit or active state.
	ErrSessionExists = errors.New("user already has an open session")

	// ErrInvalidTransition is returned when a status change is requested from
	// a state that does not permit it (e.g. confirming a deposit twice).
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrSessionTerminal is returned for mutations against completed, failed,
	// or cancelled sessions.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrSessionNotDue is returned by the trade executor when the fresh
	// pre-execution check finds the session no longer eligible.
	ErrSessionNotDue = errors.New("session is not due for execution")
)

// Validation errors
var (
	// ErrInvalidAddress is returned for a malformed wallet address.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrInvalidTxHash is returned for a malformed transaction hash.
	ErrInvalidTxHash = errors.New("invalid transaction hash")

	// ErrAmountOutOfRange is returned when the total amount is outside the
	// configured [min, max] bounds.
	ErrAmountOutOfRange = errors.New("total amount is out of range")

	// ErrTradesOutOfRange is returned when the trade count is outside [1, max].
	ErrTradesOutOfRange = errors.New("number of trades is out of range")

	// ErrIntervalTooShort is returned when the interval is below the minimum.
	ErrIntervalTooShort = errors.New("trade interval is below the minimum")

	// ErrSlippageOutOfRange is returned when slippage is outside [1, max] bps.
	ErrSlippageOutOfRange = errors.New("slippage tolerance is out of range")
)

// Execution errors
var (
	// ErrExecutorNotConfigured is returned when no executor key is set up;
	// no trade or withdrawal may be attempted.
	ErrExecutorNotConfigured = errors.New("executor wallet is not configured")

	// ErrRateLimited is returned when a scheduler trigger arrives before the
	// minimum inter-invocation spacing has elapsed.
	ErrRateLimited = errors.New("scheduler invoked too soon")

	// ErrInsufficientFunds is returned when the executor balance cannot cover
	// a requested withdrawal.
	ErrInsufficientFunds = errors.New("insufficient executor balance")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid credential is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller does not own the session.
	ErrForbidden = errors.New("forbidden: not the session owner")

	// ErrTokenExpired is returned when an admin JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not match.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrInvalidCredentials is returned when backoffice login fails.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// IsNotFound returns true when err (or any error in its chain) is a domain
// "not found" error. Use this instead of comparing error values directly when
// translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsValidation returns true for synchronous input-validation failures that
// map to HTTP 400.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrInvalidAddress,
		ErrInvalidTxHash,
		ErrAmountOutOfRange,
		ErrTradesOutOfRange,
		ErrIntervalTooShort,
		ErrSlippageOutOfRange,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict
// (duplicate session, impossible transition).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrSessionExists,
		ErrDuplicateSession,
		ErrInvalidTransition,
		ErrSessionTerminal,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInvalidCredentials,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
