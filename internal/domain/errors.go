package domain

import (
	"errors"
	"fmt"
)

// Adapter errors - 遠端列舉層錯誤
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNetworkError indicates a network-related failure
	ErrNetworkError = errors.New("network error")

	// ErrTimeout indicates operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimited indicates the remote throttled the request
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Enumeration errors - 列舉與同步核心錯誤
var (
	// ErrTransport indicates a remote listing call failed.
	// Recovered by falling back to cached data.
	ErrTransport = errors.New("transport error")

	// ErrScopeResolution indicates an item identifier could not be mapped to a path
	ErrScopeResolution = errors.New("scope resolution failed")

	// ErrStore indicates a metadata store read or write failed. Fatal.
	ErrStore = errors.New("metadata store error")

	// ErrStaleCursor indicates a page cursor that cannot be mapped to a page number
	ErrStaleCursor = errors.New("stale page cursor")

	// ErrInvalidAnchor indicates a sync anchor token that cannot be parsed
	ErrInvalidAnchor = errors.New("invalid sync anchor")
)

// Account errors - 帳號生命週期錯誤
var (
	// ErrAccountNotFound indicates the account is not registered
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists indicates the account is already registered
	ErrAccountExists = errors.New("account already registered")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")

	// ErrTransportNotFound indicates an unknown transport type
	ErrTransportNotFound = errors.New("transport not found")
)

// TransportError wraps a lister failure so callers can match ErrTransport.
// Already wrapped errors are returned unchanged.
func TransportError(op string, err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// StoreError wraps a store failure so callers can match ErrStore.
func StoreError(op string, err error) error {
	if err == nil || errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
