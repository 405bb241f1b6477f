// Package storage defines the string-keyed blob store that persists
// annotation collections and graph layouts.
package storage

import "errors"

var (
	// ErrQuotaExceeded is returned by Set when the write would exceed the
	// backend's capacity. Callers may evict and retry.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	// ErrUnavailable is returned when the backend cannot be reached at all.
	ErrUnavailable = errors.New("storage: unavailable")
)

// Backend is a simple key-value blob store.
type Backend interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
	// Keys lists all stored keys in ascending order.
	Keys() ([]string, error)
}
