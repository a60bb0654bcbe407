// Package idempotency stores the outcome of requests sent with an
// Idempotency-Key so retried uploads replay the first response instead of
// committing the photo twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status constants for idempotency records.
//
// StatusProcessing marks a key whose first request is still running;
// StatusCompleted holds a stable response that is replayed to retries.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when attempting to reserve a key that is already taken.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is invalid.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds maximum length.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long completed responses are kept.
const DefaultExpiry = 24 * time.Hour

// Record is a reserved or completed idempotency key.
type Record struct {
	Key                string    `json:"key"`
	UserID             string    `json:"user_id"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	Status             string    `json:"status"`
	ResponseHash       string    `json:"response_hash,omitempty"`
	ResponseBody       string    `json:"response_body,omitempty"`
	ResponseStatusCode int       `json:"response_status_code,omitempty"`
}

// ValidateKey checks if an idempotency key is valid.
// Returns ErrInvalidKey if the key is empty or contains characters outside
// printable ASCII, and ErrKeyTooLong if it exceeds MaxKeyLength.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

// ScopedKey namespaces a client key by user so two users cannot collide.
func ScopedKey(userID, key string) string {
	return userID + ":" + key
}

// ComputeResponseHash computes a SHA256 hash of the response body.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Repository defines methods for idempotency key persistence. Keys passed to
// it are already scoped with ScopedKey.
type Repository interface {
	// Get retrieves a record. Returns ErrKeyNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (*Record, error)

	// Reserve stores a processing record. Returns ErrKeyExists if the key is taken.
	Reserve(ctx context.Context, key string, record *Record) error

	// Complete replaces the record for key with the finished response.
	Complete(ctx context.Context, key string, record *Record) error

	// Release drops a reservation so the client can retry.
	Release(ctx context.Context, key string) error

	// DeleteOlderThan removes records older than the given duration.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
