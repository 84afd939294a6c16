package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyNotFound is returned by KVStore.Get when the key has never been written.
var ErrKeyNotFound = errors.New("key not found")

// ErrCorruptCounter is returned when a stored counter cannot be read back as an integer.
var ErrCorruptCounter = errors.New("corrupt counter")

// KVStore is the durable key space behind the ledger: whole-value reads and writes plus
// one atomic counter primitive.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Increment atomically adds one to the counter at key. An absent counter is seeded
	// with seed first, so the first call returns seed+1.
	Increment(ctx context.Context, key string, seed int64) (int64, error)
}

// Keys builds the conceptual key names under an optional namespace prefix.
type Keys struct {
	Prefix string
}

func (k Keys) join(parts ...string) string {
	if k.Prefix != "" {
		parts = append([]string{k.Prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// Registrations is the whole-ledger snapshot key.
func (k Keys) Registrations() string { return k.join("registrations") }

// Conflicts holds registrations whose seat collided with the stored snapshot on recovery.
func (k Keys) Conflicts() string { return k.join("registration_conflicts") }

// IssuedCodes is every own referral code the ledger has handed out, deleted issuers included.
func (k Keys) IssuedCodes() string { return k.join("issued_codes") }

// SeatSequence is the counter key for an exam year.
func (k Keys) SeatSequence(year string) string { return k.join("seat_sequence", year) }

// Draft is the draft slot of one session.
func (k Keys) Draft(session string) string { return k.join("draft", session) }

// ExportJob holds the metadata of one asynchronous export.
func (k Keys) ExportJob(id string) string { return k.join("export_job", id) }

// CacheSegment separates derived cache entries from ledger state under the same prefix.
const CacheSegment = "cache"

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// Cache is the key of one derived cache entry.
func (k Keys) Cache(name string) string { return k.join(CacheSegment, name) }

// CachePattern matches every cache entry and no ledger key. Glob characters in the prefix
// are escaped so a SCAN with it stays inside the cache segment.
func (k Keys) CachePattern() string {
	return globEscaper.Replace(k.join(CacheSegment)) + ":*"
}

func wrapKV(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
