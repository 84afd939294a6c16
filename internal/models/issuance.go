package models

// IssuanceKind tells callers whether a seat number is guaranteed unique.
type IssuanceKind string

const (
	// IssuanceIssued came from the persisted counter and is strictly greater than every
	// earlier issuance for the same year.
	IssuanceIssued IssuanceKind = "issued"
	// IssuanceFallback used a random suffix because the counter was unavailable.
	// It is best effort and may collide.
	IssuanceFallback IssuanceKind = "fallback"
)

// SeatIssuance is the result of asking for a new seat number.
type SeatIssuance struct {
	Kind       IssuanceKind `json:"kind"`
	SeatNumber string       `json:"seatNumber"`
	Year       string       `json:"year"`
	Sequence   int64        `json:"sequence"`
}

// Guaranteed reports whether the seat came from the monotonic counter.
func (s SeatIssuance) Guaranteed() bool {
	return s.Kind == IssuanceIssued
}

// ReferralStatus is the outcome of validating a presented referral code.
type ReferralStatus string

const (
	ReferralIdle    ReferralStatus = "idle"
	ReferralValid   ReferralStatus = "valid"
	ReferralInvalid ReferralStatus = "invalid"
)

// UnknownReferrer is shown when a presented code maps to no existing record.
const UnknownReferrer = "Unknown"

// MutationResult reports the outcome of a ledger write.
type MutationResult struct {
	// Found is false when update/delete targeted a missing seat number (a no-op).
	Found bool `json:"found"`
	// Durable is false when the snapshot could not be persisted and the change lives in memory only.
	Durable bool `json:"durable"`
}
