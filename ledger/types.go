/*
Package ledger provides the core transaction engine.

PURPOSE:
  This package turns noisy inputs (parsed notifications, recurrence
  ticks) into exactly-once ledger entries. It owns the Money value type,
  the candidate/transaction data model, fingerprint deduplication, and
  the recurrence catch-up engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Direction: debit or credit, never unknown
  - NotificationEvent: one raw notification as delivered by the host
  - CandidateTransaction: a parsed-but-unconfirmed financial event
  - Transaction: an accepted, persisted ledger entry

DESIGN PRINCIPLES:
  1. Values: Money and CandidateTransaction are freely copyable values
  2. Determinism: the same input text always yields the same candidate
  3. At-most-once: acceptance goes through the Deduplicator, nowhere else
  4. Type safety: typed IDs prevent mixing transaction and rule IDs

SEE ALSO:
  - fingerprint.go: dedup key derivation
  - dedup.go: admission
  - recurrence.go: rule-driven generation
*/
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string
type RuleID string

func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }
func NewRuleID() RuleID               { return RuleID(uuid.NewString()) }

// =============================================================================
// DIRECTION
// =============================================================================

// Direction is always determined at parse time. Text whose direction
// cannot be established yields no candidate at all, never an "unknown".
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

func (d Direction) Valid() bool { return d == Debit || d == Credit }

// =============================================================================
// NOTIFICATION EVENT - Raw input unit
// =============================================================================

// NotificationEvent is one raw notification as delivered by the host's
// observation facility. It is transient: consumed once by the parser.
type NotificationEvent struct {
	SourceApp string    // package/bundle identifier of the posting app
	RawText   string    // full notification text (title + body)
	ArrivedAt time.Time // device clock at delivery
	EventKey  string    // opaque platform event key, not used for identity
}

// =============================================================================
// CANDIDATE TRANSACTION - Parsed, unconfirmed financial event
// =============================================================================

// CandidateTransaction is parser or recurrence output awaiting
// deduplication and persistence.
//
// INVARIANTS:
//   - Amount magnitude > 0
//   - Direction is Debit or Credit
type CandidateTransaction struct {
	Amount       Money
	Direction    Direction
	Counterparty string // free text, may be empty
	OccurredAt   time.Time
	SourceApp    string
	RawTextHash  string
	RecurrenceID RuleID // set only for recurrence-generated candidates
}

// Validate reports whether the candidate satisfies its invariants.
func (c CandidateTransaction) Validate() error {
	if c.Amount.IsZero() || c.Amount.IsNegative() {
		return ErrInvalidCandidate
	}
	if !c.Direction.Valid() {
		return ErrInvalidCandidate
	}
	if c.OccurredAt.IsZero() {
		return ErrInvalidCandidate
	}
	return nil
}

// Signed returns the amount with debit as negative, credit as positive.
func (c CandidateTransaction) Signed() Money {
	if c.Direction == Debit {
		return c.Amount.Neg()
	}
	return c.Amount
}

// =============================================================================
// TRANSACTION - Accepted ledger entry
// =============================================================================

// Transaction is a CandidateTransaction that passed deduplication and
// was persisted by the Sink. Immutable once written.
type Transaction struct {
	ID          TransactionID
	Candidate   CandidateTransaction
	Fingerprint Fingerprint
	CreatedAt   time.Time
}

// HashRawText derives the stable raw-text hash carried on candidates.
func HashRawText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
