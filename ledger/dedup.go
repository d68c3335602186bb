/*
dedup.go - At-most-once admission of candidate transactions

PURPOSE:
  Admit is the single gate between a candidate and the ledger. It
  computes the candidate's fingerprint and performs check-and-record as
  one atomic Sink transaction, so two near-simultaneous deliveries of
  the same event cannot both be accepted - even across overlapping
  process lifetimes.

OUTCOMES:
  Accepted:          fingerprint recorded and transaction persisted
  DuplicateRejected: fingerprint already retained; no side effect

EVICTION:
  Fingerprints older than the retention horizon are evicted
  opportunistically after each admit. Eviction is best-effort: a failed
  or late eviction only keeps dedup state around slightly longer.
*/
package ledger

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// ADMISSION OUTCOME
// =============================================================================

type Outcome string

const (
	Accepted          Outcome = "accepted"
	DuplicateRejected Outcome = "duplicate_rejected"
)

// AdmitResult reports what happened to an admitted candidate.
type AdmitResult struct {
	Outcome       Outcome
	TransactionID TransactionID // set only when Accepted
	Fingerprint   Fingerprint
}

// =============================================================================
// DEDUPLICATOR
// =============================================================================

// Deduplicator enforces at-most-once persistence of candidates.
type Deduplicator struct {
	Sink        TxSink
	BucketWidth time.Duration
	Retention   time.Duration
	Clock       Clock
}

// NewDeduplicator creates a Deduplicator with default policy parameters.
func NewDeduplicator(sink TxSink) *Deduplicator {
	return &Deduplicator{
		Sink:        sink,
		BucketWidth: DefaultBucketWidth,
		Retention:   DefaultRetention,
		Clock:       SystemClock{},
	}
}

// Admit validates the candidate, then atomically checks and records its
// fingerprint and persists the transaction. A duplicate is not an
// error: it returns Outcome DuplicateRejected and a nil error.
func (d *Deduplicator) Admit(ctx context.Context, c CandidateTransaction) (AdmitResult, error) {
	if err := c.Validate(); err != nil {
		return AdmitResult{}, err
	}

	fp := ComputeFingerprint(c, d.BucketWidth)
	now := d.Clock.Now()
	result := AdmitResult{Outcome: DuplicateRejected, Fingerprint: fp}

	err := d.Sink.WithTx(ctx, func(s Sink) error {
		seen, err := s.SeenFingerprint(ctx, fp)
		if err != nil {
			return &PersistenceError{Op: "seen_fingerprint", Err: err}
		}
		if seen {
			// Nothing written; commit of an empty transaction is fine.
			return nil
		}

		if err := s.RecordFingerprint(ctx, fp, now); err != nil {
			return err
		}

		tx := Transaction{
			ID:          NewTransactionID(),
			Candidate:   c,
			Fingerprint: fp,
			CreatedAt:   now,
		}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}

		result.Outcome = Accepted
		result.TransactionID = tx.ID
		return nil
	})

	if err != nil {
		// A concurrent admit can win the race between our check and our
		// record; the unique constraint converts that into a duplicate.
		if IsDuplicate(err) {
			return AdmitResult{Outcome: DuplicateRejected, Fingerprint: fp}, nil
		}
		return AdmitResult{}, err
	}

	d.evict(ctx, now)
	return result, nil
}

// evict drops fingerprints past the retention horizon. Best-effort.
func (d *Deduplicator) evict(ctx context.Context, now time.Time) {
	retention := d.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	if n, err := d.Sink.EvictFingerprintsBefore(ctx, now.Add(-retention)); err != nil {
		log.Printf("[Dedup] fingerprint eviction failed: %v", err)
	} else if n > 0 {
		log.Printf("[Dedup] evicted %d expired fingerprints", n)
	}
}
