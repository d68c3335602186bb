/*
fingerprint.go - Stable event identity for deduplication

PURPOSE:
  Two deliveries of the same underlying financial event must map to the
  same key, while genuinely distinct same-amount transactions must not.
  The fingerprint normalizes amount, direction, counterparty and source
  app, and coarsens the timestamp into a bucket so redelivery jitter
  (seconds apart) collapses while separate purchases (minutes apart)
  stay distinct.

TUNING:
  BucketWidth and Retention are policy parameters. Defaults are chosen
  conservatively: a 60s bucket absorbs observed redelivery latencies,
  and a 48h retention horizon comfortably outlives any redelivery delay.
  Late eviction is safe; early eviction risks a duplicate entry.
*/
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Defaults for the dedup policy parameters.
const (
	DefaultBucketWidth = 60 * time.Second
	DefaultRetention   = 48 * time.Hour
)

// Fingerprint is the derived dedup key for a candidate transaction.
type Fingerprint string

// ComputeFingerprint derives the stable identity of a candidate.
// Candidates whose occurred-at timestamps fall into the same bucket and
// whose normalized fields match share a fingerprint.
func ComputeFingerprint(c CandidateTransaction, bucket time.Duration) Fingerprint {
	if bucket <= 0 {
		bucket = DefaultBucketWidth
	}

	bucketStart := c.OccurredAt.UTC().Truncate(bucket)

	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(c.Amount.MinorUnits(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(c.Direction))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeCounterparty(c.Counterparty)))
	h.Write([]byte{0})
	h.Write([]byte(c.SourceApp))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(bucketStart.Unix(), 10)))

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeCounterparty folds case and collapses whitespace so cosmetic
// differences between redeliveries ("Coffee  Shop " vs "coffee shop")
// do not defeat deduplication.
func NormalizeCounterparty(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
