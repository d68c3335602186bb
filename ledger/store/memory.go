// Package store provides an in-memory Sink implementation (tests/dev).
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// MEMORY SINK - In-memory implementation with fault injection
// =============================================================================

// Memory implements ledger.TxSink in memory. Safe for concurrent use.
// FailInserts/FailUpserts make the next N writes fail with InjectedErr,
// which is how tests exercise persist-then-advance retry semantics.
type Memory struct {
	mu           sync.Mutex
	transactions []ledger.Transaction
	fingerprints map[ledger.Fingerprint]time.Time
	rules        map[ledger.RuleID]ledger.RecurrenceRule
	state        ledger.ScheduleState

	FailInserts int
	FailUpserts int
	InjectedErr error
}

func NewMemory() *Memory {
	return &Memory{
		fingerprints: make(map[ledger.Fingerprint]time.Time),
		rules:        make(map[ledger.RuleID]ledger.RecurrenceRule),
	}
}

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(tx)
}

func (m *Memory) insertLocked(tx ledger.Transaction) error {
	if m.FailInserts > 0 {
		m.FailInserts--
		return m.injected()
	}
	for _, existing := range m.transactions {
		if existing.Fingerprint == tx.Fingerprint {
			return ledger.ErrDuplicateFingerprint
		}
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, limit int) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ledger.Transaction, len(m.transactions))
	copy(out, m.transactions)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SeenFingerprint(_ context.Context, fp ledger.Fingerprint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.fingerprints[fp]
	return ok, nil
}

func (m *Memory) RecordFingerprint(_ context.Context, fp ledger.Fingerprint, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(fp, seenAt)
}

func (m *Memory) recordLocked(fp ledger.Fingerprint, seenAt time.Time) error {
	if _, ok := m.fingerprints[fp]; ok {
		return ledger.ErrDuplicateFingerprint
	}
	m.fingerprints[fp] = seenAt
	return nil
}

func (m *Memory) EvictFingerprintsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for fp, seenAt := range m.fingerprints {
		if seenAt.Before(cutoff) {
			delete(m.fingerprints, fp)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListRecurrenceRules(_ context.Context) ([]ledger.RecurrenceRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ledger.RecurrenceRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetRecurrenceRule(_ context.Context, id ledger.RuleID) (*ledger.RecurrenceRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ledger.ErrRuleNotFound
	}
	return &r, nil
}

func (m *Memory) UpsertRecurrenceRule(_ context.Context, rule ledger.RecurrenceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(rule)
}

func (m *Memory) upsertLocked(rule ledger.RecurrenceRule) error {
	if m.FailUpserts > 0 {
		m.FailUpserts--
		return m.injected()
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *Memory) DeleteRecurrenceRule(_ context.Context, id ledger.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *Memory) LoadScheduleState(_ context.Context) (ledger.ScheduleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *Memory) SaveScheduleState(_ context.Context, st ledger.ScheduleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	return nil
}

func (m *Memory) injected() error {
	if m.InjectedErr != nil {
		return m.InjectedErr
	}
	return errInjected
}

var errInjected = errors.New("injected store failure")

// =============================================================================
// TRANSACTIONS - Snapshot and rollback
// =============================================================================

// WithTx executes fn against a view of the store, restoring the
// pre-transaction snapshot if fn fails. The store lock is held for the
// whole transaction, which matches the single-writer discipline the
// SQLite sink gets from its database transaction.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Sink) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{parent: m}
	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions []ledger.Transaction
	fingerprints map[ledger.Fingerprint]time.Time
	rules        map[ledger.RuleID]ledger.RecurrenceRule
	state        ledger.ScheduleState
}

func (m *Memory) snapshot() memorySnapshot {
	txs := make([]ledger.Transaction, len(m.transactions))
	copy(txs, m.transactions)
	fps := make(map[ledger.Fingerprint]time.Time, len(m.fingerprints))
	for k, v := range m.fingerprints {
		fps[k] = v
	}
	rules := make(map[ledger.RuleID]ledger.RecurrenceRule, len(m.rules))
	for k, v := range m.rules {
		rules[k] = v
	}
	return memorySnapshot{transactions: txs, fingerprints: fps, rules: rules, state: m.state}
}

func (m *Memory) restore(s memorySnapshot) {
	m.transactions = s.transactions
	m.fingerprints = s.fingerprints
	m.rules = s.rules
	m.state = s.state
}

// txView runs Sink operations against the already-locked parent.
type txView struct {
	parent *Memory
}

func (v *txView) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	return v.parent.insertLocked(tx)
}

func (v *txView) ListTransactions(_ context.Context, limit int) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, len(v.parent.transactions))
	copy(out, v.parent.transactions)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *txView) SeenFingerprint(_ context.Context, fp ledger.Fingerprint) (bool, error) {
	_, ok := v.parent.fingerprints[fp]
	return ok, nil
}

func (v *txView) RecordFingerprint(_ context.Context, fp ledger.Fingerprint, seenAt time.Time) error {
	return v.parent.recordLocked(fp, seenAt)
}

func (v *txView) EvictFingerprintsBefore(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	for fp, seenAt := range v.parent.fingerprints {
		if seenAt.Before(cutoff) {
			delete(v.parent.fingerprints, fp)
			n++
		}
	}
	return n, nil
}

func (v *txView) ListRecurrenceRules(_ context.Context) ([]ledger.RecurrenceRule, error) {
	out := make([]ledger.RecurrenceRule, 0, len(v.parent.rules))
	for _, r := range v.parent.rules {
		out = append(out, r)
	}
	return out, nil
}

func (v *txView) GetRecurrenceRule(_ context.Context, id ledger.RuleID) (*ledger.RecurrenceRule, error) {
	r, ok := v.parent.rules[id]
	if !ok {
		return nil, ledger.ErrRuleNotFound
	}
	return &r, nil
}

func (v *txView) UpsertRecurrenceRule(_ context.Context, rule ledger.RecurrenceRule) error {
	return v.parent.upsertLocked(rule)
}

func (v *txView) DeleteRecurrenceRule(_ context.Context, id ledger.RuleID) error {
	delete(v.parent.rules, id)
	return nil
}

func (v *txView) LoadScheduleState(_ context.Context) (ledger.ScheduleState, error) {
	return v.parent.state, nil
}

func (v *txView) SaveScheduleState(_ context.Context, st ledger.ScheduleState) error {
	v.parent.state = st
	return nil
}
