// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package immune

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
)

// GenesisHash is the PrevHash of the first entry in every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Cause says why a score changed.
type Cause string

const (
	CauseScore       Cause = "score"
	CausePropagation Cause = "propagation"
	CauseReverify    Cause = "reverify"
	CauseFeedback    Cause = "feedback"
)

// Mutation is a score change submitted to the audit log.
type Mutation struct {
	Subject string
	Old     float64
	New     float64
	Cause   Cause
}

// AuditEntry is one link of the hash chain. Entries are never rewritten.
type AuditEntry struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Old       float64   `json:"old"`
	New       float64   `json:"new"`
	Cause     Cause     `json:"cause"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// computeHash hashes PrevHash followed by the entry's fields in a fixed
// order. Floats use the shortest round-trip encoding.
func computeHash(e AuditEntry) string {
	data := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s|%s",
		e.PrevHash,
		e.Seq,
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Subject,
		strconv.FormatFloat(e.Old, 'g', -1, 64),
		strconv.FormatFloat(e.New, 'g', -1, 64),
		e.Cause,
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ChainError locates the first broken link of a chain.
type ChainError struct {
	Index  int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s at entry %d: %s", ErrAuditChainCorrupted, e.Index, e.Reason)
}

func (e *ChainError) Unwrap() error { return ErrAuditChainCorrupted }

// VerifyEntries recomputes every hash in entries.
//
// # Outputs
//
//   - error: nil for an intact (or empty) chain; a *ChainError wrapping
//     ErrAuditChainCorrupted at the first broken link otherwise.
func VerifyEntries(entries []AuditEntry) error {
	prev := GenesisHash
	for i, e := range entries {
		switch {
		case e.Seq != uint64(i):
			return &ChainError{Index: i, Reason: fmt.Sprintf("sequence %d out of order", e.Seq)}
		case e.PrevHash != prev:
			return &ChainError{Index: i, Reason: "previous hash mismatch"}
		case computeHash(e) != e.Hash:
			return &ChainError{Index: i, Reason: "entry hash mismatch"}
		}
		prev = e.Hash
	}
	return nil
}

// AuditPersister durably stores encoded entries. *store.Store implements it.
type AuditPersister interface {
	AppendAudit(ctx context.Context, seq uint64, entry []byte) error
	AuditEntries(ctx context.Context) ([][]byte, error)
}

// LoadEntries decodes every entry held by p, in sequence order.
func LoadEntries(ctx context.Context, p AuditPersister) ([]AuditEntry, error) {
	raw, err := p.AuditEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit entries: %w", err)
	}
	out := make([]AuditEntry, 0, len(raw))
	for i, b := range raw {
		var e AuditEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, &ChainError{Index: i, Reason: "undecodable entry"}
		}
		out = append(out, e)
	}
	return out, nil
}

type appendReq struct {
	ctx   context.Context
	m     Mutation
	reply chan appendResult
}

type appendResult struct {
	entry AuditEntry
	err   error
}

// AuditLogOptions configures an AuditLog.
type AuditLogOptions struct {
	// Persister receives every entry before Append returns. Nil keeps the
	// log in memory only.
	Persister AuditPersister

	// Logger for write failures. Nil uses slog.Default().
	Logger *slog.Logger

	// Now is the clock. Nil uses time.Now.
	Now func() time.Time

	// QueueSize bounds pending appends. Default: 256.
	QueueSize int
}

// AuditLog is an append-only, hash-chained log of score mutations.
//
// All appends are serialized through one writer goroutine, so the chain
// order is the order in which requests reach the queue regardless of how
// many goroutines submit them.
//
// # Thread Safety
//
// Safe for concurrent use.
type AuditLog struct {
	persister AuditPersister
	logger    *slog.Logger
	now       func() time.Time

	queue chan appendReq
	done  chan struct{}

	mu       sync.RWMutex
	entries  []AuditEntry
	lastHash string

	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
}

// NewAuditLog opens an audit log, resuming the chain held by
// opts.Persister if there is one.
//
// # Inputs
//
//   - ctx: Used for the initial load only.
//   - opts: Persister, logger and clock.
//
// # Outputs
//
//   - *AuditLog: Running log. Caller must Close it.
//   - error: Non-nil if persisted entries cannot be loaded or decoded.
func NewAuditLog(ctx context.Context, opts AuditLogOptions) (*AuditLog, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	l := &AuditLog{
		persister: opts.Persister,
		logger:    logging.OrDefault(opts.Logger),
		now:       opts.Now,
		queue:     make(chan appendReq, opts.QueueSize),
		done:      make(chan struct{}),
		lastHash:  GenesisHash,
	}

	if opts.Persister != nil {
		entries, err := LoadEntries(ctx, opts.Persister)
		if err != nil {
			return nil, err
		}
		l.entries = entries
		if n := len(entries); n > 0 {
			l.lastHash = entries[n-1].Hash
		}
	}

	go l.writer()
	return l, nil
}

func (l *AuditLog) writer() {
	defer close(l.done)
	for req := range l.queue {
		entry, err := l.write(req.ctx, req.m)
		req.reply <- appendResult{entry: entry, err: err}
	}
}

// write runs only on the writer goroutine.
func (l *AuditLog) write(ctx context.Context, m Mutation) (AuditEntry, error) {
	l.mu.RLock()
	seq := uint64(len(l.entries))
	prev := l.lastHash
	l.mu.RUnlock()

	e := AuditEntry{
		ID:        uuid.NewString(),
		Seq:       seq,
		Timestamp: l.now().UTC(),
		Subject:   m.Subject,
		Old:       clamp01(m.Old),
		New:       clamp01(m.New),
		Cause:     m.Cause,
		PrevHash:  prev,
	}
	e.Hash = computeHash(e)

	if l.persister != nil {
		b, err := json.Marshal(e)
		if err != nil {
			return AuditEntry{}, fmt.Errorf("encode audit entry: %w", err)
		}
		if err := l.persister.AppendAudit(ctx, seq, b); err != nil {
			l.logger.Error("audit append failed",
				slog.Uint64("seq", seq),
				slog.String("subject", m.Subject),
				slog.String("error", err.Error()),
			)
			return AuditEntry{}, fmt.Errorf("persist audit entry %d: %w", seq, err)
		}
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.lastHash = e.Hash
	l.mu.Unlock()
	auditEntriesTotal.Inc()
	return e, nil
}

// Append records a mutation and returns the chained entry once it has
// been persisted.
//
// # Outputs
//
//   - AuditEntry: The entry as written.
//   - error: ErrAuditLogClosed after Close, ctx.Err() if ctx ends first,
//     or the persister's error.
func (l *AuditLog) Append(ctx context.Context, m Mutation) (AuditEntry, error) {
	reply := make(chan appendResult, 1)

	l.closeMu.RLock()
	if l.closed {
		l.closeMu.RUnlock()
		return AuditEntry{}, ErrAuditLogClosed
	}
	select {
	case l.queue <- appendReq{ctx: ctx, m: m, reply: reply}:
		l.closeMu.RUnlock()
	case <-ctx.Done():
		l.closeMu.RUnlock()
		return AuditEntry{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.entry, res.err
	case <-ctx.Done():
		return AuditEntry{}, ctx.Err()
	}
}

// Entries returns a copy of the chain.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// VerifyChain recomputes every hash of the in-memory chain.
func (l *AuditLog) VerifyChain() error {
	l.mu.RLock()
	err := VerifyEntries(l.entries)
	l.mu.RUnlock()

	if err != nil {
		auditVerifyTotal.WithLabelValues("corrupted").Inc()
		var ce *ChainError
		if errors.As(err, &ce) {
			l.logger.Error("audit chain corrupted",
				slog.Int("index", ce.Index),
				slog.String("reason", ce.Reason),
			)
		}
		return err
	}
	auditVerifyTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close drains pending appends and stops the writer. Safe to call more
// than once.
func (l *AuditLog) Close() error {
	l.closeOnce.Do(func() {
		l.closeMu.Lock()
		l.closed = true
		close(l.queue)
		l.closeMu.Unlock()
		<-l.done
	})
	return nil
}
