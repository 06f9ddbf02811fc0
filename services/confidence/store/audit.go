// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var auditPrefix = []byte("audit/")

func auditKey(seq uint64) []byte {
	b := make([]byte, len(auditPrefix)+8)
	copy(b, auditPrefix)
	binary.BigEndian.PutUint64(b[len(auditPrefix):], seq)
	return b
}

// AppendAudit persists one encoded audit entry at seq. Existing entries are
// never overwritten.
func (s *Store) AppendAudit(ctx context.Context, seq uint64, entry []byte) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := auditKey(seq)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("audit entry %d already exists", seq)
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check audit entry %d: %w", seq, err)
		}
		return txn.Set(key, entry)
	})
}

// AuditEntries returns every persisted audit entry in sequence order.
func (s *Store) AuditEntries(ctx context.Context) ([][]byte, error) {
	var out [][]byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, auditPrefix, func(_, val []byte) error {
			out = append(out, val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
