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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

var transitionPrefix = []byte("transition/")

// Transition is a count of navigations from one open file to another.
type Transition struct {
	From  string
	To    string
	Count uint64
}

func transitionKey(from, to string) []byte {
	b := make([]byte, 0, len(transitionPrefix)+len(from)+1+len(to))
	b = append(b, transitionPrefix...)
	b = append(b, from...)
	b = append(b, 0)
	return append(b, to...)
}

// RecordTransition increments the from→to navigation count.
func (s *Store) RecordTransition(ctx context.Context, from, to string) error {
	if from == "" || to == "" || from == to {
		return nil
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		key := transitionKey(from, to)
		var count uint64
		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					count = binary.BigEndian.Uint64(val)
				}
				return nil
			}); err != nil {
				return err
			}
		case err != badger.ErrKeyNotFound:
			return fmt.Errorf("read transition: %w", err)
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count+1)
		return txn.Set(key, buf)
	})
}

// TransitionsFrom returns the navigations out of from, most frequent first.
// Ties are ordered by destination path.
func (s *Store) TransitionsFrom(ctx context.Context, from string) ([]Transition, error) {
	prefix := transitionKey(from, "")
	var out []Transition
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefix, func(key, val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt transition record %q", key)
			}
			to := string(bytes.TrimPrefix(key, prefix))
			out = append(out, Transition{From: from, To: to, Count: binary.BigEndian.Uint64(val)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].To < out[j].To
	})
	return out, nil
}
