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
	"math"

	"github.com/dgraph-io/badger/v4"
)

var priorPrefix = []byte("prior/")

// Prior is a stored EMA prior and the number of updates folded into it.
type Prior struct {
	Value   float64
	Updates uint64
}

// PriorKey identifies one EMA prior.
type PriorKey struct {
	Developer string
	Module    string
}

func (k PriorKey) bytes() []byte {
	b := make([]byte, 0, len(priorPrefix)+len(k.Developer)+1+len(k.Module))
	b = append(b, priorPrefix...)
	b = append(b, k.Developer...)
	b = append(b, 0)
	return append(b, k.Module...)
}

func parsePriorKey(key []byte) (PriorKey, bool) {
	rest := bytes.TrimPrefix(key, priorPrefix)
	dev, mod, ok := bytes.Cut(rest, []byte{0})
	if !ok {
		return PriorKey{}, false
	}
	return PriorKey{Developer: string(dev), Module: string(mod)}, true
}

// SavePriors writes every prior in one transaction, replacing stored values.
func (s *Store) SavePriors(ctx context.Context, priors map[PriorKey]Prior) error {
	if len(priors) == 0 {
		return nil
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for k, v := range priors {
			buf := make([]byte, 16)
			binary.BigEndian.PutUint64(buf, math.Float64bits(v.Value))
			binary.BigEndian.PutUint64(buf[8:], v.Updates)
			if err := txn.Set(k.bytes(), buf); err != nil {
				return fmt.Errorf("save prior %s/%s: %w", k.Developer, k.Module, err)
			}
		}
		return nil
	})
}

// LoadPriors returns every stored prior.
func (s *Store) LoadPriors(ctx context.Context) (map[PriorKey]Prior, error) {
	out := make(map[PriorKey]Prior)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, priorPrefix, func(key, val []byte) error {
			k, ok := parsePriorKey(key)
			if !ok || len(val) != 16 {
				return fmt.Errorf("corrupt prior record %q", key)
			}
			out[k] = Prior{
				Value:   math.Float64frombits(binary.BigEndian.Uint64(val)),
				Updates: binary.BigEndian.Uint64(val[8:]),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePriors removes the priors of one developer, or of everyone when
// developer is empty. Returns the number of priors removed.
func (s *Store) DeletePriors(ctx context.Context, developer string) (int, error) {
	prefix := priorPrefix
	if developer != "" {
		prefix = append(append([]byte{}, priorPrefix...), developer...)
		prefix = append(prefix, 0)
	}
	return s.deletePrefix(ctx, prefix)
}
