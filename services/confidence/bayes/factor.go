// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bayes

// factor is a non-negative table over a set of discrete variables.
//
// Values are stored with the first variable as the least significant
// digit: stride[0] = 1, stride[k] = stride[k-1] * card[k-1].
type factor struct {
	vars   []int
	card   []int
	stride []int
	vals   []float64
}

func newFactor(vars, card []int) *factor {
	f := &factor{
		vars:   vars,
		card:   card,
		stride: make([]int, len(vars)),
	}
	size := 1
	for k := range vars {
		f.stride[k] = size
		size *= card[k]
	}
	f.vals = make([]float64, size)
	return f
}

// unitFactor is the multiplicative identity over vars.
func unitFactor(vars, card []int) *factor {
	f := newFactor(vars, card)
	for i := range f.vals {
		f.vals[i] = 1
	}
	return f
}

func (f *factor) pos(v int) int {
	for k, u := range f.vars {
		if u == v {
			return k
		}
	}
	return -1
}

func (f *factor) has(v int) bool { return f.pos(v) >= 0 }

// product returns a × b over the union of their scopes.
func product(a, b *factor) *factor {
	vars := append([]int(nil), a.vars...)
	card := append([]int(nil), a.card...)
	for k, v := range b.vars {
		if !a.has(v) {
			vars = append(vars, v)
			card = append(card, b.card[k])
		}
	}
	res := newFactor(vars, card)

	aStride := make([]int, len(vars))
	bStride := make([]int, len(vars))
	for l, v := range vars {
		if p := a.pos(v); p >= 0 {
			aStride[l] = a.stride[p]
		}
		if p := b.pos(v); p >= 0 {
			bStride[l] = b.stride[p]
		}
	}

	assign := make([]int, len(vars))
	j, k := 0, 0
	for i := range res.vals {
		res.vals[i] = a.vals[j] * b.vals[k]
		for l := range vars {
			assign[l]++
			if assign[l] < card[l] {
				j += aStride[l]
				k += bStride[l]
				break
			}
			assign[l] = 0
			j -= (card[l] - 1) * aStride[l]
			k -= (card[l] - 1) * bStride[l]
		}
	}
	return res
}

// sumOut marginalizes v out of the factor.
func (f *factor) sumOut(v int) *factor {
	p := f.pos(v)
	if p < 0 {
		return f
	}
	res := newFactor(without(f.vars, p), without(f.card, p))
	s := f.stride[p]
	block := s * f.card[p]
	for i, val := range f.vals {
		res.vals[i%s+(i/block)*s] += val
	}
	return res
}

// reduce clamps v to state and removes it from the scope.
func (f *factor) reduce(v, state int) *factor {
	p := f.pos(v)
	if p < 0 {
		return f
	}
	res := newFactor(without(f.vars, p), without(f.card, p))
	s := f.stride[p]
	block := s * f.card[p]
	for ri := range res.vals {
		res.vals[ri] = f.vals[ri%s+state*s+(ri/s)*block]
	}
	return res
}

// marginalizeTo sums out every variable not in keep.
func (f *factor) marginalizeTo(keep map[int]bool) *factor {
	out := f
	for _, v := range f.vars {
		if !keep[v] {
			out = out.sumOut(v)
		}
	}
	return out
}

// distribution returns the normalized single-variable table of v.
// The second result is the pre-normalization mass.
func (f *factor) distribution(v int) ([]float64, float64) {
	m := f.marginalizeTo(map[int]bool{v: true})
	total := 0.0
	for _, x := range m.vals {
		total += x
	}
	out := make([]float64, len(m.vals))
	if total <= 0 {
		return out, 0
	}
	for i, x := range m.vals {
		out[i] = clamp01(x / total)
	}
	return out, total
}

// messageTo sums the factor, weighted by incoming[j] for every position
// j != k, down to the variable at position k.
func (f *factor) messageTo(k int, incoming [][]float64) []float64 {
	out := make([]float64, f.card[k])
	assign := make([]int, len(f.vars))
	for _, val := range f.vals {
		w := val
		for j := range f.vars {
			if j != k && incoming[j] != nil {
				w *= incoming[j][assign[j]]
			}
		}
		out[assign[k]] += w
		for j := range assign {
			assign[j]++
			if assign[j] < f.card[j] {
				break
			}
			assign[j] = 0
		}
	}
	return out
}

func without(xs []int, p int) []int {
	out := make([]int, 0, len(xs)-1)
	out = append(out, xs[:p]...)
	return append(out, xs[p+1:]...)
}

func normalize(xs []float64) bool {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	if total <= 0 {
		return false
	}
	for i := range xs {
		xs[i] /= total
	}
	return true
}

func uniform(card int) []float64 {
	out := make([]float64, card)
	for i := range out {
		out[i] = 1 / float64(card)
	}
	return out
}
