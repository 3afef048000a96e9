// Copyright (c) 2015, Arbo von Monkiewitsch All rights reserved.
// Use of this source code is governed by a BSD-style
// license.

// Package levenshtein computes edit distances between node literals and
// rendered cell texts. A Context reuses its buffers, so repeated calls on
// one goroutine do not allocate beyond the rune conversion.
package levenshtein

// myersLimit is the longest first operand handled by the bit-vector path.
const myersLimit = 64

// Context holds scratch space for Distance. It is not safe for concurrent use.
type Context struct {
	column []int
	// peq is all zero between calls.
	peq [256]uint64
}

func (ctx *Context) scratch(n int) []int {
	if cap(ctx.column) < n {
		ctx.column = make([]int, n)
	}

	return ctx.column[:n]
}

// Distance returns the minimum number of single-rune insertions, deletions,
// and substitutions that turn a into b.
func (ctx *Context) Distance(a, b string) int {
	if a == b {
		return 0
	}

	s1 := []rune(a)
	s2 := []rune(b)

	switch {
	case len(s1) == 0:
		return len(s2)
	case len(s2) == 0:
		return len(s1)
	case len(s1) <= myersLimit:
		return ctx.distanceMyers64(s1, s2)
	case len(s2) <= myersLimit:
		return ctx.distanceMyers64(s2, s1)
	default:
		return ctx.distanceColumn(s1, s2)
	}
}

// distanceColumn is the single-column Wagner-Fischer recurrence.
func (ctx *Context) distanceColumn(s1, s2 []rune) int {
	column := ctx.scratch(len(s1) + 1)
	for i := range column {
		column[i] = i
	}

	for col, r2 := range s2 {
		diag := col
		column[0] = col + 1

		for row, r1 := range s1 {
			above := column[row+1]

			cost := 1
			if r1 == r2 {
				cost = 0
			}

			column[row+1] = min(above+1, column[row]+1, diag+cost)
			diag = above
		}
	}

	return column[len(s1)]
}

// Distance is a convenience wrapper that uses a throwaway Context.
func Distance(a, b string) int {
	var ctx Context

	return ctx.Distance(a, b)
}
