package hybridtree

import (
	"fmt"
	"strings"
)

// Pattern is the schema attached to one MR node: it fixes how many
// single-word slots sit in each boundary gap around the node's children.
// A node of arity a has a+1 gaps; gap k holds gaps[k] words, so the node's
// span reads as gap 0, child 0, gap 1, child 1, ..., child a-1, gap a.
// Child order is fixed by the MR argument order; only the word counts vary.
type Pattern struct {
	arity int
	gaps  []int
}

// Arity returns the number of child sub-spans in the pattern.
func (r Pattern) Arity() int {
	return r.arity
}

// Gap returns the number of word slots in gap k.
func (r Pattern) Gap(k int) int {
	return r.gaps[k]
}

// Words returns the total number of word slots.
func (r Pattern) Words() int {
	words := 0
	for _, g := range r.gaps {
		words += g
	}
	return words
}

func (r Pattern) String() string {
	parts := make([]string, 0, 2*r.arity+1)
	for k := 0; k <= r.arity; k++ {
		for t := 0; t < r.gaps[k]; t++ {
			parts = append(parts, "w")
		}
		if k < r.arity {
			parts = append(parts, fmt.Sprintf("Y%d", k+1))
		}
	}
	return strings.Join(parts, " ")
}

// patternsForArity enumerates the finite set of patterns structurally valid
// for the arity, with at most maxGapWords word slots per gap. The order is
// deterministic (gap counts in lexicographic order). An arity-0 production
// must emit at least one word, so its empty pattern is excluded.
func patternsForArity(arity int, maxGapWords int) []Pattern {
	if maxGapWords < 1 {
		errMsg := fmt.Sprintf("patternsForArity error. maxGapWords (%v) must be at least 1", maxGapWords)
		panic(errMsg)
	}
	patterns := make([]Pattern, 0)
	gaps := make([]int, arity+1)
	for {
		if !(arity == 0 && gaps[0] == 0) {
			r := Pattern{arity: arity, gaps: make([]int, arity+1)}
			copy(r.gaps, gaps)
			patterns = append(patterns, r)
		}
		k := arity
		for k >= 0 {
			gaps[k]++
			if gaps[k] <= maxGapWords {
				break
			}
			gaps[k] = 0
			k--
		}
		if k < 0 {
			break
		}
	}
	return patterns
}

// minYield returns the shortest span any subtree rooted at a node of the
// production can cover: one word per arity-0 descendant is unavoidable.
func minYield(t *Tree) int {
	if len(t.Children) == 0 {
		return 1
	}
	total := 0
	for _, child := range t.Children {
		total += minYield(child)
	}
	return total
}
