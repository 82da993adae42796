package hybridtree

import (
	"fmt"
	"math"
	"strings"
)

// DegenerateModelError reports a training pair with zero total likelihood
// under the current parameters: no alignment of the tree to the sentence
// exists. The pair is skipped for the iteration, not fatal to the run.
type DegenerateModelError struct {
	Sent []string
	Tree *Tree
}

func (e *DegenerateModelError) Error() string {
	return fmt.Sprintf("degenerate pair: no alignment of tree (%v) to sentence (%v)", e.Tree, strings.Join(e.Sent, " "))
}

// Counts accumulates expected sufficient statistics for every parameter
// cell, keyed exactly like the model tables.
type Counts struct {
	Trans   map[string]map[string]float64
	Emit    map[string]map[string]float64
	Pattern map[string][]float64
}

// NewCounts returns zeroed accumulators.
func NewCounts() *Counts {
	counts := &Counts{
		Trans:   make(map[string]map[string]float64),
		Emit:    make(map[string]map[string]float64),
		Pattern: make(map[string][]float64),
	}
	return counts
}

func (counts *Counts) addTrans(rowKey string, childKey string, v float64) {
	row, ok := counts.Trans[rowKey]
	if !ok {
		row = make(map[string]float64)
		counts.Trans[rowKey] = row
	}
	row[childKey] += v
}

func (counts *Counts) addEmit(rowKey string, word string, v float64) {
	row, ok := counts.Emit[rowKey]
	if !ok {
		row = make(map[string]float64)
		counts.Emit[rowKey] = row
	}
	row[word] += v
}

func (counts *Counts) addPattern(prodKey string, rIdx int, size int, v float64) {
	row, ok := counts.Pattern[prodKey]
	if !ok {
		row = make([]float64, size)
		counts.Pattern[prodKey] = row
	}
	row[rIdx] += v
}

// Merge adds the other accumulator into counts.
func (counts *Counts) Merge(o *Counts) {
	for rowKey, row := range o.Trans {
		for childKey, v := range row {
			counts.addTrans(rowKey, childKey, v)
		}
	}
	for rowKey, row := range o.Emit {
		for word, v := range row {
			counts.addEmit(rowKey, word, v)
		}
	}
	for prodKey, row := range o.Pattern {
		for rIdx, v := range row {
			counts.addPattern(prodKey, rIdx, len(row), v)
		}
	}
}

// logsumexp of a score slice; empty or all -Inf input stays -Inf.
func logsumexp(scores []float64) float64 {
	maxScore := math.Inf(-1)
	for _, score := range scores {
		if score > maxScore {
			maxScore = score
		}
	}
	if math.IsInf(maxScore, -1) {
		return math.Inf(-1)
	}
	total := 0.0
	for _, score := range scores {
		total += math.Exp(score - maxScore)
	}
	return math.Log(total) + maxScore
}

func logAdd(a float64, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// nodeInfo is one tree node flattened into the post-order arena.
type nodeInfo struct {
	tree     *Tree
	children []int
	minYield int
}

// pairEngine runs the span dynamic programs for one (sentence, tree) pair
// against a frozen parameter snapshot. Tables are arenas indexed by
// (node, i, j) with integer span bounds; inside is computed bottom-up over
// the post-order, outside and expected counts top-down against the fully
// computed inside table.
type pairEngine struct {
	model   *Model
	sent    []string
	nodes   []nodeInfo // post-order, root last
	inside  [][][]float64
	outside [][][]float64
}

func newPairEngine(model *Model, sent []string, tree *Tree) *pairEngine {
	e := &pairEngine{model: model, sent: sent}
	e.flatten(tree)
	return e
}

func (e *pairEngine) flatten(t *Tree) int {
	children := make([]int, 0, len(t.Children))
	yield := 0
	for _, child := range t.Children {
		c := e.flatten(child)
		children = append(children, c)
		yield += e.nodes[c].minYield
	}
	if len(t.Children) == 0 {
		yield = 1
	}
	e.nodes = append(e.nodes, nodeInfo{tree: t, children: children, minYield: yield})
	return len(e.nodes) - 1
}

func (e *pairEngine) newTable() [][][]float64 {
	n := len(e.sent)
	table := make([][][]float64, len(e.nodes))
	for u := range e.nodes {
		table[u] = make([][]float64, n)
		for i := 0; i < n; i++ {
			table[u][i] = make([]float64, n+1)
			for j := 0; j <= n; j++ {
				table[u][i][j] = math.Inf(-1)
			}
		}
	}
	return table
}

// enumerate walks every split of [i,j) consistent with pattern rIdx of node
// u: the pattern fixes which positions are word slots, the children's span
// lengths are unconstrained and enumerated. childTable scores each child's
// sub-span (the inside table when summing, the Viterbi table when
// maximizing). fn receives the chosen child spans and the local log factor:
// pattern probability, word emissions and, per child, the transition
// probability times the child's table score.
func (e *pairEngine) enumerate(u int, rIdx int, i int, j int, childTable [][][]float64, fn func(spans [][2]int, logLocal float64)) {
	node := e.nodes[u]
	m := node.tree.Prod
	arity := m.Arity()
	r := e.model.patterns(arity)[rIdx]

	logPattern := math.Log(e.model.patternProb(m, rIdx))
	if math.IsInf(logPattern, -1) {
		return
	}
	spans := make([][2]int, arity)

	// restYield[k] = words and minimal child material still owed after
	// child k-1 is placed.
	restYield := make([]int, arity+1)
	rest := r.Gap(arity)
	restYield[arity] = rest
	for k := arity - 1; k >= 0; k-- {
		rest += e.nodes[node.children[k]].minYield + r.Gap(k)
		restYield[k] = rest
	}
	if j-i < restYield[0] {
		return
	}

	var rec func(k int, pos int, acc float64)
	rec = func(k int, pos int, acc float64) {
		for s := 0; s < r.Gap(k); s++ {
			word := e.sent[pos]
			p := e.model.emitProb(m, e.model.emitCtx(e.sent, pos), word)
			if p <= 0.0 {
				return
			}
			acc += math.Log(p)
			pos++
		}
		if k == arity {
			if pos == j {
				fn(spans, acc)
			}
			return
		}
		c := node.children[k]
		child := e.nodes[c]
		trans := e.model.transProb(m, k, child.tree.Prod)
		if trans <= 0.0 {
			return
		}
		logTrans := math.Log(trans)
		maxEnd := j - restYield[k+1]
		for end := pos + child.minYield; end <= maxEnd; end++ {
			score := childTable[c][pos][end]
			if math.IsInf(score, -1) {
				continue
			}
			spans[k] = [2]int{pos, end}
			rec(k+1, end, acc+logTrans+score)
		}
	}
	rec(0, i, logPattern)
}

// insidePass fills the inside table bottom-up: inside[u][i][j] is the log
// probability that the subtree rooted at u generates exactly the words in
// [i,j), summed over patterns and splits.
func (e *pairEngine) insidePass() {
	n := len(e.sent)
	e.inside = e.newTable()
	for u := range e.nodes {
		arity := e.nodes[u].tree.Prod.Arity()
		patterns := e.model.patterns(arity)
		for length := e.nodes[u].minYield; length <= n; length++ {
			for i := 0; i+length <= n; i++ {
				j := i + length
				cell := math.Inf(-1)
				for rIdx := range patterns {
					e.enumerate(u, rIdx, i, j, e.inside, func(spans [][2]int, logLocal float64) {
						cell = logAdd(cell, logLocal)
					})
				}
				e.inside[u][i][j] = cell
			}
		}
	}
}

// outsidePass distributes outside probability top-down and accumulates the
// expected counts in the same sweep: every (pattern, split) configuration
// of a (node, span) cell has posterior weight
// exp(outside + local factor - logZ), which feeds the pattern cell, each
// word-slot emission cell, each transition cell, and the children's outside
// entries (with the child's own inside score divided back out).
func (e *pairEngine) outsidePass(logZ float64, counts *Counts) error {
	n := len(e.sent)
	e.outside = e.newTable()
	root := len(e.nodes) - 1
	e.outside[root][0][n] = 0.0

	var numErr error
	for u := root; u >= 0; u-- {
		node := e.nodes[u]
		m := node.tree.Prod
		arity := m.Arity()
		patterns := e.model.patterns(arity)
		prodKey := m.key()
		for i := 0; i < n; i++ {
			for j := i + 1; j <= n; j++ {
				out := e.outside[u][i][j]
				if math.IsInf(out, -1) {
					continue
				}
				for rIdx := range patterns {
					r := patterns[rIdx]
					e.enumerate(u, rIdx, i, j, e.inside, func(spans [][2]int, logLocal float64) {
						total := out + logLocal
						w := math.Exp(total - logZ)
						if math.IsNaN(w) || math.IsInf(w, 0) {
							numErr = fmt.Errorf("non-finite posterior weight at node (%v) span [%v,%v)", m, i, j)
							return
						}
						if w == 0.0 {
							return
						}
						counts.addPattern(prodKey, rIdx, len(patterns), w)
						pos := i
						for k := 0; k <= arity; k++ {
							for s := 0; s < r.Gap(k); s++ {
								counts.addEmit(emitKey(m, e.model.emitCtx(e.sent, pos)), e.sent[pos], w)
								pos++
							}
							if k < arity {
								c := node.children[k]
								childProd := e.nodes[c].tree.Prod
								counts.addTrans(transKey(m, k), childProd.key(), w)
								cs := spans[k]
								childOut := total - e.inside[c][cs[0]][cs[1]]
								e.outside[c][cs[0]][cs[1]] = logAdd(e.outside[c][cs[0]][cs[1]], childOut)
								pos = cs[1]
							}
						}
					})
				}
			}
		}
	}
	return numErr
}

// ExpectedCounts runs the inside-outside dynamic program for one pair and
// returns the expected counts for every parameter together with the pair's
// log-likelihood. A pair with zero likelihood yields DegenerateModelError;
// any non-finite intermediate aborts the pair so no corrupted counts can
// reach a global accumulator.
func (model *Model) ExpectedCounts(sent []string, tree *Tree) (*Counts, float64, error) {
	if len(sent) == 0 {
		return nil, math.Inf(-1), &DegenerateModelError{Sent: sent, Tree: tree}
	}
	e := newPairEngine(model, sent, tree)
	e.insidePass()
	logZ := e.inside[len(e.nodes)-1][0][len(sent)]
	if math.IsInf(logZ, -1) {
		return nil, math.Inf(-1), &DegenerateModelError{Sent: sent, Tree: tree}
	}
	if math.IsNaN(logZ) || math.IsInf(logZ, 1) {
		return nil, logZ, fmt.Errorf("non-finite likelihood (%v) for sentence (%v)", logZ, strings.Join(sent, " "))
	}
	counts := NewCounts()
	if err := e.outsidePass(logZ, counts); err != nil {
		return nil, logZ, err
	}
	return counts, logZ, nil
}
