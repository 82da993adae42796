package hybridtree

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// NoParseError reports that no derivation covers the full sentence span.
// Retrying without a changed model or input is pointless; the error is
// returned to the caller.
type NoParseError struct {
	Sent []string
}

func (e *NoParseError) Error() string {
	return fmt.Sprintf("no parse for sentence (%v)", strings.Join(e.Sent, " "))
}

type backpointer struct {
	rIdx  int
	spans [][2]int
}

// AlignTree finds the most probable alignment of the sentence to a known MR
// tree skeleton. It is the maximization analogue of the inside recursion:
// every sum becomes an argmax with backpointers per (node, span) cell. The
// returned score is the log probability of the best derivation.
func (model *Model) AlignTree(sent []string, tree *Tree) (Alignment, float64, error) {
	if len(sent) == 0 {
		return nil, math.Inf(-1), &NoParseError{Sent: sent}
	}
	e := newPairEngine(model, sent, tree)
	n := len(sent)
	viterbi := e.newTable()
	bp := make([][]map[int]backpointer, len(e.nodes))
	for u := range e.nodes {
		bp[u] = make([]map[int]backpointer, n)
		for i := 0; i < n; i++ {
			bp[u][i] = make(map[int]backpointer)
		}
	}

	for u := range e.nodes {
		arity := e.nodes[u].tree.Prod.Arity()
		patterns := model.patterns(arity)
		for length := e.nodes[u].minYield; length <= n; length++ {
			for i := 0; i+length <= n; i++ {
				j := i + length
				best := math.Inf(-1)
				for rIdx := range patterns {
					e.enumerate(u, rIdx, i, j, viterbi, func(spans [][2]int, logLocal float64) {
						if logLocal > best {
							best = logLocal
							chosen := make([][2]int, len(spans))
							copy(chosen, spans)
							bp[u][i][j] = backpointer{rIdx: rIdx, spans: chosen}
						}
					})
				}
				viterbi[u][i][j] = best
			}
		}
	}

	root := len(e.nodes) - 1
	if math.IsInf(viterbi[root][0][n], -1) {
		return nil, math.Inf(-1), &NoParseError{Sent: sent}
	}

	align := make(Alignment, len(e.nodes))
	var backtrack func(u int, i int, j int)
	backtrack = func(u int, i int, j int) {
		node := e.nodes[u]
		b := bp[u][i][j]
		patterns := model.patterns(node.tree.Prod.Arity())
		align[node.tree] = NodeSpan{Start: i, End: j, Pattern: patterns[b.rIdx]}
		for k, c := range node.children {
			backtrack(c, b.spans[k][0], b.spans[k][1])
		}
	}
	backtrack(root, 0, n)
	return align, viterbi[root][0][n], nil
}

type decodeCell struct {
	score float64
	bp    decodeBP
}

type decodeBP struct {
	rIdx       int
	childProds []int
	spans      [][2]int
}

// Decode finds the highest-probability MR tree for the sentence by full
// search over the grammar: an arena of (candidate production, span) cells
// filled in order of span length, with backpointers recording the chosen
// pattern, split and child production per argument. rootCategory restricts
// the root production's semantic category; "" allows any. The returned
// score is the log probability of the best derivation.
func (model *Model) Decode(sent []string, rootCategory string) (*Tree, float64, error) {
	n := len(sent)
	if n == 0 {
		return nil, math.Inf(-1), &NoParseError{Sent: sent}
	}
	prods := model.grammar.Productions()
	index := make(map[string]int, len(prods))
	for pi, m := range prods {
		index[m.key()] = pi
	}

	cells := make([][][]decodeCell, len(prods))
	for pi := range prods {
		cells[pi] = make([][]decodeCell, n)
		for i := 0; i < n; i++ {
			cells[pi][i] = make([]decodeCell, n+1)
			for j := 0; j <= n; j++ {
				cells[pi][i][j].score = math.Inf(-1)
			}
		}
	}

	for length := 1; length <= n; length++ {
		for i := 0; i+length <= n; i++ {
			j := i + length
			// A no-word unary pattern keeps the child on the parent's own
			// span, so cells of equal length can feed each other; iterate
			// to closure the way CKY handles unary rules.
			for pass := 0; pass <= len(prods); pass++ {
				improved := false
				for pi, m := range prods {
					best := cells[pi][i][j].score
					patterns := model.patterns(m.Arity())
					for rIdx := range patterns {
						model.decodeEnumerate(sent, m, rIdx, i, j, cells, index, func(childProds []int, spans [][2]int, logLocal float64) {
							if logLocal > best {
								best = logLocal
								cp := make([]int, len(childProds))
								copy(cp, childProds)
								cs := make([][2]int, len(spans))
								copy(cs, spans)
								cells[pi][i][j] = decodeCell{score: best, bp: decodeBP{rIdx: rIdx, childProds: cp, spans: cs}}
								improved = true
							}
						})
					}
				}
				if !improved {
					break
				}
			}
		}
	}

	bestPi := -1
	best := math.Inf(-1)
	for pi, m := range prods {
		if rootCategory != "" && m.Category != rootCategory {
			continue
		}
		if cells[pi][0][n].score > best {
			best = cells[pi][0][n].score
			bestPi = pi
		}
	}
	if bestPi < 0 || math.IsInf(best, -1) {
		return nil, math.Inf(-1), &NoParseError{Sent: sent}
	}

	var build func(pi int, i int, j int) *Tree
	build = func(pi int, i int, j int) *Tree {
		b := cells[pi][i][j].bp
		m := prods[pi]
		children := make([]*Tree, 0, m.Arity())
		for k := 0; k < m.Arity(); k++ {
			children = append(children, build(b.childProds[k], b.spans[k][0], b.spans[k][1]))
		}
		return &Tree{Prod: m, Children: children}
	}
	return build(bestPi, 0, n), best, nil
}

// decodeEnumerate walks every split of [i,j) consistent with pattern r of a
// candidate production, additionally choosing a production for every child
// slot among those matching the argument category.
func (model *Model) decodeEnumerate(sent []string, m *Production, rIdx int, i int, j int, cells [][][]decodeCell, index map[string]int, fn func(childProds []int, spans [][2]int, logLocal float64)) {
	arity := m.Arity()
	r := model.patterns(arity)[rIdx]
	logPattern := math.Log(model.patternProb(m, rIdx))
	if math.IsInf(logPattern, -1) {
		return
	}
	spans := make([][2]int, arity)
	childProds := make([]int, arity)

	restGaps := make([]int, arity+1)
	rest := r.Gap(arity)
	restGaps[arity] = rest
	for k := arity - 1; k >= 0; k-- {
		rest += 1 + r.Gap(k) // every child covers at least one word
		restGaps[k] = rest
	}
	if j-i < restGaps[0] {
		return
	}

	var rec func(k int, pos int, acc float64)
	rec = func(k int, pos int, acc float64) {
		for s := 0; s < r.Gap(k); s++ {
			p := model.emitProb(m, model.emitCtx(sent, pos), sent[pos])
			if p <= 0.0 {
				return
			}
			acc += math.Log(p)
			pos++
		}
		if k == arity {
			if pos == j {
				fn(childProds, spans, acc)
			}
			return
		}
		support := model.grammar.ProductionsFor(m.Args[k])
		maxEnd := j - restGaps[k+1]
		for _, child := range support {
			trans := model.transProb(m, k, child)
			if trans <= 0.0 {
				continue
			}
			logTrans := math.Log(trans)
			ci := index[child.key()]
			for end := pos + 1; end <= maxEnd; end++ {
				score := cells[ci][pos][end].score
				if math.IsInf(score, -1) {
					continue
				}
				childProds[k] = ci
				spans[k] = [2]int{pos, end}
				rec(k+1, end, acc+logTrans+score)
			}
		}
	}
	rec(0, i, logPattern)
}

// DecodeSentences decodes a batch of sentences in parallel against the
// frozen model. The result slices are index-aligned with sents; a sentence
// that fails to parse carries its error and a nil tree.
func (model *Model) DecodeSentences(sents [][]string, rootCategory string, threadsNum int) ([]*Tree, []error) {
	if threadsNum <= 0 {
		panic("threadsNum should be bigger than 0")
	}
	trees := make([]*Tree, len(sents))
	errs := make([]error, len(sents))
	ch := make(chan int, threadsNum)
	wg := sync.WaitGroup{}
	bar := pb.StartNew(len(sents))
	for i := range sents {
		ch <- 1
		wg.Add(1)
		go func(i int) {
			tree, _, err := model.Decode(sents[i], rootCategory)
			trees[i] = tree
			errs[i] = err
			bar.Add(1)
			<-ch
			wg.Done()
		}(i)
	}
	wg.Wait()
	bar.Finish()
	return trees, errs
}
