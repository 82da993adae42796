package hybridtree

import (
	"fmt"
	"strconv"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Emission context variants.
const (
	Unigram = "unigram"
	Bigram  = "bigram"
)

// Initialization policies.
const (
	InitUniform = "uniform"
	InitRandom  = "random"
)

// Model holds the three parameter families of the hybrid-tree generative
// model: production transitions p(m'|m,k), word emissions t(w|m,ctx) and
// pattern choices r(pattern|m). Tables are string-keyed maps; a missing row
// falls back to the uniform distribution over the row's support, so every
// conditioning context always carries a valid distribution.
//
// The tables are owned by the training run: the inside-outside engine and
// the decoder only read them, and the estimator replaces them wholesale in
// each M-step.
type Model struct {
	grammar     *Grammar
	variant     string
	maxGapWords int

	trans   map[string]map[string]float64 // parent key + arg index to child key to prob
	emit    map[string]map[string]float64 // production key + context to word to prob
	pattern map[string][]float64          // production key to pattern index to prob

	vocab map[string]bool
	base  float64 // fallback emission probability for unknown words

	patternSets [][]Pattern // arity to valid patterns, precomputed
}

// NewModel returns a Model instance over the grammar with all tables empty;
// call Initialize before training.
func NewModel(grammar *Grammar, variant string, maxGapWords int) *Model {
	if variant != Unigram && variant != Bigram {
		errMsg := fmt.Sprintf("NewModel error. unknown variant (%v)", variant)
		panic(errMsg)
	}
	model := &Model{
		grammar:     grammar,
		variant:     variant,
		maxGapWords: maxGapWords,
		trans:       make(map[string]map[string]float64),
		emit:        make(map[string]map[string]float64),
		pattern:     make(map[string][]float64),
		vocab:       make(map[string]bool),
		base:        0.0,
	}
	model.buildPatternSets()
	return model
}

// GenerateModel returns a Model instance for the named variant.
func GenerateModel(variantName string, grammar *Grammar, maxGapWords int) (*Model, bool) {
	var model *Model
	ok := false
	switch variantName {
	case Unigram:
		model = NewModel(grammar, Unigram, maxGapWords)
		ok = true
	case Bigram:
		model = NewModel(grammar, Bigram, maxGapWords)
		ok = true
	}
	return model, ok
}

// Grammar returns the grammar the model is defined over.
func (model *Model) Grammar() *Grammar {
	return model.grammar
}

// Variant returns the emission context variant.
func (model *Model) Variant() string {
	return model.variant
}

func (model *Model) buildPatternSets() {
	maxArity := model.grammar.maxArity()
	model.patternSets = make([][]Pattern, maxArity+1)
	for arity := 0; arity <= maxArity; arity++ {
		model.patternSets[arity] = patternsForArity(arity, model.maxGapWords)
	}
}

func (model *Model) patterns(arity int) []Pattern {
	return model.patternSets[arity]
}

func transKey(m *Production, argIdx int) string {
	return m.key() + concat + strconv.Itoa(argIdx)
}

func emitKey(m *Production, ctx string) string {
	return m.key() + concat + ctx
}

// emitCtx returns the emission conditioning context for sentence position
// pos: empty for the unigram variant, the previous linearized word (or the
// begin marker) for the bigram variant.
func (model *Model) emitCtx(sent []string, pos int) string {
	if model.variant == Unigram {
		return ""
	}
	if pos == 0 {
		return bosWord
	}
	return sent[pos-1]
}

func (model *Model) transProb(m *Production, argIdx int, child *Production) float64 {
	if child.Category != m.Args[argIdx] {
		return 0.0
	}
	row, ok := model.trans[transKey(m, argIdx)]
	if ok {
		return row[child.key()]
	}
	support := model.grammar.ProductionsFor(m.Args[argIdx])
	if len(support) == 0 {
		return 0.0
	}
	return 1.0 / float64(len(support))
}

func (model *Model) emitProb(m *Production, ctx string, word string) float64 {
	row, ok := model.emit[emitKey(m, ctx)]
	if ok {
		p, seen := row[word]
		if seen {
			return p
		}
		return model.base
	}
	if model.vocab[word] {
		return 1.0 / float64(len(model.vocab))
	}
	return model.base
}

func (model *Model) patternProb(m *Production, rIdx int) float64 {
	row, ok := model.pattern[m.key()]
	if ok {
		return row[rIdx]
	}
	return 1.0 / float64(len(model.patterns(m.Arity())))
}

// Initialize builds the vocabulary from the training sentences and sets
// every parameter row to a valid distribution. policy InitUniform gives
// uniform rows; InitRandom draws each row from a flat Dirichlet (normalized
// Gamma variates) to break the permutation symmetry EM can stall on.
func (model *Model) Initialize(dataContainer *DataContainer, policy string, seed uint64) {
	for _, sent := range dataContainer.Sents {
		for _, word := range sent {
			model.vocab[word] = true
		}
	}
	model.base = 1.0 / float64(len(model.vocab)+1)

	gamma := distuv.Gamma{Alpha: 1.0, Beta: 1.0, Src: exprand.NewSource(seed)}
	rowInit := func(n int) []float64 {
		row := make([]float64, n)
		total := 0.0
		for i := 0; i < n; i++ {
			if policy == InitRandom {
				row[i] = gamma.Rand() + 1e-8
			} else {
				row[i] = 1.0
			}
			total += row[i]
		}
		for i := 0; i < n; i++ {
			row[i] /= total
		}
		return row
	}

	words := make([]string, 0, len(model.vocab))
	for word := range model.vocab {
		words = append(words, word)
	}

	for _, m := range model.grammar.Productions() {
		patterns := model.patterns(m.Arity())
		model.pattern[m.key()] = rowInit(len(patterns))

		for k := range m.Args {
			support := model.grammar.ProductionsFor(m.Args[k])
			if len(support) == 0 {
				continue
			}
			values := rowInit(len(support))
			row := make(map[string]float64, len(support))
			for i, child := range support {
				row[child.key()] = values[i]
			}
			model.trans[transKey(m, k)] = row
		}

		// Bigram contexts stay lazy: an unseen context falls back to the
		// uniform distribution until its first M-step.
		if model.variant == Unigram && len(words) > 0 {
			values := rowInit(len(words))
			row := make(map[string]float64, len(words))
			for i, word := range words {
				row[word] = values[i]
			}
			model.emit[emitKey(m, "")] = row
		}
	}
}

// JointProb scores one fully specified (tree, alignment) pair against the
// sentence: the product, over every node, of its pattern probability, the
// transition probability of each child and the emission probability of each
// word slot. Training never calls this; the engine marginalizes alignments
// with the inside-outside dynamic program instead.
func (model *Model) JointProb(sent []string, tree *Tree, align Alignment) (float64, error) {
	ns, ok := align[tree]
	if !ok {
		return 0.0, fmt.Errorf("alignment is missing node (%v)", tree)
	}
	if ns.Start != 0 || ns.End != len(sent) {
		return 0.0, fmt.Errorf("root span [%v,%v) does not cover the sentence", ns.Start, ns.End)
	}
	return model.jointProbNode(sent, tree, align)
}

func (model *Model) jointProbNode(sent []string, t *Tree, align Alignment) (float64, error) {
	m := t.Prod
	ns, ok := align[t]
	if !ok {
		return 0.0, fmt.Errorf("alignment is missing node (%v)", t)
	}
	r := ns.Pattern
	if r.Arity() != m.Arity() {
		return 0.0, fmt.Errorf("pattern (%v) does not fit production (%v)", r, m)
	}
	p := model.patternProb(m, patternIndex(model.patterns(m.Arity()), r))
	pos := ns.Start
	for k := 0; k <= m.Arity(); k++ {
		for s := 0; s < r.Gap(k); s++ {
			if pos >= ns.End {
				return 0.0, fmt.Errorf("word slot past span end at position %v", pos)
			}
			p *= model.emitProb(m, model.emitCtx(sent, pos), sent[pos])
			pos++
		}
		if k < m.Arity() {
			child := t.Children[k]
			cs, ok := align[child]
			if !ok {
				return 0.0, fmt.Errorf("alignment is missing node (%v)", child)
			}
			if cs.Start != pos || cs.End <= cs.Start || cs.End > ns.End {
				return 0.0, fmt.Errorf("child span [%v,%v) breaks concatenation at position %v", cs.Start, cs.End, pos)
			}
			p *= model.transProb(m, k, child.Prod)
			childP, err := model.jointProbNode(sent, child, align)
			if err != nil {
				return 0.0, err
			}
			p *= childP
			pos = cs.End
		}
	}
	if pos != ns.End {
		return 0.0, fmt.Errorf("node (%v) span [%v,%v) not exhausted at position %v", t, ns.Start, ns.End, pos)
	}
	return p, nil
}

func patternIndex(patterns []Pattern, r Pattern) int {
	for i, cand := range patterns {
		if cand.String() == r.String() {
			return i
		}
	}
	errMsg := fmt.Sprintf("patternIndex error. pattern (%v) is not in the valid set", r)
	panic(errMsg)
}
