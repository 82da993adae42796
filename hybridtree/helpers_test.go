package hybridtree

import (
	"math"
	"testing"
)

// numbersGrammar builds the toy arithmetic grammar used across the tests:
// QUERY:answer(NUM), NUM:numvalue, NUM:plus(NUM,NUM).
func numbersGrammar(t *testing.T) (*Grammar, *Production, *Production, *Production) {
	grammar := NewGrammar()
	answer := &Production{Category: "QUERY", Function: "answer", Args: []string{"NUM"}}
	numvalue := &Production{Category: "NUM", Function: "numvalue"}
	plus := &Production{Category: "NUM", Function: "plus", Args: []string{"NUM", "NUM"}}
	for _, m := range []*Production{answer, numvalue, plus} {
		if err := grammar.Register(m); err != nil {
			t.Fatal("Register failed", err)
		}
	}
	return grammar, answer, numvalue, plus
}

// findPattern returns the index of the pattern with the given gap counts.
func findPattern(model *Model, arity int, gaps ...int) int {
	patterns := model.patterns(arity)
	for rIdx, r := range patterns {
		same := true
		for k := 0; k <= arity; k++ {
			if r.Gap(k) != gaps[k] {
				same = false
				break
			}
		}
		if same {
			return rIdx
		}
	}
	return -1
}

// deterministicModel builds a probability-1 toy model over
// QUERY:answer(NUM) and NUM:numvalue: answer always uses pattern "w w Y1"
// and numvalue always emits one digit word, so "what is five" has exactly
// one derivation.
func deterministicModel(t *testing.T) (*Model, *Production, *Production) {
	grammar := NewGrammar()
	answer := &Production{Category: "QUERY", Function: "answer", Args: []string{"NUM"}}
	numvalue := &Production{Category: "NUM", Function: "numvalue"}
	for _, m := range []*Production{answer, numvalue} {
		if err := grammar.Register(m); err != nil {
			t.Fatal("Register failed", err)
		}
	}
	model := NewModel(grammar, Unigram, 2)
	model.vocab = map[string]bool{"what": true, "is": true, "five": true}
	model.base = 1.0 / 4.0

	wwY := findPattern(model, 1, 2, 0)
	if wwY < 0 {
		t.Fatal("pattern w w Y1 not found")
	}
	patternRow := make([]float64, len(model.patterns(1)))
	patternRow[wwY] = 1.0
	model.pattern[answer.key()] = patternRow

	w := findPattern(model, 0, 1)
	if w < 0 {
		t.Fatal("pattern w not found")
	}
	terminalRow := make([]float64, len(model.patterns(0)))
	terminalRow[w] = 1.0
	model.pattern[numvalue.key()] = terminalRow

	model.trans[transKey(answer, 0)] = map[string]float64{numvalue.key(): 1.0}
	model.emit[emitKey(answer, "")] = map[string]float64{"what": 0.5, "is": 0.5}
	model.emit[emitKey(numvalue, "")] = map[string]float64{"five": 1.0}
	return model, answer, numvalue
}

func almostEqual(a float64, b float64, tolerance float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= tolerance*math.Max(scale, 1.0)
}
