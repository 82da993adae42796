package hybridtree

import (
	"math"
	"testing"
)

func toyData(grammar *Grammar, t *testing.T) *DataContainer {
	sents := [][]string{
		{"what", "is", "five"},
		{"what", "is", "three"},
		{"what", "is", "two", "plus", "two"},
	}
	treeStrs := []string{
		"answer(numvalue)",
		"answer(numvalue)",
		"answer(plus(numvalue,numvalue))",
	}
	trees := make([]*Tree, 0, len(treeStrs))
	for _, s := range treeStrs {
		tree, err := ParseTree(s, grammar)
		if err != nil {
			t.Fatal("ParseTree failed", err)
		}
		trees = append(trees, tree)
	}
	return NewDataContainerFromPairs(sents, trees)
}

func checkRowsSumToOne(t *testing.T, model *Model) {
	for rowKey, row := range model.trans {
		total := 0.0
		for _, p := range row {
			total += p
		}
		if !almostEqual(total, 1.0, 1e-9) {
			t.Error("trans row", rowKey, "sums to", total)
		}
	}
	for rowKey, row := range model.emit {
		total := 0.0
		for _, p := range row {
			total += p
		}
		if !almostEqual(total, 1.0, 1e-9) {
			t.Error("emit row", rowKey, "sums to", total)
		}
	}
	for prodKey, row := range model.pattern {
		total := 0.0
		for _, p := range row {
			total += p
		}
		if !almostEqual(total, 1.0, 1e-9) {
			t.Error("pattern row", prodKey, "sums to", total)
		}
	}
}

func TestInitialize(t *testing.T) {
	grammar, answer, numvalue, plus := numbersGrammar(t)
	dataContainer := toyData(grammar, t)

	model := NewModel(grammar, Unigram, 2)
	model.Initialize(dataContainer, InitUniform, 1)
	checkRowsSumToOne(t, model)
	if !(model.transProb(answer, 0, numvalue) == 0.5 && model.transProb(answer, 0, plus) == 0.5) {
		t.Error("uniform transitions = ", model.transProb(answer, 0, numvalue), model.transProb(answer, 0, plus))
	}
	if !(len(model.vocab) == 6) {
		t.Error("len(model.vocab) = ", len(model.vocab))
	}

	random := NewModel(grammar, Unigram, 2)
	random.Initialize(dataContainer, InitRandom, 42)
	checkRowsSumToOne(t, random)
	// symmetry must actually be broken
	row := random.pattern[numvalue.key()]
	if almostEqual(row[0], row[1], 1e-6) {
		t.Error("random initialization left a symmetric pattern row", row)
	}

	// identical seeds give identical draws
	again := NewModel(grammar, Unigram, 2)
	again.Initialize(dataContainer, InitRandom, 42)
	for i := range row {
		if !(row[i] == again.pattern[numvalue.key()][i]) {
			t.Error("same seed produced different initialization at", i)
		}
	}
}

func TestGenerateModel(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	model, ok := GenerateModel(Bigram, grammar, 2)
	if !ok || !(model.Variant() == Bigram) {
		t.Error("GenerateModel(bigram) = ", model, ok)
	}
	_, ok = GenerateModel("trigram", grammar, 2)
	if ok {
		t.Error("GenerateModel should reject unknown variants")
	}
}

func TestEmitCtx(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	sent := []string{"what", "is", "five"}

	unigram := NewModel(grammar, Unigram, 2)
	if !(unigram.emitCtx(sent, 0) == "" && unigram.emitCtx(sent, 2) == "") {
		t.Error("unigram context should be empty")
	}

	bigram := NewModel(grammar, Bigram, 2)
	if !(bigram.emitCtx(sent, 0) == bosWord) {
		t.Error("bigram context at 0 = ", bigram.emitCtx(sent, 0))
	}
	if !(bigram.emitCtx(sent, 2) == "is") {
		t.Error("bigram context at 2 = ", bigram.emitCtx(sent, 2))
	}
}

func TestJointProb(t *testing.T) {
	model, answer, numvalue := deterministicModel(t)
	sent := []string{"what", "is", "five"}

	leaf := &Tree{Prod: numvalue}
	root := &Tree{Prod: answer, Children: []*Tree{leaf}}
	align := Alignment{
		root: NodeSpan{Start: 0, End: 3, Pattern: model.patterns(1)[findPattern(model, 1, 2, 0)]},
		leaf: NodeSpan{Start: 2, End: 3, Pattern: model.patterns(0)[findPattern(model, 0, 1)]},
	}

	p, err := model.JointProb(sent, root, align)
	if err != nil {
		t.Fatal("JointProb failed", err)
	}
	// pattern(w w Y1)=1 x emit(what)=0.5 x emit(is)=0.5 x trans=1 x pattern(w)=1 x emit(five)=1
	if !almostEqual(p, 0.25, 1e-12) {
		t.Error("JointProb = ", p)
	}

	// a child span that breaks concatenation is rejected
	bad := Alignment{
		root: align[root],
		leaf: NodeSpan{Start: 1, End: 2, Pattern: align[leaf].Pattern},
	}
	if _, err := model.JointProb(sent, root, bad); err == nil {
		t.Error("inconsistent alignment should fail")
	}

	// an alignment not covering the sentence is rejected
	short := Alignment{
		root: NodeSpan{Start: 0, End: 2, Pattern: align[root].Pattern},
		leaf: align[leaf],
	}
	if _, err := model.JointProb(sent, root, short); err == nil {
		t.Error("partial cover should fail")
	}

	if math.IsNaN(p) {
		t.Error("JointProb is NaN")
	}
}
