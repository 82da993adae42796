package hybridtree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDataContainer(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	dataContainer, err := NewDataContainer("../data/numbers.train", grammar)
	if err != nil {
		t.Fatal("NewDataContainer failed", err)
	}
	if !(dataContainer.Size == 7) {
		t.Error("dataContainer.Size = ", dataContainer.Size)
	}
	if !(len(dataContainer.Sents) == dataContainer.Size && len(dataContainer.Trees) == dataContainer.Size) {
		t.Error("pair slices out of step", len(dataContainer.Sents), len(dataContainer.Trees))
	}
	first := dataContainer.Sents[0]
	if !(len(first) == 3 && first[0] == "what" && first[2] == "five") {
		t.Error("Sents[0] = ", first)
	}
	if !(dataContainer.Trees[0].String() == "answer(numvalue)") {
		t.Error("Trees[0] = ", dataContainer.Trees[0])
	}
	if !(dataContainer.Trees[4].String() == "answer(plus(numvalue,numvalue))") {
		t.Error("Trees[4] = ", dataContainer.Trees[4])
	}
}

func TestNewDataContainerErrors(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	dir := t.TempDir()

	writeFixture := func(name string, text string) string {
		filePath := filepath.Join(dir, name)
		if err := os.WriteFile(filePath, []byte(text), 0644); err != nil {
			t.Fatal("WriteFile failed", err)
		}
		return filePath
	}

	if _, err := NewDataContainer(filepath.Join(dir, "absent.train"), grammar); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := NewDataContainer(writeFixture("notab.train", "what is five answer(numvalue)\n"), grammar); err == nil {
		t.Error("line without a tab should fail")
	}
	if _, err := NewDataContainer(writeFixture("badtree.train", "what is five\tanswer(sum)\n"), grammar); err == nil {
		t.Error("unparseable tree should fail")
	}

	// comments, blank lines and uppercase input are tolerated
	mixed := writeFixture("mixed.train", "# header\n\nWhat IS Five\tanswer(numvalue)\n")
	dataContainer, err := NewDataContainer(mixed, grammar)
	if err != nil {
		t.Fatal("NewDataContainer failed", err)
	}
	if !(dataContainer.Size == 1) {
		t.Error("dataContainer.Size = ", dataContainer.Size)
	}
	if !(dataContainer.Sents[0][1] == "is" && dataContainer.Sents[0][2] == "five") {
		t.Error("Sents[0] = ", dataContainer.Sents[0])
	}
}

func TestNewDataContainerFromPairs(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	tree, err := ParseTree("answer(numvalue)", grammar)
	if err != nil {
		t.Fatal("ParseTree failed", err)
	}
	dataContainer := NewDataContainerFromPairs([][]string{{"what", "is", "five"}}, []*Tree{tree})
	if !(dataContainer.Size == 1 && dataContainer.Trees[0] == tree) {
		t.Error("dataContainer = ", dataContainer)
	}

	defer func() {
		if recover() == nil {
			t.Error("length mismatch should panic")
		}
	}()
	NewDataContainerFromPairs([][]string{{"what"}}, nil)
}

func TestLoadSentences(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "test.sents")
	if err := os.WriteFile(filePath, []byte("What is five\n\ntell me seven\n"), 0644); err != nil {
		t.Fatal("WriteFile failed", err)
	}
	sents, err := LoadSentences(filePath)
	if err != nil {
		t.Fatal("LoadSentences failed", err)
	}
	if !(len(sents) == 2) {
		t.Fatal("len(sents) = ", len(sents))
	}
	if !(sents[0][0] == "what" && sents[1][2] == "seven") {
		t.Error("sents = ", sents)
	}
}

func TestLoadGrammarErrors(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "bad.grammar")
	if err := os.WriteFile(filePath, []byte("QUERY\n"), 0644); err != nil {
		t.Fatal("WriteFile failed", err)
	}
	if _, err := LoadGrammar(filePath); err == nil {
		t.Error("grammar line without a function symbol should fail")
	}
	if _, err := LoadGrammar(filepath.Join(dir, "absent.grammar")); err == nil {
		t.Error("missing grammar file should fail")
	}
}
