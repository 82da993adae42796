package hybridtree

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSaveLoadModel(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	dataContainer := toyData(grammar, t)
	model := NewModel(grammar, Unigram, 2)
	model.Initialize(dataContainer, InitRandom, 19)
	config := TrainConfig{MaxIter: 5, Tolerance: 1e-6, Smoothing: 0.01, Threads: 2}
	if _, err := model.Train(context.Background(), dataContainer, config); err != nil {
		t.Fatal("Train failed", err)
	}

	saveFile := filepath.Join(t.TempDir(), "model.json")
	for _, saveFormat := range []string{"indent", "notindent"} {
		if err := SaveModel(model, saveFile, saveFormat); err != nil {
			t.Fatal("SaveModel failed", err)
		}
		loaded, err := LoadModel(saveFile)
		if err != nil {
			t.Fatal("LoadModel failed", err)
		}
		if !(loaded.Variant() == model.Variant() && loaded.maxGapWords == model.maxGapWords) {
			t.Error("reloaded configuration = ", loaded.Variant(), loaded.maxGapWords)
		}
		if !(loaded.grammar.Size() == grammar.Size()) {
			t.Error("reloaded grammar size = ", loaded.grammar.Size())
		}
		if !(len(loaded.vocab) == len(model.vocab) && loaded.base == model.base) {
			t.Error("reloaded vocab = ", len(loaded.vocab), loaded.base)
		}

		// the reloaded model decodes identically
		sent := []string{"what", "is", "two", "plus", "two"}
		tree, score, err := model.Decode(sent, "QUERY")
		if err != nil {
			t.Fatal("Decode failed", err)
		}
		loadedTree, loadedScore, err := loaded.Decode(sent, "QUERY")
		if err != nil {
			t.Fatal("Decode failed on the reloaded model", err)
		}
		if !(loadedTree.Equal(tree) && almostEqual(loadedScore, score, 1e-12)) {
			t.Error("reloaded decode = ", loadedTree, loadedScore, "want", tree, score)
		}
	}
}

func TestSaveModelBadFormat(t *testing.T) {
	grammar, _, _, _ := numbersGrammar(t)
	model := NewModel(grammar, Unigram, 2)
	saveFile := filepath.Join(t.TempDir(), "model.json")
	if err := SaveModel(model, saveFile, "pretty"); err == nil {
		t.Error("unknown saveFormat should fail")
	}
}

func TestLoadModelRejectsBadArtifacts(t *testing.T) {
	model := &Model{}
	if err := model.load([]byte("not json")); err == nil {
		t.Error("malformed JSON should fail")
	}
	if err := model.load([]byte(`{"Variant":"trigram","Productions":[]}`)); err == nil {
		t.Error("unknown variant should fail")
	}
	if _, err := LoadModel(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing file should fail")
	}
}
