package hybridtree

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

type productionJSON struct {
	Category string
	Function string
	Args     []string
}

// modelJSON is the exported-field mirror of Model for the persisted
// artifact. It carries everything the decoder needs: the variant, the
// pattern bound, the grammar signature, all three tables and the
// vocabulary.
type modelJSON struct {
	Variant     string
	MaxGapWords int
	Productions []productionJSON
	Trans       map[string]map[string]float64
	Emit        map[string]map[string]float64
	Pattern     map[string][]float64
	Vocab       []string
}

func (model *Model) save() ([]byte, interface{}) {
	prods := make([]productionJSON, 0, model.grammar.Size())
	for _, m := range model.grammar.Productions() {
		prods = append(prods, productionJSON{Category: m.Category, Function: m.Function, Args: m.Args})
	}
	vocab := make([]string, 0, len(model.vocab))
	for word := range model.vocab {
		vocab = append(vocab, word)
	}
	sort.Strings(vocab)
	mJSON := &modelJSON{
		Variant:     model.variant,
		MaxGapWords: model.maxGapWords,
		Productions: prods,
		Trans:       model.trans,
		Emit:        model.emit,
		Pattern:     model.pattern,
		Vocab:       vocab,
	}
	v, err := json.Marshal(mJSON)
	if err != nil {
		panic("save error in Model")
	}
	return v, mJSON
}

func (model *Model) load(v []byte) error {
	mJSON := &modelJSON{}
	if err := json.Unmarshal(v, mJSON); err != nil {
		return fmt.Errorf("model artifact unmarshal error: %w", err)
	}
	grammar := NewGrammar()
	for i := range mJSON.Productions {
		p := mJSON.Productions[i]
		m := &Production{Category: p.Category, Function: p.Function, Args: p.Args}
		if err := grammar.Register(m); err != nil {
			return fmt.Errorf("model artifact grammar error: %w", err)
		}
	}
	if mJSON.Variant != Unigram && mJSON.Variant != Bigram {
		return fmt.Errorf("model artifact has unknown variant (%v)", mJSON.Variant)
	}
	model.grammar = grammar
	model.variant = mJSON.Variant
	model.maxGapWords = mJSON.MaxGapWords
	model.trans = mJSON.Trans
	model.emit = mJSON.Emit
	model.pattern = mJSON.Pattern
	if model.trans == nil {
		model.trans = make(map[string]map[string]float64)
	}
	if model.emit == nil {
		model.emit = make(map[string]map[string]float64)
	}
	if model.pattern == nil {
		model.pattern = make(map[string][]float64)
	}
	model.vocab = make(map[string]bool, len(mJSON.Vocab))
	for _, word := range mJSON.Vocab {
		model.vocab[word] = true
	}
	model.base = 1.0 / float64(len(model.vocab)+1)
	model.buildPatternSets()
	return nil
}

// SaveModel writes the model artifact as JSON. saveFormat is "indent" or
// "notindent".
func SaveModel(model *Model, saveFile string, saveFormat string) error {
	modelJSONByte, mJSON := model.save()
	if saveFormat == "indent" {
		var err error
		modelJSONByte, err = json.MarshalIndent(mJSON, "", " ")
		if err != nil {
			return fmt.Errorf("save model error: %w", err)
		}
	} else if saveFormat != "notindent" {
		return fmt.Errorf("save model error: unknown saveFormat (%v)", saveFormat)
	}
	if err := os.WriteFile(saveFile, modelJSONByte, 0644); err != nil {
		return fmt.Errorf("save model error: %w", err)
	}
	return nil
}

// LoadModel reads a model artifact written by SaveModel. The reloaded model
// decodes identically to the saved one.
func LoadModel(loadFile string) (*Model, error) {
	modelJSONByte, err := os.ReadFile(loadFile)
	if err != nil {
		return nil, fmt.Errorf("load model file error: %w", err)
	}
	model := &Model{}
	if err := model.load(modelJSONByte); err != nil {
		return nil, err
	}
	return model, nil
}
