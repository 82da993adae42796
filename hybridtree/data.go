package hybridtree

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DataContainer holds the (NL sentence, MR tree) training pairs. Trees are
// fully specified; only the alignment is latent.
type DataContainer struct {
	Sents [][]string
	Trees []*Tree
	Size  int
}

// NewDataContainer reads tab-separated pairs from a text file: a tokenized
// sentence and an MR tree, e.g.
//
//	what is five	answer(numvalue)
//
// Sentences are lowercased and split on whitespace. Blank lines and lines
// starting with # are skipped.
func NewDataContainer(filePath string, grammar *Grammar) (*DataContainer, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open filePath (%v): %w", filePath, err)
	}
	defer f.Close()

	dataContainer := new(DataContainer)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.SplitN(text, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("filePath (%v) line %v: want sentence TAB tree", filePath, line)
		}
		sent := strings.Fields(strings.ToLower(fields[0]))
		if len(sent) == 0 {
			return nil, fmt.Errorf("filePath (%v) line %v: empty sentence", filePath, line)
		}
		tree, err := ParseTree(strings.TrimSpace(fields[1]), grammar)
		if err != nil {
			return nil, fmt.Errorf("filePath (%v) line %v: %w", filePath, line, err)
		}
		dataContainer.Sents = append(dataContainer.Sents, sent)
		dataContainer.Trees = append(dataContainer.Trees, tree)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read error in filePath (%v): %w", filePath, err)
	}
	dataContainer.Size = len(dataContainer.Sents)
	return dataContainer, nil
}

// NewDataContainerFromPairs wraps in-memory pairs.
func NewDataContainerFromPairs(sents [][]string, trees []*Tree) *DataContainer {
	if len(sents) != len(trees) {
		errMsg := fmt.Sprintf("NewDataContainerFromPairs error. %v sentences but %v trees", len(sents), len(trees))
		panic(errMsg)
	}
	dataContainer := &DataContainer{Sents: sents, Trees: trees, Size: len(sents)}
	return dataContainer
}

// LoadSentences reads one tokenized sentence per line for decoding.
func LoadSentences(filePath string) ([][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open filePath (%v): %w", filePath, err)
	}
	defer f.Close()

	sents := make([][]string, 0)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		sent := strings.Fields(strings.ToLower(sc.Text()))
		if len(sent) > 0 {
			sents = append(sents, sent)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read error in filePath (%v): %w", filePath, err)
	}
	return sents, nil
}
