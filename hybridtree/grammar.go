package hybridtree

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const concat string = "<concat>"
const bosWord string = "<BOS>"

// Production is one MR grammar rule: a semantic category rewritten as a
// function symbol applied to typed argument positions. Arity-0 productions
// are the terminals of the MR grammar.
type Production struct {
	Category string
	Function string
	Args     []string
}

// Arity returns the number of argument slots.
func (m *Production) Arity() int {
	return len(m.Args)
}

func (m *Production) key() string {
	parts := make([]string, 0, len(m.Args)+2)
	parts = append(parts, m.Category, m.Function)
	parts = append(parts, m.Args...)
	return strings.Join(parts, concat)
}

func (m *Production) String() string {
	if len(m.Args) == 0 {
		return m.Category + ":" + m.Function
	}
	return m.Category + ":" + m.Function + "(" + strings.Join(m.Args, ",") + ")"
}

// GrammarError reports a production registration that conflicts with an
// already registered production.
type GrammarError struct {
	Production *Production
	Reason     string
}

func (e *GrammarError) Error() string {
	return fmt.Sprintf("grammar error for production (%v): %v", e.Production, e.Reason)
}

// Grammar holds the set of MR productions and their category index. It is
// purely structural and carries no probabilities.
type Grammar struct {
	productions map[string]*Production // (category, function) to production
	byCategory  map[string][]*Production
	ordered     []*Production
}

// NewGrammar returns an empty Grammar instance.
func NewGrammar() *Grammar {
	grammar := &Grammar{
		productions: make(map[string]*Production),
		byCategory:  make(map[string][]*Production),
		ordered:     make([]*Production, 0),
	}
	return grammar
}

func nameKey(category string, function string) string {
	return category + concat + function
}

// Register adds a production. Registering the identical production again is
// a no-op; registering a production whose (category, function) is already
// taken with a different argument signature fails with GrammarError.
func (grammar *Grammar) Register(m *Production) error {
	if m.Category == "" || m.Function == "" {
		return &GrammarError{Production: m, Reason: "empty category or function symbol"}
	}
	k := nameKey(m.Category, m.Function)
	old, ok := grammar.productions[k]
	if ok {
		if old.key() == m.key() {
			return nil
		}
		reason := fmt.Sprintf("conflicts with registered signature (%v)", old)
		return &GrammarError{Production: m, Reason: reason}
	}
	grammar.productions[k] = m
	grammar.byCategory[m.Category] = append(grammar.byCategory[m.Category], m)
	grammar.ordered = append(grammar.ordered, m)
	return nil
}

// ProductionsFor returns the productions whose semantic category matches, in
// registration order.
func (grammar *Grammar) ProductionsFor(category string) []*Production {
	return grammar.byCategory[category]
}

// Productions returns every registered production in registration order.
func (grammar *Grammar) Productions() []*Production {
	return grammar.ordered
}

// Size returns the number of registered productions.
func (grammar *Grammar) Size() int {
	return len(grammar.ordered)
}

// Lookup finds the production registered under (category, function).
func (grammar *Grammar) Lookup(category string, function string) (*Production, bool) {
	m, ok := grammar.productions[nameKey(category, function)]
	return m, ok
}

// lookupByFunction finds the unique production with the given function
// symbol and arity. category restricts the search; "" searches everywhere.
func (grammar *Grammar) lookupByFunction(function string, arity int, category string) (*Production, error) {
	var found *Production
	for _, m := range grammar.ordered {
		if m.Function != function || m.Arity() != arity {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("function symbol (%v) with arity %v is ambiguous: (%v) and (%v)", function, arity, found, m)
		}
		found = m
	}
	if found == nil {
		return nil, fmt.Errorf("no production for function symbol (%v) with arity %v under category (%v)", function, arity, category)
	}
	return found, nil
}

func (grammar *Grammar) maxArity() int {
	maxArity := 0
	for _, m := range grammar.ordered {
		if m.Arity() > maxArity {
			maxArity = m.Arity()
		}
	}
	return maxArity
}

// LoadGrammar reads productions from a text file, one per line:
// category, function symbol and argument categories separated by spaces.
// Blank lines and lines starting with # are skipped.
func LoadGrammar(filePath string) (*Grammar, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open grammar file (%v): %w", filePath, err)
	}
	defer f.Close()

	grammar := NewGrammar()
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("grammar file (%v) line %v: want category and function symbol", filePath, line)
		}
		m := &Production{Category: fields[0], Function: fields[1], Args: fields[2:]}
		if err := grammar.Register(m); err != nil {
			return nil, fmt.Errorf("grammar file (%v) line %v: %w", filePath, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read error in grammar file (%v): %w", filePath, err)
	}
	return grammar, nil
}
