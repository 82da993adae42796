package hybridtree

import (
	"fmt"
	"strings"
)

// Tree is one MR derivation node: a production instance with exactly arity
// children whose root categories match the declared argument categories.
// Trees are immutable once built.
type Tree struct {
	Prod     *Production
	Children []*Tree
}

// NewTree builds a tree node and checks category compatibility at the edge
// to every child.
func NewTree(m *Production, children ...*Tree) (*Tree, error) {
	if len(children) != m.Arity() {
		return nil, fmt.Errorf("production (%v) wants %v children, got %v", m, m.Arity(), len(children))
	}
	for k, child := range children {
		if child.Prod.Category != m.Args[k] {
			return nil, fmt.Errorf("argument %v of (%v) wants category (%v), got (%v)", k, m, m.Args[k], child.Prod.Category)
		}
	}
	return &Tree{Prod: m, Children: children}, nil
}

// NodeCount returns the number of nodes in the subtree.
func (t *Tree) NodeCount() int {
	count := 1
	for _, child := range t.Children {
		count += child.NodeCount()
	}
	return count
}

// Equal reports whether two trees use the same productions in the same
// shape.
func (t *Tree) Equal(o *Tree) bool {
	if o == nil {
		return false
	}
	if t.Prod.key() != o.Prod.key() {
		return false
	}
	if len(t.Children) != len(o.Children) {
		return false
	}
	for i, child := range t.Children {
		if !child.Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

func (t *Tree) String() string {
	if len(t.Children) == 0 {
		return t.Prod.Function
	}
	parts := make([]string, 0, len(t.Children))
	for _, child := range t.Children {
		parts = append(parts, child.String())
	}
	return t.Prod.Function + "(" + strings.Join(parts, ",") + ")"
}

// ParseTree reads an MR tree written with function symbols, e.g.
// answer(plus(numvalue,numvalue)). Productions are resolved against the
// grammar top-down: the root may be of any category, every child is
// constrained by the parent's argument category.
func ParseTree(s string, grammar *Grammar) (*Tree, error) {
	p := &treeParser{input: s, grammar: grammar}
	t, err := p.parse("")
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("trailing input at offset %v in MR tree (%v)", p.pos, s)
	}
	return t, nil
}

type treeParser struct {
	input   string
	pos     int
	grammar *Grammar
}

func (p *treeParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *treeParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '(' || c == ')' || c == ',' || c == ' ' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("want function symbol at offset %v in MR tree (%v)", start, p.input)
	}
	return p.input[start:p.pos], nil
}

func (p *treeParser) parse(category string) (*Tree, error) {
	function, err := p.ident()
	if err != nil {
		return nil, err
	}
	args := make([]string, 0)
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		p.pos++
		for {
			arg, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			p.skipSpace()
			if p.pos >= len(p.input) {
				return nil, fmt.Errorf("unclosed argument list in MR tree (%v)", p.input)
			}
			if p.input[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.input[p.pos] == ')' {
				p.pos++
				break
			}
			return nil, fmt.Errorf("want , or ) at offset %v in MR tree (%v)", p.pos, p.input)
		}
	}
	m, err := p.grammar.lookupByFunction(function, len(args), category)
	if err != nil {
		return nil, err
	}
	children := make([]*Tree, 0, len(args))
	for k, arg := range args {
		sub := &treeParser{input: arg, grammar: p.grammar}
		child, err := sub.parse(m.Args[k])
		if err != nil {
			return nil, err
		}
		sub.skipSpace()
		if sub.pos != len(sub.input) {
			return nil, fmt.Errorf("trailing input in argument (%v) of MR tree (%v)", arg, p.input)
		}
		children = append(children, child)
	}
	return NewTree(m, children...)
}

// parseArg captures the raw text of one argument, balancing parentheses, so
// the child can be parsed once its expected category is known.
func (p *treeParser) parseArg() (string, error) {
	p.skipSpace()
	start := p.pos
	depth := 0
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '(' {
			depth++
		}
		if c == ')' {
			if depth == 0 {
				break
			}
			depth--
		}
		if c == ',' && depth == 0 {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("empty argument at offset %v in MR tree (%v)", start, p.input)
	}
	return p.input[start:p.pos], nil
}
