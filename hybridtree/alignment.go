package hybridtree

import "fmt"

// NodeSpan records the latent choices of one MR node: the sentence span it
// covers and the hybrid pattern partitioning that span. Word-slot positions
// are derived: span, pattern and the children's spans fix every slot.
type NodeSpan struct {
	Start   int
	End     int
	Pattern Pattern
}

func (ns NodeSpan) String() string {
	return fmt.Sprintf("[%v,%v) %v", ns.Start, ns.End, ns.Pattern)
}

// Alignment assigns a NodeSpan to every node of one MR tree. Together with
// the tree it determines a unique NL sentence by concatenation.
type Alignment map[*Tree]NodeSpan
