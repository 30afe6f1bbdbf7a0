package value

import "fmt"

// NodeRef is the opaque handle an Environment stores per symbol. The value
// package cannot import internal/trace (which depends on value), so it is
// generic over the node-id type the owning package chooses; trace uses its
// own NodeID here.
type NodeRef interface{}

// UnboundSymbolError is returned when a lookup walks off the top of the
// environment chain without finding the symbol (spec §7 "Unbound symbol").
type UnboundSymbolError struct {
	Symbol string
}

func (e *UnboundSymbolError) Error() string {
	return fmt.Sprintf("unbound symbol: %s", e.Symbol)
}

// Environment is a persistent mapping from symbol to node, chained to a
// parent. Extending an environment never mutates the parent (spec §4.A):
// Extend returns a brand new child, so a family evaluated against one
// environment can never be observed by a sibling family.
type Environment struct {
	parent *Environment
	frame  map[string]NodeRef
}

// NewEnvironment returns a fresh, empty, parentless environment (the global
// frame a program starts evaluating against).
func NewEnvironment() *Environment {
	return &Environment{frame: make(map[string]NodeRef)}
}

// Extend returns a new child environment binding each symbol in symbols to
// the corresponding node in nodes. len(symbols) must equal len(nodes).
func (e *Environment) Extend(symbols []string, nodes []NodeRef) (*Environment, error) {
	if len(symbols) != len(nodes) {
		return nil, fmt.Errorf("environment extend: %d symbols but %d nodes", len(symbols), len(nodes))
	}
	frame := make(map[string]NodeRef, len(symbols))
	for i, s := range symbols {
		frame[s] = nodes[i]
	}
	return &Environment{parent: e, frame: frame}, nil
}

// BindOne is a convenience wrapper around Extend for a single binding, used
// pervasively by lambda application (one operand, one parameter) and `let`.
func (e *Environment) BindOne(symbol string, node NodeRef) *Environment {
	env, _ := e.Extend([]string{symbol}, []NodeRef{node})
	return env
}

// FindSymbol walks the environment chain outward from e looking for symbol,
// returning an *UnboundSymbolError if no frame in the chain provides it.
func (e *Environment) FindSymbol(symbol string) (NodeRef, error) {
	for env := e; env != nil; env = env.parent {
		if node, ok := env.frame[symbol]; ok {
			return node, nil
		}
	}
	return nil, &UnboundSymbolError{Symbol: symbol}
}

// Parent returns the parent environment, or nil at the root.
func (e *Environment) Parent() *Environment { return e.parent }
