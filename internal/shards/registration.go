package shards

import (
	"fmt"
	"sort"

	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// Catalogue maps specialist identities to specialists.
type Catalogue struct {
	specialists map[string]Specialist
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{specialists: make(map[string]Specialist)}
}

// Register adds or replaces a specialist under its name.
func (c *Catalogue) Register(s Specialist) {
	c.specialists[s.Name()] = s
}

// Get returns the specialist registered under id.
func (c *Catalogue) Get(id string) (Specialist, error) {
	s, ok := c.specialists[id]
	if !ok {
		return nil, fmt.Errorf("no specialist registered for %q", id)
	}
	return s, nil
}

// Names lists registered identities in sorted order.
func (c *Catalogue) Names() []string {
	names := make([]string, 0, len(c.specialists))
	for n := range c.specialists {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterAll registers every pipeline specialist backed by inv.
// This should be called once during startup after the invoker is built.
func RegisterAll(c *Catalogue, inv types.Invoker) {
	c.Register(NewAnalyst(inv))
	c.Register(NewArchitect(inv))
	c.Register(NewMobile(inv))
	c.Register(NewPlanner(inv))
	c.Register(NewAPIDesigner(inv))
	c.Register(NewFrontend(inv))
	c.Register(NewCoder(inv))
	c.Register(NewTester(inv))
	c.Register(NewDebugger(inv))
}

// DefaultCatalogue returns a catalogue holding every specialist.
func DefaultCatalogue(inv types.Invoker) *Catalogue {
	c := NewCatalogue()
	RegisterAll(c, inv)
	return c
}
