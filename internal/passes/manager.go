package passes

import (
	"fmt"

	"flowcc/internal/ir"
)

// Pass is an analysis or transformation over a whole design.
type Pass interface {
	Name() string
	Run(design *ir.Design) error
}

// Manager runs passes in registration order and stops at the first failure.
type Manager struct {
	passes []Pass
}

// NewManager returns an empty pass manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends a pass to the pipeline.
func (m *Manager) Add(p Pass) {
	if p != nil {
		m.passes = append(m.passes, p)
	}
}

// Run executes every registered pass.
func (m *Manager) Run(design *ir.Design) error {
	for _, p := range m.passes {
		if err := p.Run(design); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}
