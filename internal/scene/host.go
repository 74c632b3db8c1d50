package scene

import (
	"sync"
)

// DefaultProjectName is reported for a project that was never saved.
const DefaultProjectName = "Untitled Project"

// Host gives handlers access to the project. View and Update serialise access;
// fn must not retain the project after it returns.
type Host interface {
	View(fn func(p *Project) error) error
	Update(fn func(p *Project) error) error
}

// Memory is a Host that keeps the project in process memory.
type Memory struct {
	mu      sync.RWMutex
	project *Project
}

// NewMemory returns a Memory host with an empty project.
func NewMemory(projectName string) *Memory {
	return &Memory{project: NewProject(projectName)}
}

// View runs fn with a read lock held.
func (m *Memory) View(fn func(p *Project) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.project)
}

// Update runs fn with the write lock held.
func (m *Memory) Update(fn func(p *Project) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.project)
}
