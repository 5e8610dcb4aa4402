// Package mutator implements AFL-style mutation primitives: bit/byte
// flipping, arithmetic and interesting-value substitution, havoc ops, and
// the deterministic/havoc/splice stage drivers built on top of them.
package mutator

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/fluxfuzzer/fluxfuzzer/pkg/types"
)

// Mutator defines the interface for all mutation implementations
type Mutator interface {
	// Name returns the human-readable name of the mutator
	Name() string

	// Description returns a brief description of what this mutator does
	Description() string

	// Mutate applies the mutation strategy to the input
	Mutate(input []byte) ([]byte, error)

	// MutateWithType applies mutation based on inferred type
	MutateWithType(input []byte, inputType InputType) ([]byte, error)

	// Type returns the MutationType constant for this mutator
	Type() types.MutationType
}

// InputType represents the detected type of input data
type InputType int

const (
	TypeUnknown InputType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeJSON
	TypeXML
	TypeHTML
	TypeURL
	TypeEmail
	TypeUUID
	TypeJWT
	TypeBase64
	TypeHex
)

// String returns the string representation of InputType
func (t InputType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeJSON:
		return "json"
	case TypeXML:
		return "xml"
	case TypeHTML:
		return "html"
	case TypeURL:
		return "url"
	case TypeEmail:
		return "email"
	case TypeUUID:
		return "uuid"
	case TypeJWT:
		return "jwt"
	case TypeBase64:
		return "base64"
	case TypeHex:
		return "hex"
	default:
		return "unknown"
	}
}

// --- Registry: Manages available mutators ---

// Registry stores and manages available mutators
type Registry struct {
	mu       sync.RWMutex
	mutators map[string]Mutator
	order    []string // maintains insertion order
}

// NewRegistry creates a new mutator registry
func NewRegistry() *Registry {
	return &Registry{
		mutators: make(map[string]Mutator),
		order:    make([]string, 0),
	}
}

// Register adds a mutator to the registry
func (r *Registry) Register(m Mutator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.mutators[name]; !exists {
		r.order = append(r.order, name)
	}
	r.mutators[name] = m
}

// Get retrieves a mutator by name
func (r *Registry) Get(name string) (Mutator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.mutators[name]
	return m, exists
}

// GetByType retrieves mutators by MutationType
func (r *Registry) GetByType(t types.MutationType) []Mutator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Mutator
	for _, name := range r.order {
		if m, exists := r.mutators[name]; exists && m.Type() == t {
			result = append(result, m)
		}
	}
	return result
}

// All returns all registered mutators in insertion order
func (r *Registry) All() []Mutator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Mutator, 0, len(r.order))
	for _, name := range r.order {
		if m, exists := r.mutators[name]; exists {
			result = append(result, m)
		}
	}
	return result
}

// Names returns the names of all registered mutators
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Count returns the number of registered mutators
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mutators)
}

// Remove removes a mutator from the registry
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mutators[name]; !exists {
		return false
	}

	delete(r.mutators, name)

	// Remove from order slice
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return true
}

// --- Helper functions ---

// secureRandomInt generates a cryptographically secure random number in [0, max)
func secureRandomInt(max int) int {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}

	n := binary.BigEndian.Uint64(b[:])
	return int(n % uint64(max))
}

// secureRandomBytes generates cryptographically secure random bytes
func secureRandomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
