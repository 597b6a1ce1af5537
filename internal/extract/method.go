package extract

import (
	"fmt"

	"SignalPipeline/internal/domain"
)

// MethodConfig carries the per-run knobs a method needs.
type MethodConfig struct {
	MaxPhraseLength int
	Stopwords       map[string]struct{}
}

// Method captures a single extraction strategy. Implementations must be
// stateless: Extract is called concurrently for different documents.
type Method interface {
	Name() string

	// EntityAware reports whether the method classifies named entities, i.e.
	// whether its candidates may carry IsEntity.
	EntityAware() bool

	// Extract produces scored candidates from cleaned document text. Scores
	// must already be normalized to [0,1] against the method's own range.
	Extract(text string, cfg MethodConfig) ([]domain.Candidate, error)
}

// Registry keeps a mapping from method names to their implementations.
type Registry struct {
	methods map[string]Method
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: map[string]Method{}}
}

// Register adds or replaces a method implementation.
func (r *Registry) Register(method Method) {
	if r.methods == nil {
		r.methods = map[string]Method{}
	}
	r.methods[method.Name()] = method
}

// Resolve returns a method by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Method, error) {
	if method, ok := r.methods[name]; ok {
		return method, nil
	}
	return nil, fmt.Errorf("extraction method %s is not registered", name)
}

// DefaultRegistry returns a registry with all built-in methods.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FrequencyMethod{})
	r.Register(PhraseMethod{})
	r.Register(EntityMethod{})
	return r
}
