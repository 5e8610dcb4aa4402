// Package pipeline provides a small, explicit stage-sequencing primitive:
// a pipeline is just a []Stage built once at startup, not a type
// hierarchy. It replaces the graph-of-types "flow" style of composing a
// multi-step loop body with a flat, inspectable slice, so adding, removing
// or reordering a step is a one-line edit instead of a new wrapper type.
package pipeline

// Outcome is what a Stage reports back to its Pipeline.
type Outcome int

const (
	// Continue runs the next stage.
	Continue Outcome = iota
	// Stop ends the pipeline for this Run without error (e.g. a
	// cooperative-cancellation flag was observed).
	Stop
	// Abort ends the pipeline and surfaces Context.Err to the caller.
	Abort
)

// Context carries whatever state a particular pipeline's stages share.
// Data is left untyped because each pipeline's Stage funcs agree on a
// concrete type among themselves (a type assertion at the top of each
// Stage, the same shape the teacher's handler functions use for
// request-scoped state).
type Context struct {
	Data any
	Err  error
}

// Stage is one step of a pipeline body. It mutates Context.Data in place
// and reports how the pipeline should proceed.
type Stage func(c *Context) Outcome

// Pipeline is an ordered, fixed list of stages run in sequence by Run.
type Pipeline struct {
	name   string
	stages []Stage
}

// New builds a Pipeline from a fixed stage sequence. Construction panics
// are not this package's concern: an invariant violation inside a Stage
// (a nil Data, a type assertion failing) is a programmer error and should
// panic at the call site rather than be swallowed here.
func New(name string, stages ...Stage) *Pipeline {
	return &Pipeline{name: name, stages: stages}
}

// Name returns the pipeline's label, useful for logging which pipeline a
// panic or error came from.
func (p *Pipeline) Name() string { return p.name }

// Len returns the number of stages, mostly useful for tests asserting a
// pipeline was assembled with the expected shape.
func (p *Pipeline) Len() int { return len(p.stages) }

// Run executes every stage in order against c, stopping early on Stop or
// Abort. It returns c.Err, which is only non-nil after an Abort.
func (p *Pipeline) Run(c *Context) error {
	for _, stage := range p.stages {
		switch stage(c) {
		case Continue:
			continue
		case Stop:
			return nil
		case Abort:
			return c.Err
		}
	}
	return nil
}
