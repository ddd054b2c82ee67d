package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/telemetry"
	"github.com/openfroyo/confeval/pkg/value"
)

// DefaultMaxDepth bounds nested instantiation when Options.MaxDepth is zero.
const DefaultMaxDepth = 256

// Options configures an evaluation context.
type Options struct {
	// Mode selects fail-fast or collect-all error propagation.
	Mode diag.Mode `json:"mode" yaml:"mode"`

	// MaxDepth bounds nested instantiation. Zero means DefaultMaxDepth.
	MaxDepth int `json:"max_depth" yaml:"max_depth" validate:"gte=0,lte=100000"`

	// MaxSteps bounds the execution steps of each compiled expression
	// call. Zero means unlimited.
	MaxSteps uint64 `json:"max_steps" yaml:"max_steps"`

	// IncludeNone keeps None attributes in Plan output.
	IncludeNone bool `json:"include_none" yaml:"include_none"`

	// Telemetry receives logs, metrics and spans. nil records nothing.
	Telemetry *telemetry.Telemetry `json:"-" yaml:"-" validate:"-"`
}

var optionsValidator = validator.New()

// Context is one evaluation. It owns the error collector, the resolved
// ancestries and the stack of instances under construction. A Context must
// not be used from more than one goroutine.
type Context struct {
	ID string

	reg       *Registry
	opts      Options
	errs      *diag.Collector
	tel       *telemetry.Telemetry
	log       *telemetry.Logger
	ctx       context.Context
	span      trace.Span
	ancestry  map[string]*Ancestry
	stack     []*builder
	serial    int
	maxDepth  int
	locals    map[any]any
	evaluated bool
}

// NewContext creates an evaluation context over reg.
func NewContext(ctx context.Context, reg *Registry, opts Options) (*Context, error) {
	if reg == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	if err := optionsValidator.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid evaluation options: %w", err)
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.NopTelemetry()
	}
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}

	id := uuid.New().String()
	spanCtx, span := tel.Tracer.StartEvaluationSpan(ctx, id)

	return &Context{
		ID:       id,
		reg:      reg,
		opts:     opts,
		errs:     diag.NewCollector(opts.Mode),
		tel:      tel,
		log:      tel.Logger.NewComponentLogger("schema").WithEvalID(id),
		ctx:      spanCtx,
		span:     span,
		ancestry: make(map[string]*Ancestry),
		maxDepth: maxDepth,
		locals:   make(map[any]any),
	}, nil
}

// Registry returns the schema registry of the context.
func (c *Context) Registry() *Registry {
	return c.reg
}

// Options returns the evaluation options.
func (c *Context) Options() Options {
	return c.opts
}

// Logger returns the context logger.
func (c *Context) Logger() *telemetry.Logger {
	return c.log
}

// Depth returns the number of instances under construction.
func (c *Context) Depth() int {
	return len(c.stack)
}

// Local returns a value stored with SetLocal.
func (c *Context) Local(key any) any {
	return c.locals[key]
}

// SetLocal stores per-evaluation state for expression evaluators.
func (c *Context) SetLocal(key, v any) {
	c.locals[key] = v
}

// Instantiate constructs a finished instance of the named schema from lit.
// In fail-fast mode the first error is returned. In collect-all mode the
// instance is returned together with a diag.List of every error recorded by
// this call.
func (c *Context) Instantiate(name string, lit *value.Literal, meta diag.ConfigMeta) (value.Value, error) {
	before := c.errs.Len()
	v, err := c.instantiate(name, lit, meta)
	if err != nil {
		return v, err
	}
	if c.errs.Len() > before {
		return v, append(diag.List(nil), c.errs.Errors()[before:]...)
	}
	return v, nil
}

// Ancestry returns the memoized ancestry of the named schema.
func (c *Context) Ancestry(name string) (*Ancestry, error) {
	if a, ok := c.ancestry[name]; ok {
		return a, nil
	}
	a, err := c.reg.Resolve(name)
	if err != nil {
		return nil, err
	}
	c.ancestry[name] = a
	return a, nil
}

// IsA reports whether an instance of schema inst satisfies schema target.
func (c *Context) IsA(inst, target string) bool {
	if inst == target {
		return true
	}
	a, err := c.Ancestry(inst)
	if err != nil {
		return false
	}
	return a.IsA(target)
}

// Err returns every error recorded so far, or nil.
func (c *Context) Err() error {
	return c.errs.Err()
}

// Errors returns the recorded errors.
func (c *Context) Errors() diag.List {
	return c.errs.Errors()
}

// Plan projects a finished value for serialization.
func (c *Context) Plan(v value.Value) any {
	return value.Plan(v, value.PlanOptions{IncludeNone: c.opts.IncludeNone})
}

// Close ends the evaluation span and records the evaluation outcome.
func (c *Context) Close() {
	if c.evaluated {
		return
	}
	c.evaluated = true
	status := "success"
	if err := c.errs.Err(); err != nil {
		status = "failure"
		telemetry.RecordError(c.span, err)
	} else {
		telemetry.RecordSuccess(c.span)
	}
	c.tel.Metrics.RecordEvaluation(status)
	c.span.End()
	c.log.Debugf("evaluation finished: %s, %d error(s)", status, c.errs.Len())
}

// Report records an error found outside instantiation, such as a
// constraint rejecting a finished instance. It returns a non-nil error when
// evaluation must stop.
func (c *Context) Report(err error) error {
	return c.report(err)
}

// report routes err through the collector. It returns a non-nil error when
// evaluation must stop.
func (c *Context) report(err error) error {
	if err == nil {
		return nil
	}
	before := c.errs.Len()
	stop := c.errs.Report(err)
	for _, e := range c.errs.Errors()[before:] {
		c.tel.Metrics.RecordError(string(e.Kind))
		c.log.WithError(e).Debug("evaluation error recorded")
	}
	return stop
}

// instantiate runs the state machine for one instance. The returned error
// is non-nil only when evaluation must stop.
func (c *Context) instantiate(name string, lit *value.Literal, meta diag.ConfigMeta) (value.Value, error) {
	depth := len(c.stack)
	if depth >= c.maxDepth {
		err := diag.Newf(diag.KindRecursionLimitExceeded,
			"maximum instantiation depth %d exceeded: %s", c.maxDepth, c.stackTrace(name)).
			WithSchema(name).WithMeta(meta)
		return value.Undefined(), c.report(err)
	}

	anc, err := c.Ancestry(name)
	if err != nil {
		if e, ok := diag.As(err); ok {
			e.WithMeta(meta)
		}
		return value.Undefined(), c.report(err)
	}

	c.serial++
	b := newBuilder(c, anc, lit, meta, c.serial, depth)

	parent := c.ctx
	spanCtx, span := c.tel.Tracer.StartInstantiateSpan(parent, name, depth)
	c.ctx = spanCtx
	c.stack = append(c.stack, b)
	timer := telemetry.NewTimer()

	v, err := b.run()

	c.stack = c.stack[:len(c.stack)-1]
	c.ctx = parent

	status := "success"
	if err != nil || b.failed {
		status = "failure"
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
	c.tel.Metrics.RecordInstantiation(name, status, timer.Duration())
	return v, err
}

// current returns the innermost instance under construction, or nil.
func (c *Context) current() *builder {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

func (c *Context) stackTrace(next string) string {
	const keep = 8
	names := make([]string, 0, keep+2)
	start := 0
	if len(c.stack) > keep {
		start = len(c.stack) - keep
		names = append(names, "...")
	}
	for _, b := range c.stack[start:] {
		names = append(names, b.anc.Schema.Name)
	}
	names = append(names, next)
	return strings.Join(names, " -> ")
}

// Instantiate evaluates a single instance in a fresh context and returns it
// with every recorded error.
func Instantiate(reg *Registry, name string, lit *value.Literal, meta diag.ConfigMeta, opts Options) (value.Value, error) {
	c, err := NewContext(context.Background(), reg, opts)
	if err != nil {
		return value.Undefined(), err
	}
	defer c.Close()

	v, stop := c.instantiate(name, lit, meta)
	if err := c.Err(); err != nil {
		return v, err
	}
	return v, stop
}
