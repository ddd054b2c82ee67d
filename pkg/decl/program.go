package decl

import (
	"context"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/value"
)

// Instance is a compiled top-level instance.
type Instance struct {
	Name   string
	Schema string
	Config *value.Literal
	Meta   diag.ConfigMeta
}

// Program is a compiled declaration file: a schema registry and the
// instances to evaluate against it.
type Program struct {
	Registry  *schema.Registry
	Instances []Instance

	constraints []Constraint
}

// Constraint validates evaluated instances. Overlays and policy engines
// implement it.
type Constraint interface {
	Constrain(ctx context.Context, v value.Value) diag.List
}

// Apply attaches an overlay. Its fragments are unioned after the config of
// the instance they name and its constraints run after evaluation. Overlays
// apply in the order they are attached.
func (p *Program) Apply(o *Overlay) error {
	var errs diag.List
	for _, frag := range o.Fragments {
		inst := p.instance(frag.Instance)
		if inst == nil {
			errs = append(errs, diag.Newf(diag.KindUndeclaredAttribute,
				"overlay names unknown instance '%s'", frag.Instance).WithMeta(frag.Meta))
			continue
		}
		inst.Config = inst.Config.Concat(frag.Config)
	}
	p.constraints = append(p.constraints, o)
	return errs.Err()
}

// Constrain adds a constraint that runs on every evaluated top-level
// instance, after the constraints added before it.
func (p *Program) Constrain(c Constraint) {
	p.constraints = append(p.constraints, c)
}

func (p *Program) instance(name string) *Instance {
	for i := range p.Instances {
		if p.Instances[i].Name == name {
			return &p.Instances[i]
		}
	}
	return nil
}

// Evaluate instantiates every instance in declaration order in one
// evaluation context and returns them keyed by instance name. In
// collect-all mode the result is returned together with every error.
func (p *Program) Evaluate(ctx context.Context, opts schema.Options) (*value.Dict, error) {
	c, err := schema.NewContext(ctx, p.Registry, opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	out := value.NewDict()
	for _, inst := range p.Instances {
		c.Logger().WithField("instance", inst.Name).Debug("evaluating instance")

		v, err := c.Instantiate(inst.Schema, inst.Config, inst.Meta)
		if err != nil && opts.Mode == diag.FailFast {
			return nil, err
		}
		if v.IsUndefined() {
			continue
		}
		for _, cons := range p.constraints {
			for _, e := range cons.Constrain(ctx, v) {
				if stop := c.Report(e); stop != nil {
					return nil, stop
				}
			}
		}
		if err := out.Set(inst.Name, v); err != nil {
			return nil, err
		}
	}

	return out, c.Err()
}

// Schemas describes the registered schemas in registration order.
func (p *Program) Schemas() []string {
	names := p.Registry.Names()
	out := make([]string, 0, len(names))
	for _, name := range names {
		s, _, err := p.Registry.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, schema.Describe(s))
	}
	return out
}

// Validate evaluates the program and discards the result. It reports every
// error regardless of opts.Mode.
func (p *Program) Validate(ctx context.Context, opts schema.Options) error {
	opts.Mode = diag.CollectAll
	_, err := p.Evaluate(ctx, opts)
	return err
}
