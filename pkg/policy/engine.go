package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/telemetry"
	"github.com/openfroyo/confeval/pkg/value"
)

// Engine evaluates Rego policies against evaluated instances.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	order    []string
	store    storage.Store
	logger   *telemetry.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an empty policy engine. Built-in policies are opt-in
// through EnableBuiltins.
func NewEngine(logger *telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.New(),
		logger:   logger.NewComponentLogger("policy-engine"),
	}
}

// Add compiles a policy and registers it. A policy with the same name is
// replaced.
func (e *Engine) Add(ctx context.Context, policy Policy) error {
	if err := policyValidator.Struct(&policy); err != nil {
		return fmt.Errorf("invalid policy %s: %w", policy.Name, err)
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.compileAndStorePolicy(ctx, &policy)
}

// Load loads policy files and directories and compiles every policy found.
func (e *Engine) Load(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.WithField("count", len(policies)).Info("policies loaded")
	return nil
}

// EnableBuiltins compiles the built-in policies.
func (e *Engine) EnableBuiltins(ctx context.Context) error {
	builtins := GetBuiltinPolicies()

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range builtins {
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.WithField("count", len(builtins)).Debug("built-in policies enabled")
	return nil
}

// SetData publishes a document policies can read as data.<key>.
func (e *Engine) SetData(ctx context.Context, key string, doc interface{}) error {
	if key == "" || strings.Contains(key, "/") {
		return fmt.Errorf("invalid data key: %q", key)
	}
	if err := storage.WriteOne(ctx, e.store, storage.AddOp, storage.Path{key}, doc); err != nil {
		return fmt.Errorf("failed to write data %s: %w", key, err)
	}
	return nil
}

// compileAndStorePolicy compiles a policy and stores it. Callers hold e.mu.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name+".rego", policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.Module(policy.Name+".rego", policy.Rego),
		rego.Store(e.store),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	if _, exists := e.policies[policy.Name]; !exists {
		e.order = append(e.order, policy.Name)
	}
	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.WithFields(map[string]interface{}{
		"policy":  policy.Name,
		"package": module.Package.Path.String(),
	}).Debug("policy compiled")

	return nil
}

// Constrain runs every enabled policy against each instance in v, nested
// instances included. Warnings and info findings are logged; error and
// critical findings are returned as PolicyViolation diagnostics.
func (e *Engine) Constrain(ctx context.Context, v value.Value) diag.List {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var errs diag.List
	for _, inst := range value.Instances(v) {
		input, err := buildInput(inst)
		if err != nil {
			errs = append(errs, diag.Wrap(diag.KindEvaluationFailure, err, "policy input").
				WithSchema(inst.TypeName).WithMeta(inst.Meta))
			continue
		}

		for _, name := range e.order {
			cp := e.policies[name]
			if !cp.policy.Enabled {
				continue
			}

			violations, err := e.evaluatePolicy(ctx, cp, inst, input)
			if err != nil {
				e.logger.WithError(err).WithField("policy", name).Error("policy evaluation failed")
				errs = append(errs, diag.Wrap(diag.KindEvaluationFailure, err,
					fmt.Sprintf("policy %s", name)).WithSchema(inst.TypeName).WithMeta(inst.Meta))
				continue
			}

			for _, violation := range violations {
				if !violation.Severity.Blocking() {
					e.logger.WithFields(map[string]interface{}{
						"policy":   violation.Policy,
						"schema":   violation.Schema,
						"attr":     violation.Attr,
						"severity": string(violation.Severity),
						"location": violation.Meta.String(),
					}).Warn(violation.Message)
					continue
				}
				errs = append(errs, violation.Error())
			}
		}
	}
	return errs
}

// evaluatePolicy evaluates a single compiled policy against one instance.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, inst *value.Instance, input map[string]interface{}) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, inst, d))
		}
	}

	// Set iteration order is not stable across OPA versions.
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Attr != violations[j].Attr {
			return violations[i].Attr < violations[j].Attr
		}
		return violations[i].Message < violations[j].Message
	})

	return violations, nil
}

// createViolation creates a Violation from one deny element.
func createViolation(policy *Policy, inst *value.Instance, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Schema:   inst.TypeName,
		Severity: policy.Severity,
		Meta:     inst.Meta,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if attr, ok := v["attr"].(string); ok {
			violation.Attr = attr
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// buildInput projects an instance to the plain JSON document policies see.
func buildInput(inst *value.Instance) (map[string]interface{}, error) {
	data, err := json.Marshal(Input{
		Schema:    inst.TypeName,
		Attrs:     value.Plan(value.FromInstance(inst), value.PlanOptions{}),
		SubSchema: inst.SubSchema,
		File:      inst.Meta.Filename,
		Line:      inst.Meta.Line,
	})
	if err != nil {
		return nil, err
	}

	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return input, nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// List returns all registered policies in registration order.
func (e *Engine) List() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.order))
	for _, name := range e.order {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.WithFields(map[string]interface{}{
		"policy":  name,
		"enabled": enabled,
	}).Info("policy state changed")

	return nil
}
