package schema

import (
	"strings"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/telemetry"
	"github.com/openfroyo/confeval/pkg/value"
)

// State is a step of the instantiation state machine.
type State uint8

const (
	StateInit State = iota
	StateDefaultsApplied
	StateBodyApplied
	StateMixinsApplied
	StateIndexSignatureChecked
	StateOptionalChecked
	StateValidationChecked
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:                  "Init",
	StateDefaultsApplied:       "DefaultsApplied",
	StateBodyApplied:           "BodyApplied",
	StateMixinsApplied:         "MixinsApplied",
	StateIndexSignatureChecked: "IndexSignatureChecked",
	StateOptionalChecked:       "OptionalChecked",
	StateValidationChecked:     "ValidationChecked",
	StateDone:                  "Done",
	StateFailed:                "Failed",
}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

type setterKind uint8

const (
	setDefault setterKind = iota
	setStmt
	setConfig
)

// setter is one write to an attribute, in initialization order.
type setter struct {
	kind  setterKind
	seg   int
	attr  *Attr
	stmt  *Stmt
	entry value.Entry
}

func (s setter) meta() diag.ConfigMeta {
	switch s.kind {
	case setDefault:
		return s.attr.Meta
	case setStmt:
		return s.stmt.Meta
	}
	return s.entry.Meta
}

// declared describes an attribute of the declared set.
type declared struct {
	typ      *Type
	optional bool
	meta     diag.ConfigMeta
}

// builder carries one instance through the state machine.
type builder struct {
	c     *Context
	anc   *Ancestry
	lit   *value.Literal
	inst  *value.Instance
	cache *Cache
	log   *telemetry.Logger

	id    int
	depth int
	state State

	// names lists every declared or assigned name in output order.
	names    []string
	decls    map[string]*declared
	setters  map[string][]setter
	sig      *IndexSignature
	sigKey   *Type
	sigValue *Type

	// locals are bound while checks run, e.g. the index signature key name.
	locals map[string]value.Value
	failed bool
}

func newBuilder(c *Context, anc *Ancestry, lit *value.Literal, meta diag.ConfigMeta, id, depth int) *builder {
	inst := value.NewInstance(anc.Schema.Name, meta)
	inst.Base = anc.Base
	inst.Mixins = append([]value.SchemaID(nil), anc.Mixins...)
	inst.SubSchema = depth > 0

	return &builder{
		c:       c,
		anc:     anc,
		lit:     lit,
		inst:    inst,
		cache:   NewCache(id),
		log:     c.log.WithSchema(anc.Schema.Name, id),
		id:      id,
		depth:   depth,
		decls:   make(map[string]*declared),
		setters: make(map[string][]setter),
	}
}

// run drives the instance from Init to Done. The returned error is non-nil
// only when evaluation must stop; failures recorded in collect-all mode
// leave the instance usable.
func (b *builder) run() (value.Value, error) {
	b.init()

	steps := []struct {
		next State
		fn   func() error
	}{
		{StateDefaultsApplied, b.applyDefaults},
		{StateBodyApplied, b.applyBody},
		{StateMixinsApplied, b.applyMixins},
		{StateIndexSignatureChecked, b.checkIndexSignature},
		{StateOptionalChecked, b.checkOptional},
		{StateValidationChecked, b.runChecks},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			b.transition(StateFailed)
			b.failed = true
			return value.Undefined(), err
		}
		b.transition(step.next)
	}

	b.finish()
	b.transition(StateDone)
	return value.FromInstance(b.inst), nil
}

func (b *builder) transition(next State) {
	b.log.Tracef("%s -> %s", b.state, next)
	b.state = next
}

// init collects the declared set, the setters of every name and the
// inherited index signature, then pre-inserts every name as Undefined.
func (b *builder) init() {
	for i, seg := range b.anc.Order {
		decl := seg.Schema
		for j := range decl.Attrs {
			attr := &decl.Attrs[j]
			if _, ok := b.decls[attr.Name]; !ok {
				b.names = append(b.names, attr.Name)
			}
			b.decls[attr.Name] = &declared{
				typ:      b.c.reg.attrType(seg.ID, j),
				optional: attr.Optional,
				meta:     attr.Meta,
			}
			if attr.Default != nil {
				b.addSetter(attr.Name, setter{kind: setDefault, seg: i, attr: attr})
			}
		}
		for j := range decl.Body {
			stmt := &decl.Body[j]
			if _, ok := b.decls[stmt.Target]; !ok {
				b.names = append(b.names, stmt.Target)
				b.decls[stmt.Target] = &declared{typ: anyType, optional: true, meta: stmt.Meta}
			}
			b.addSetter(stmt.Target, setter{kind: setStmt, seg: i, stmt: stmt})
		}
		if decl.IndexSignature != nil {
			b.sig = decl.IndexSignature
		}
		if i == b.anc.Self && b.lit != nil {
			for _, e := range b.lit.Entries {
				b.addSetter(e.Key, setter{kind: setConfig, seg: i, entry: e})
			}
		}
	}
	if b.sig != nil {
		// Registration validated both type expressions.
		b.sigKey, _ = ParseType(b.sig.KeyType)
		b.sigValue, _ = ParseType(b.sig.ValueType)
		b.inst.IndexSignature = &value.IndexSignature{
			KeyName:   b.sig.KeyName,
			KeyType:   b.sig.KeyType,
			ValueType: b.sig.ValueType,
		}
	}

	for _, name := range b.names {
		b.inst.SetOptional(name, b.decls[name].optional)
		_ = b.inst.Attrs.Set(name, value.Undefined())
	}
	for _, key := range b.lit.Keys() {
		if !b.inst.Attrs.Has(key) {
			b.names = append(b.names, key)
			_ = b.inst.Attrs.Set(key, value.Undefined())
		}
	}
	b.log.Tracef("initialized %d attribute(s) from %d segment(s)", len(b.names), len(b.anc.Order))
}

func (b *builder) addSetter(name string, s setter) {
	b.setters[name] = append(b.setters[name], s)
}

func (b *builder) applyDefaults() error {
	for _, seg := range b.anc.Order {
		for _, attr := range seg.Schema.Attrs {
			if _, err := b.resolve(attr.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) applyBody() error {
	for i := 0; i <= b.anc.Self; i++ {
		if b.anc.Order[i].Role == RoleMixin {
			continue
		}
		for _, stmt := range b.anc.Order[i].Schema.Body {
			if _, err := b.resolve(stmt.Target); err != nil {
				return err
			}
		}
	}
	for _, key := range b.lit.Keys() {
		if _, err := b.resolve(key); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) applyMixins() error {
	for _, seg := range b.anc.Order {
		if seg.Role != RoleMixin {
			continue
		}
		for _, stmt := range seg.Schema.Body {
			if _, err := b.resolve(stmt.Target); err != nil {
				return err
			}
		}
	}
	return nil
}

// known reports whether name is an attribute of the instance.
func (b *builder) known(name string) bool {
	if _, ok := b.setters[name]; ok {
		return true
	}
	return b.inst.Attrs.Has(name)
}

// resolve returns the value of name, computing it on first access. A read
// of the attribute whose setters are running returns its partial value; a
// read of any other pending attribute is a reference cycle.
func (b *builder) resolve(name string) (value.Value, error) {
	switch entry := b.cache.State(name); entry.Phase {
	case Resolved:
		return entry.Value, nil
	case Pending:
		if b.cache.Current() == name {
			return b.inst.Attrs.Lookup(name), nil
		}
		err := b.cache.cycleError(name).WithSchema(b.anc.Schema.Name).WithMeta(b.inst.Meta)
		return value.Undefined(), err
	}

	if outer := b.cache.Current(); outer != "" {
		b.c.tel.Metrics.RecordBacktrack()
		b.log.Tracef("backtrack from '%s' to '%s'", outer, name)
	}
	if err := b.cache.Begin(name, b.depth); err != nil {
		return value.Undefined(), err
	}

	for _, s := range b.setters[name] {
		if err := b.apply(name, s); err != nil {
			if stop := b.fail(err, name, s.meta()); stop != nil {
				b.cache.Resolve(name, b.inst.Attrs.Lookup(name))
				return value.Undefined(), stop
			}
		}
	}

	v, err := b.pack(name, b.inst.Attrs.Lookup(name))
	if err != nil {
		if stop := b.fail(err, name, b.declMeta(name)); stop != nil {
			b.cache.Resolve(name, v)
			return value.Undefined(), stop
		}
	}
	_ = b.inst.Attrs.Set(name, v)
	b.cache.Resolve(name, v)
	return v, nil
}

// apply runs one setter of name.
func (b *builder) apply(name string, s setter) error {
	frame := b.frame(name)
	switch s.kind {
	case setDefault:
		v, err := s.attr.Default(frame)
		if err != nil {
			return err
		}
		return b.write(name, v, value.OpOverride, s.attr.Meta)

	case setStmt:
		for _, g := range s.stmt.Guards {
			cond, err := g.Cond(frame)
			if err != nil {
				return err
			}
			if cond.Truthy() != g.Want {
				return nil
			}
		}
		v, err := s.stmt.Value(frame)
		if err != nil {
			return err
		}
		return b.write(name, v, s.stmt.Op, s.stmt.Meta)

	case setConfig:
		return s.entry.Apply(b.inst.Attrs)
	}
	return nil
}

func (b *builder) write(name string, v value.Value, op value.Op, meta diag.ConfigMeta) error {
	if v.Meta().IsZero() {
		v = v.WithMeta(meta)
	}
	return b.inst.Attrs.Insert(name, v, op)
}

// fail decorates err with the instance context and reports it.
func (b *builder) fail(err error, attr string, meta diag.ConfigMeta) error {
	e := diag.From(err, diag.KindEvaluationFailure)
	e.WithSchema(b.anc.Schema.Name).WithAttr(attr).WithMeta(meta).WithMeta(b.inst.Meta)
	b.failed = true
	b.log.WithError(e).Debugf("attribute '%s' failed", attr)
	return b.c.report(e)
}

func (b *builder) declMeta(name string) diag.ConfigMeta {
	if d, ok := b.decls[name]; ok {
		return d.meta
	}
	return b.inst.Meta
}

// pack converts v to the declared type of name: dicts assigned to schema
// types are instantiated, merged instances are rebuilt and ints widen to
// float. The result must match the type.
func (b *builder) pack(name string, v value.Value) (value.Value, error) {
	d, ok := b.decls[name]
	if !ok || d.typ.IsAny() {
		return v, nil
	}
	return b.packAs(v, d.typ, diag.KindTypeMismatch)
}

func (b *builder) packAs(v value.Value, t *Type, kind diag.Kind) (value.Value, error) {
	packed, err := b.convert(v, t)
	if err != nil {
		return v, err
	}
	if !t.Match(packed, b.c.IsA) {
		return packed, diag.Newf(kind, "expected %s, got %s", t, packed.TypeName()).WithMeta(v.Meta())
	}
	return packed, nil
}

func (b *builder) convert(v value.Value, t *Type) (value.Value, error) {
	if v.IsNoneOrUndefined() {
		return v, nil
	}
	switch t.kind {
	case typeSchema:
		switch {
		case v.Kind() == value.KindDict:
			lit := value.LiteralFromDict(v.AsDict(), value.OpUnion)
			return b.nested(t.name, lit, v.Meta())
		case v.Kind() == value.KindSchema && v.AsInstance().Merged:
			inst := v.AsInstance()
			lit := value.LiteralFromDict(inst.Attrs, value.OpOverride)
			return b.nested(inst.TypeName, lit, v.Meta())
		}

	case typeFloat:
		if v.Kind() == value.KindInt {
			return value.Float(float64(v.AsInt())).WithMeta(v.Meta()), nil
		}

	case typeList:
		if v.Kind() != value.KindList || v.AsList().Frozen() {
			return v, nil
		}
		l := v.AsList()
		for i, item := range l.Items() {
			packed, err := b.convert(item, t.elem)
			if err != nil {
				return v, err
			}
			if err := l.Set(i, packed); err != nil {
				return v, err
			}
		}

	case typeDict:
		if v.Kind() != value.KindDict || v.AsDict().Frozen() {
			return v, nil
		}
		dict := v.AsDict()
		for _, key := range dict.Keys() {
			packed, err := b.convert(dict.Lookup(key), t.elem)
			if err != nil {
				return v, err
			}
			if err := dict.Set(key, packed); err != nil {
				return v, err
			}
		}

	case typeUnion:
		if t.Match(v, b.c.IsA) {
			return v, nil
		}
		for _, alt := range t.alts {
			if alt.kind == typeSchema && v.Kind() == value.KindDict {
				return b.convert(v, alt)
			}
		}
		for _, alt := range t.alts {
			if packed, err := b.convert(v, alt); err == nil && alt.Match(packed, b.c.IsA) {
				return packed, nil
			}
		}
	}
	return v, nil
}

// nested instantiates a schema-typed attribute value.
func (b *builder) nested(name string, lit *value.Literal, meta diag.ConfigMeta) (value.Value, error) {
	if meta.IsZero() {
		meta = b.inst.Meta
	}
	v, err := b.c.instantiate(name, lit, meta)
	if err != nil {
		return value.Undefined(), err
	}
	return v, nil
}

// checkIndexSignature validates the keys outside the declared set.
func (b *builder) checkIndexSignature() error {
	for _, key := range b.relaxedKeys() {
		v := b.inst.Attrs.Lookup(key)
		meta := b.configMeta(key)
		if b.sig == nil {
			err := diag.Newf(diag.KindUndeclaredAttribute,
				"No attribute named '%s' in the schema '%s'", key, b.anc.Schema.Name).
				WithAttr(key).WithMeta(meta)
			if stop := b.fail(err, key, meta); stop != nil {
				return stop
			}
			continue
		}
		if !b.sigKey.Match(value.Str(key), b.c.IsA) {
			err := diag.Newf(diag.KindIndexSignatureViolation,
				"attribute key '%s' does not match index signature key type %s", key, b.sigKey).
				WithMeta(meta).WithRelated(b.sig.Meta)
			if stop := b.fail(err, key, meta); stop != nil {
				return stop
			}
			continue
		}
		packed, err := b.packAs(v, b.sigValue, diag.KindIndexSignatureViolation)
		if err != nil {
			if e, ok := diag.As(err); ok {
				e.WithRelated(b.sig.Meta)
			}
			if stop := b.fail(err, key, meta); stop != nil {
				return stop
			}
			continue
		}
		_ = b.inst.Attrs.Set(key, packed)
		b.cache.Resolve(key, packed)
	}
	return nil
}

// relaxedKeys returns the non-private attribute keys outside the declared set.
func (b *builder) relaxedKeys() []string {
	var keys []string
	for _, key := range b.inst.Attrs.Keys() {
		if _, ok := b.decls[key]; ok || strings.HasPrefix(key, "_") {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (b *builder) configMeta(key string) diag.ConfigMeta {
	if entries := b.lit.EntriesFor(key); len(entries) > 0 {
		return entries[0].Meta
	}
	return b.inst.Meta
}

// checkOptional reports non-optional attributes left None or Undefined.
func (b *builder) checkOptional() error {
	for _, name := range b.names {
		d, ok := b.decls[name]
		if !ok || d.optional {
			continue
		}
		if b.inst.Attrs.Lookup(name).IsNoneOrUndefined() {
			if stop := b.fail(requiredMissing(name, b.anc.Schema.Name, b.inst.Meta).WithRelated(d.meta), name, b.inst.Meta); stop != nil {
				return stop
			}
		}
	}
	return nil
}

func requiredMissing(attr, schema string, meta diag.ConfigMeta) *diag.Error {
	return diag.Newf(diag.KindRequiredAttributeMissing,
		"attribute '%s' of %s is required and can't be None or Undefined", attr, schema).
		WithSchema(schema).WithAttr(attr).WithMeta(meta)
}

// runChecks evaluates the check blocks of the base chain, the schema and its
// mixins. With a named index signature key the checks run once per relaxed
// key with the name bound to it.
func (b *builder) runChecks() error {
	if b.sig != nil && b.sig.KeyName != "" {
		defer func() { b.locals = nil }()
		for _, key := range b.relaxedKeys() {
			b.locals = map[string]value.Value{b.sig.KeyName: value.Str(key)}
			if err := b.runChecksOnce(); err != nil {
				return err
			}
		}
		return nil
	}
	return b.runChecksOnce()
}

func (b *builder) runChecksOnce() error {
	frame := b.frame("")
	for _, seg := range b.anc.Order {
		for _, check := range seg.Schema.Checks {
			ok, err := check.Cond(frame)
			if err != nil {
				e := diag.From(err, diag.KindEvaluationFailure)
				if e.Expr == "" && e.Kind == diag.KindEvaluationFailure {
					e.WithExpr(check.Text)
				}
				if stop := b.fail(e, "", check.Meta); stop != nil {
					return stop
				}
				continue
			}
			if ok.Truthy() {
				continue
			}
			msg := check.Message
			if msg == "" {
				msg = "Instance check failed"
			}
			err = diag.New(diag.KindSchemaCheckFailure, msg).
				WithExpr(check.Text).WithMeta(check.Meta).WithRelated(b.inst.Meta)
			if stop := b.fail(err, "", check.Meta); stop != nil {
				return stop
			}
		}
	}
	return nil
}

// finish compacts list placeholders and freezes the instance.
func (b *builder) finish() {
	b.inst.Attrs.Range(func(_ string, v value.Value) bool {
		compact(v)
		return true
	})
	b.inst.Freeze()
	b.cache.Reset()
}

func compact(v value.Value) {
	switch v.Kind() {
	case value.KindList:
		l := v.AsList()
		if l.Frozen() {
			return
		}
		l.Compact()
		for _, item := range l.Items() {
			compact(item)
		}
	case value.KindDict:
		if v.AsDict().Frozen() {
			return
		}
		v.AsDict().Range(func(_ string, item value.Value) bool {
			compact(item)
			return true
		})
	}
}

var anyType = &Type{kind: typeAny, text: "any"}
