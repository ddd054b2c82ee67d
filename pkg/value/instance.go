package value

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/openfroyo/confeval/pkg/diag"
)

// SchemaID identifies a registered schema declaration.
type SchemaID int

// NoSchema marks an absent base schema.
const NoSchema SchemaID = -1

// IndexSignature permits attributes outside the declared set, subject to key
// and value types. KeyName, when set, is bound to each such key while the
// schema checks run.
type IndexSignature struct {
	KeyName   string
	KeyType   string
	ValueType string
}

// Instance is a schema instance. Its attributes are an ordinary Dict, so
// every dict operator applies to them.
type Instance struct {
	TypeName string
	Base     SchemaID
	Mixins   []SchemaID
	Attrs    *Dict

	// Optional maps each declared attribute to whether it may be None.
	Optional *orderedmap.OrderedMap[string, bool]

	IndexSignature *IndexSignature
	Meta           diag.ConfigMeta

	// SubSchema is set on instances constructed while another instantiation
	// was in progress.
	SubSchema bool

	// Merged is set when a finished instance was unioned with more config
	// after the fact. Its checks have not run against the merged attributes.
	Merged bool
}

// NewInstance creates an empty, unfinished instance.
func NewInstance(typeName string, meta diag.ConfigMeta) *Instance {
	return &Instance{
		TypeName: typeName,
		Base:     NoSchema,
		Attrs:    NewDict(),
		Optional: orderedmap.New[string, bool](),
		Meta:     meta,
	}
}

// Get returns the attribute value.
func (inst *Instance) Get(name string) (Value, bool) {
	return inst.Attrs.Get(name)
}

// SetOptional records whether the attribute may be None or Undefined.
func (inst *Instance) SetOptional(name string, optional bool) {
	inst.Optional.Set(name, optional)
}

// IsRequired reports whether name is a declared, non-optional attribute.
func (inst *Instance) IsRequired(name string) bool {
	optional, ok := inst.Optional.Get(name)
	return ok && !optional
}

// Declared reports whether name is part of the declared attribute set.
func (inst *Instance) Declared(name string) bool {
	_, ok := inst.Optional.Get(name)
	return ok
}

// Freeze finishes the instance; further writes fail with ImmutableWrite.
func (inst *Instance) Freeze() {
	inst.Attrs.Freeze()
}

// Frozen reports whether the instance is finished.
func (inst *Instance) Frozen() bool {
	return inst.Attrs.Frozen()
}

func (inst *Instance) clone() *Instance {
	out := &Instance{
		TypeName:  inst.TypeName,
		Base:      inst.Base,
		Mixins:    append([]SchemaID(nil), inst.Mixins...),
		Attrs:     inst.Attrs.DeepCopy(),
		Optional:  orderedmap.New[string, bool](),
		Meta:      inst.Meta,
		SubSchema: inst.SubSchema,
		Merged:    inst.Merged,
	}
	for pair := inst.Optional.Oldest(); pair != nil; pair = pair.Next() {
		out.Optional.Set(pair.Key, pair.Value)
	}
	if inst.IndexSignature != nil {
		sig := *inst.IndexSignature
		out.IndexSignature = &sig
	}
	return out
}

// Instances returns every schema instance reachable from v, outermost
// first, in key and list order.
func Instances(v Value) []*Instance {
	var out []*Instance
	walkInstances(v, func(inst *Instance) { out = append(out, inst) })
	return out
}

func walkInstances(v Value, visit func(*Instance)) {
	switch v.Kind() {
	case KindSchema:
		visit(v.AsInstance())
		v.AsInstance().Attrs.Range(func(_ string, item Value) bool {
			walkInstances(item, visit)
			return true
		})
	case KindDict:
		v.AsDict().Range(func(_ string, item Value) bool {
			walkInstances(item, visit)
			return true
		})
	case KindList:
		for _, item := range v.AsList().Items() {
			walkInstances(item, visit)
		}
	}
}
