package schema

import (
	"strings"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/value"
)

// CheckOptional reports every required attribute of inst that is None or
// Undefined. With recursive set, nested instances reachable through
// attributes, lists and dicts are checked too.
func CheckOptional(inst *value.Instance, recursive bool) error {
	var errs diag.List
	checkOptional(inst, recursive, &errs)
	return errs.Err()
}

func checkOptional(inst *value.Instance, recursive bool, errs *diag.List) {
	inst.Attrs.Range(func(name string, v value.Value) bool {
		if inst.IsRequired(name) && v.IsNoneOrUndefined() {
			*errs = append(*errs, requiredMissing(name, inst.TypeName, inst.Meta))
		}
		if recursive {
			walkInstances(v, func(nested *value.Instance) {
				checkOptional(nested, true, errs)
			})
		}
		return true
	})
}

func walkInstances(v value.Value, fn func(*value.Instance)) {
	switch v.Kind() {
	case value.KindSchema:
		fn(v.AsInstance())
	case value.KindList:
		for _, item := range v.AsList().Items() {
			walkInstances(item, fn)
		}
	case value.KindDict:
		v.AsDict().Range(func(_ string, item value.Value) bool {
			walkInstances(item, fn)
			return true
		})
	}
}

// CheckIndexSignature reports the undeclared, non-private attributes of inst
// that its index signature does not admit. Schema types in the signature are
// resolved through reg.
func CheckIndexSignature(reg *Registry, inst *value.Instance) error {
	var errs diag.List
	isA := func(name, target string) bool {
		if name == target {
			return true
		}
		a, err := reg.Resolve(name)
		return err == nil && a.IsA(target)
	}

	var keyType, valueType *Type
	if sig := inst.IndexSignature; sig != nil {
		var err error
		if keyType, err = ParseType(sig.KeyType); err != nil {
			return diag.Wrap(diag.KindTypeMismatch, err, "invalid index signature key type").WithSchema(inst.TypeName)
		}
		if valueType, err = ParseType(sig.ValueType); err != nil {
			return diag.Wrap(diag.KindTypeMismatch, err, "invalid index signature value type").WithSchema(inst.TypeName)
		}
	}

	inst.Attrs.Range(func(key string, v value.Value) bool {
		if inst.Declared(key) || strings.HasPrefix(key, "_") {
			return true
		}
		switch {
		case keyType == nil:
			errs = append(errs, diag.Newf(diag.KindUndeclaredAttribute,
				"No attribute named '%s' in the schema '%s'", key, inst.TypeName).
				WithSchema(inst.TypeName).WithAttr(key).WithMeta(v.Meta()).WithMeta(inst.Meta))
		case !keyType.Match(value.Str(key), isA):
			errs = append(errs, diag.Newf(diag.KindIndexSignatureViolation,
				"attribute key '%s' does not match index signature key type %s", key, keyType).
				WithSchema(inst.TypeName).WithAttr(key).WithMeta(v.Meta()).WithMeta(inst.Meta))
		case !valueType.Match(v, isA):
			errs = append(errs, diag.Newf(diag.KindIndexSignatureViolation,
				"expected %s, got %s", valueType, v.TypeName()).
				WithSchema(inst.TypeName).WithAttr(key).WithMeta(v.Meta()).WithMeta(inst.Meta))
		}
		return true
	})
	return errs.Err()
}
