package value

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// PlanOptions controls projection.
type PlanOptions struct {
	// IncludeNone keeps attributes whose value is None.
	IncludeNone bool
}

// Plan projects a finished value graph onto plain Go data: dicts and
// instances become *orderedmap.OrderedMap[string, any], lists []any, and
// scalars their Go equivalents. Undefined values, functions, private keys
// and placeholder slots are dropped. The result marshals with encoding/json
// and gopkg.in/yaml.v3 in key order.
func Plan(v Value, opts PlanOptions) any {
	out, _ := plan(v, opts)
	return out
}

// plan returns the projection and whether it should be emitted at all.
func plan(v Value, opts PlanOptions) (any, bool) {
	switch v.kind {
	case KindUndefined, KindFunc:
		return nil, false
	case KindNone:
		return nil, opts.IncludeNone
	case KindBool:
		return v.b, true
	case KindInt:
		return v.i, true
	case KindFloat:
		return v.f, true
	case KindStr:
		return v.s, true
	case KindError:
		return v.err.Error(), true
	case KindList:
		items := make([]any, 0, v.list.Len())
		for _, item := range v.list.items {
			if p, ok := plan(item, opts); ok {
				items = append(items, p)
			}
		}
		return items, true
	case KindDict, KindSchema:
		return planDict(v.AsDict(), opts), true
	}
	return nil, false
}

func planDict(d *Dict, opts PlanOptions) *orderedmap.OrderedMap[string, any] {
	out := orderedmap.New[string, any]()
	d.Range(func(key string, item Value) bool {
		if strings.HasPrefix(key, "_") {
			return true
		}
		if p, ok := plan(item, opts); ok {
			out.Set(key, p)
		}
		return true
	})
	return out
}
