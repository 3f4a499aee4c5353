// SPDX-License-Identifier: MIT

package model

import "dario.cat/mergo"

// CloneJSON deep-copies a config blob so merges never alias the input.
func CloneJSON(m JSON) JSON {
	if m == nil {
		return nil
	}
	out := make(JSON, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case JSON:
		return CloneJSON(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// DeepMerge merges overlay over base: maps merge recursively, non-map values
// replace. Neither input is mutated. Merging is associative for overlays with
// disjoint keys.
func DeepMerge(base, overlay JSON) JSON {
	out := CloneJSON(base)
	if out == nil {
		out = JSON{}
	}
	if len(overlay) == 0 {
		return out
	}
	// mergo deep-merges map values of the same shape; WithOverride makes the
	// overlay win on scalar conflicts.
	_ = mergo.Merge(&out, CloneJSON(overlay), mergo.WithOverride)
	return out
}
