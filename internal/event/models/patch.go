package models

import "sort"

// Patch is a typed, versioned declaration update: a map of dotted field
// paths to values, tagged with the form-schema version it was entered
// against. Patches merge last-writer-wins per path; map-valued leaves merge
// deeply so partial object updates do not clobber sibling keys.
type Patch struct {
	Version string         `json:"version"`
	Fields  map[string]any `json:"fields"`
}

// Clone returns a deep copy so callers can merge without aliasing the
// stored action payloads.
func (p *Patch) Clone() *Patch {
	if p == nil {
		return nil
	}
	return &Patch{Version: p.Version, Fields: cloneMap(p.Fields)}
}

// Declaration is the materialized current field state of an event: the
// left-fold of all accepted actions' patches in action order. It is derived,
// never written directly.
type Declaration struct {
	Version string         `json:"version"`
	Fields  map[string]any `json:"fields"`
}

// Apply folds a patch into the declaration, returning the result. The
// receiver is not modified.
func (d Declaration) Apply(p *Patch) Declaration {
	out := Declaration{Version: d.Version, Fields: cloneMap(d.Fields)}
	if p == nil {
		return out
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	if p.Version != "" {
		out.Version = p.Version
	}
	for path, v := range p.Fields {
		out.Fields[path] = mergeValue(out.Fields[path], v)
	}
	return out
}

// Get returns the current value at a dotted field path.
func (d Declaration) Get(path string) (any, bool) {
	v, ok := d.Fields[path]
	return v, ok
}

// Attachments returns the distinct file references reachable from the
// declaration, sorted for deterministic iteration.
func (d Declaration) Attachments() []string {
	set := map[string]struct{}{}
	for _, v := range d.Fields {
		collectAttachments(v, set)
	}
	return sortedKeys(set)
}

// Attachments returns the distinct file references inside the patch.
func (p *Patch) Attachments() []string {
	if p == nil {
		return nil
	}
	set := map[string]struct{}{}
	for _, v := range p.Fields {
		collectAttachments(v, set)
	}
	return sortedKeys(set)
}

// mergeValue implements the merge rule: deep merge when both sides are
// objects, last-writer-wins otherwise.
func mergeValue(old, next any) any {
	om, okOld := old.(map[string]any)
	nm, okNext := next.(map[string]any)
	if !okOld || !okNext {
		return cloneValue(next)
	}
	out := cloneMap(om)
	for k, v := range nm {
		out[k] = mergeValue(out[k], v)
	}
	return out
}

// collectAttachments walks a value looking for file references. A file
// reference is an object carrying a string "filename" key, possibly nested
// inside arrays (multi-file fields).
func collectAttachments(v any, into map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		if name, ok := t["filename"].(string); ok && name != "" {
			into[name] = struct{}{}
			return
		}
		for _, nested := range t {
			collectAttachments(nested, into)
		}
	case []any:
		for _, item := range t {
			collectAttachments(item, into)
		}
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
