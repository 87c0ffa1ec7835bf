package project

import (
	"os"
	"strings"
)

// resolver expands ${...} references. A reference that is unknown, or that
// refers back to itself through other properties, is left verbatim.
type resolver struct {
	lookup func(expr string) (string, bool)
	memo   map[string]string
}

func newResolver(lookup func(expr string) (string, bool)) *resolver {
	return &resolver{lookup: lookup, memo: make(map[string]string)}
}

func (r *resolver) resolve(s string) string {
	return r.expand(s, map[string]bool{})
}

func (r *resolver) expand(s string, active map[string]bool) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start
		expr := s[start+2 : end]
		b.WriteString(s[:start])
		if v, ok := r.value(expr, active); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return b.String()
}

func (r *resolver) value(expr string, active map[string]bool) (string, bool) {
	if v, ok := r.memo[expr]; ok {
		return v, true
	}
	if active[expr] {
		return "", false
	}
	if name, ok := strings.CutPrefix(expr, "env."); ok {
		return os.LookupEnv(name)
	}
	raw, ok := r.lookup(expr)
	if !ok {
		return "", false
	}
	active[expr] = true
	v := r.expand(raw, active)
	delete(active, expr)
	if !strings.Contains(v, "${") {
		r.memo[expr] = v
	}
	return v, true
}

// unresolved reports the first reference left in s, if any.
func unresolved(s string) (string, bool) {
	start := strings.Index(s, "${")
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start:], '}')
	if end < 0 {
		return "", false
	}
	return s[start+2 : start+end], true
}

// Interpolate expands the property references in s against the model. The
// second result names the first reference left unresolved, if any.
func (m *Model) Interpolate(s string) (string, string) {
	v := newResolver(m.Property).resolve(s)
	name, _ := unresolved(v)
	return v, name
}
