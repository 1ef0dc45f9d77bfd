package allowlist

import "strings"

// matchPattern matches an ENS name against a dot-separated wildcard pattern.
// A "*" segment matches exactly one label, so "*.eth" matches "alice.eth" but
// not "a.b.eth". Literal segments compare case-insensitively.
func matchPattern(pattern, name string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	name = strings.ToLower(strings.TrimSpace(name))
	if pattern == "" || name == "" {
		return false
	}

	ps := strings.Split(pattern, ".")
	ns := strings.Split(name, ".")
	if len(ps) != len(ns) {
		return false
	}
	for i := range ps {
		if ps[i] == "*" {
			if ns[i] == "" {
				return false
			}
			continue
		}
		if ps[i] != ns[i] {
			return false
		}
	}
	return true
}
