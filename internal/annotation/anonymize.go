package annotation

// Anonymize scrubs the author out of a soft-deleted annotation: the user field
// is cleared and the author is removed from every permission list, keeping the
// order and the shape of the remaining principals. It is a no-op for live
// annotations and for annotations without an author.
func Anonymize(a Annotation) {
	if a == nil || !a.Deleted() {
		return
	}
	removed := a.User()
	if removed == "" {
		return
	}
	a.SetUser("")

	switch m := a[FieldPermissions].(type) {
	case map[string]any:
		for action, v := range m {
			m[action] = withoutPrincipal(v, removed)
		}
	case map[string][]string:
		for action, v := range m {
			m[action] = withoutString(v, removed)
		}
	case Permissions:
		for action, v := range m {
			m[action] = withoutString(v, removed)
		}
	}
}

// withoutPrincipal drops entries equal to removed from a decoded grant.
// Entries of any other type are kept as they are; a scalar grant naming the
// author becomes an empty list.
func withoutPrincipal(v any, removed string) any {
	switch list := v.(type) {
	case []any:
		out := make([]any, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s == removed {
				continue
			}
			out = append(out, item)
		}
		return out
	case []string:
		return withoutString(list, removed)
	case string:
		if list == removed {
			return []any{}
		}
	}
	return v
}

func withoutString(list []string, removed string) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		if p != removed {
			out = append(out, p)
		}
	}
	return out
}
