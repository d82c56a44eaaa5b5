// Package annotation defines the annotation document shape shared by the
// storage service, the gateway and the authorization code.
package annotation

// Field names with meaning outside the storage service.
const (
	FieldID          = "id"
	FieldUser        = "user"
	FieldConsumer    = "consumer"
	FieldDeleted     = "deleted"
	FieldPermissions = "permissions"
	FieldCreated     = "created"
	FieldUpdated     = "updated"
)

// Well-known permission actions.
const (
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionAdmin  = "admin"
)

// Annotation is a JSON document. Only a handful of fields are interpreted;
// everything else is carried through untouched.
type Annotation map[string]any

// Permissions maps an action name to the ordered principals allowed to
// perform it.
type Permissions map[string][]string

// Factory wraps a raw document into the annotation shape used by the
// application. It is injected at startup so deployments can swap the shape.
type Factory func(map[string]any) Annotation

// New is the default Factory. It shares the underlying map with data.
func New(data map[string]any) Annotation {
	if data == nil {
		return Annotation{}
	}
	return Annotation(data)
}

// ID returns the storage assigned identifier.
func (a Annotation) ID() string {
	s, _ := a[FieldID].(string)
	return s
}

// User returns the author identity, "" when anonymous.
func (a Annotation) User() string {
	s, _ := a[FieldUser].(string)
	return s
}

// SetUser replaces the author identity.
func (a Annotation) SetUser(user string) {
	a[FieldUser] = user
}

// Deleted reports the soft-delete marker.
func (a Annotation) Deleted() bool {
	b, _ := a[FieldDeleted].(bool)
	return b
}

// Permissions returns a copy of the permission grants. Lists decoded from
// JSON ([]any) and lists set from Go ([]string) are both understood; non
// string principals are skipped.
func (a Annotation) Permissions() Permissions {
	raw, ok := a[FieldPermissions]
	if !ok || raw == nil {
		return Permissions{}
	}
	out := Permissions{}
	switch m := raw.(type) {
	case map[string]any:
		for action, v := range m {
			out[action] = toStrings(v)
		}
	case map[string][]string:
		for action, v := range m {
			out[action] = append([]string(nil), v...)
		}
	case Permissions:
		for action, v := range m {
			out[action] = append([]string(nil), v...)
		}
	}
	return out
}

// HasPermissions reports whether a permissions field is present.
func (a Annotation) HasPermissions() bool {
	_, ok := a[FieldPermissions]
	return ok
}

// SetPermissions writes grants back in the JSON-decoded representation.
func (a Annotation) SetPermissions(p Permissions) {
	m := make(map[string]any, len(p))
	for action, principals := range p {
		list := make([]any, len(principals))
		for i, principal := range principals {
			list[i] = principal
		}
		m[action] = list
	}
	a[FieldPermissions] = m
}

// Clone returns a shallow copy with its own permission lists.
func (a Annotation) Clone() Annotation {
	out := make(Annotation, len(a))
	for k, v := range a {
		out[k] = v
	}
	if raw, ok := a[FieldPermissions]; ok {
		out[FieldPermissions] = clonePermissions(raw)
	}
	return out
}

// clonePermissions copies the grant map and its lists without normalizing
// the principals, so unknown entries survive.
func clonePermissions(raw any) any {
	switch m := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(m))
		for action, v := range m {
			switch list := v.(type) {
			case []any:
				out[action] = append([]any(nil), list...)
			case []string:
				out[action] = append([]string(nil), list...)
			default:
				out[action] = v
			}
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(m))
		for action, v := range m {
			out[action] = append([]string(nil), v...)
		}
		return out
	case Permissions:
		out := make(Permissions, len(m))
		for action, v := range m {
			out[action] = append([]string(nil), v...)
		}
		return out
	}
	return raw
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{list}
	default:
		return nil
	}
}
