package domain

// AccessContext identifies what a caller may read: the role names granted to
// them and the attributes matched against each document's access tags.
type AccessContext struct {
	RoleNames  []string
	Attributes map[string]any
}

// HasRoles reports whether at least one non-blank role is present.
func (a AccessContext) HasRoles() bool {
	for _, r := range a.RoleNames {
		if r != "" {
			return true
		}
	}
	return false
}

// Caller is the end user on whose behalf a question is asked.
type Caller struct {
	ID     string
	Access AccessContext
}
