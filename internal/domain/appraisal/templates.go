package appraisal

import "slices"

// TemplateVisible reports whether the actor may import the template. Loose
// templates without a header are visible tenant-wide.
func TemplateVisible(t TemplateWithHeader, actor Actor) bool {
	if t.Template.TenantID != actor.TenantID {
		return false
	}
	h := t.Header
	if h == nil {
		return true
	}
	switch h.Visibility {
	case VisibilityOrganization:
		return h.Role == "" || h.Role == actor.Role
	case VisibilitySelf:
		return h.OwnerID == actor.EmployeeID || slices.Contains(h.SharedWith, actor.EmployeeID)
	}
	return false
}

func FilterTemplates(templates []TemplateWithHeader, actor Actor) []TemplateWithHeader {
	out := make([]TemplateWithHeader, 0, len(templates))
	for _, t := range templates {
		if TemplateVisible(t, actor) {
			out = append(out, t)
		}
	}
	return out
}
