package contribution

import (
	"strings"

	"salonpos/backend/internal/domain"
)

// Roster is the read-only staff and role-template view the splitter checks
// assignments against.
type Roster interface {
	StaffByID(id string) (domain.Staff, bool)
	TemplateFor(serviceID string) (domain.RoleTemplate, bool)
}

// StaticRoster is a Roster over a fixed snapshot.
type StaticRoster struct {
	staff     map[string]domain.Staff
	templates map[string]domain.RoleTemplate
}

func NewStaticRoster(staff []domain.Staff, templates []domain.RoleTemplate) *StaticRoster {
	r := &StaticRoster{
		staff:     make(map[string]domain.Staff, len(staff)),
		templates: make(map[string]domain.RoleTemplate, len(templates)),
	}
	for _, member := range staff {
		r.staff[member.ID] = member
	}
	for _, tpl := range templates {
		r.templates[tpl.ServiceID] = tpl
	}
	return r
}

func (r *StaticRoster) StaffByID(id string) (domain.Staff, bool) {
	if r == nil {
		return domain.Staff{}, false
	}
	member, ok := r.staff[id]
	return member, ok
}

func (r *StaticRoster) TemplateFor(serviceID string) (domain.RoleTemplate, bool) {
	if r == nil {
		return domain.RoleTemplate{}, false
	}
	tpl, ok := r.templates[serviceID]
	return tpl, ok
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
