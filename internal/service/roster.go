package service

import (
	"context"
	"fmt"
	"strings"

	"salonpos/backend/internal/apperr"
	"salonpos/backend/internal/contribution"
	"salonpos/backend/internal/domain"
)

// Roster returns the staff list and role templates of a store, served from
// the roster cache when possible. Cache failures fall back to the repository.
func (s *Service) Roster(ctx context.Context, storeID string) (*domain.Roster, error) {
	storeID = defaultString(storeID, s.defaultStoreID)

	cached, found, err := s.rosters.GetRoster(ctx, storeID)
	if err != nil {
		s.logger.Warn("roster cache read failed", "store_id", storeID, "error", err)
	} else if found && cached != nil {
		return cached, nil
	}

	staff, err := s.repo.ListStaff(ctx, storeID)
	if err != nil {
		return nil, mapStoreError(err, "staff")
	}
	templates, err := s.repo.ListRoleTemplates(ctx, storeID)
	if err != nil {
		return nil, mapStoreError(err, "role template")
	}
	roster := &domain.Roster{StoreID: storeID, Staff: staff, Templates: templates}

	if err := s.rosters.SetRoster(ctx, roster, s.rosterTTL); err != nil {
		s.logger.Warn("roster cache write failed", "store_id", storeID, "error", err)
	}
	return roster, nil
}

func (s *Service) Staff(ctx context.Context, storeID string) ([]domain.Staff, error) {
	roster, err := s.Roster(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return roster.Staff, nil
}

func (s *Service) RoleTemplates(ctx context.Context, storeID string) ([]domain.RoleTemplate, error) {
	roster, err := s.Roster(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return roster.Templates, nil
}

// Splitter builds a contribution splitter over the current roster of a store.
func (s *Service) Splitter(ctx context.Context, storeID string) (*contribution.Splitter, error) {
	roster, err := s.Roster(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return contribution.NewSplitter(contribution.NewStaticRoster(roster.Staff, roster.Templates)), nil
}

func (s *Service) UpsertStaff(ctx context.Context, storeID string, staff domain.Staff) (domain.Staff, error) {
	storeID = defaultString(storeID, s.defaultStoreID)
	staff.ID = strings.TrimSpace(staff.ID)
	staff.Name = strings.TrimSpace(staff.Name)
	staff.Role = strings.ToLower(strings.TrimSpace(staff.Role))
	if staff.ID == "" || staff.Name == "" || staff.Role == "" {
		return domain.Staff{}, apperr.New(apperr.CodeValidation, "staff id, name and role are required")
	}

	if err := s.repo.UpsertStaff(ctx, storeID, staff); err != nil {
		return domain.Staff{}, mapStoreError(err, "staff")
	}
	s.invalidateRoster(ctx, storeID)
	s.logAudit(ctx, storeID, "staff_upsert", "staff", staff.ID, fmt.Sprintf("role=%s active=%t", staff.Role, staff.Active))
	return staff, nil
}

func (s *Service) UpsertRoleTemplate(ctx context.Context, storeID string, template domain.RoleTemplate) (domain.RoleTemplate, error) {
	storeID = defaultString(storeID, s.defaultStoreID)
	template.ServiceID = strings.TrimSpace(template.ServiceID)
	template.Name = strings.TrimSpace(template.Name)
	if template.ServiceID == "" {
		return domain.RoleTemplate{}, apperr.New(apperr.CodeValidation, "service_id is required")
	}
	roles := make([]string, 0, len(template.RequiredRoles))
	seen := make(map[string]bool, len(template.RequiredRoles))
	for _, role := range template.RequiredRoles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	template.RequiredRoles = roles

	if err := s.repo.UpsertRoleTemplate(ctx, storeID, template); err != nil {
		return domain.RoleTemplate{}, mapStoreError(err, "role template")
	}
	s.invalidateRoster(ctx, storeID)
	s.logAudit(ctx, storeID, "role_template_upsert", "role_template", template.ServiceID, strings.Join(roles, ","))
	return template, nil
}

func (s *Service) invalidateRoster(ctx context.Context, storeID string) {
	if err := s.rosters.InvalidateRoster(ctx, storeID); err != nil {
		s.logger.Warn("roster cache invalidation failed", "store_id", storeID, "error", err)
	}
}
