package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

func (s *Store) ListStaff(ctx context.Context, storeID string) ([]domain.Staff, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, name, role, active
		FROM staff
		WHERE store_id = ?
		ORDER BY id ASC
	`), storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]domain.Staff, 0, 16)
	for rows.Next() {
		var member domain.Staff
		if err := rows.Scan(&member.ID, &member.Name, &member.Role, &member.Active); err != nil {
			return nil, err
		}
		staff = append(staff, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *Store) UpsertStaff(ctx context.Context, storeID string, staff domain.Staff) error {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(staff.ID) == "" || strings.TrimSpace(staff.Role) == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO staff (store_id, id, name, role, active, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (store_id, id)
		DO UPDATE SET name = excluded.name, role = excluded.role, active = excluded.active, updated_at = excluded.updated_at
	`), storeID, staff.ID, staff.Name, staff.Role, staff.Active, time.Now().UTC())
	return err
}

func (s *Store) ListRoleTemplates(ctx context.Context, storeID string) ([]domain.RoleTemplate, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT service_id, name, required_roles
		FROM role_templates
		WHERE store_id = ?
		ORDER BY service_id ASC
	`), storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]domain.RoleTemplate, 0, 8)
	for rows.Next() {
		var (
			tpl   domain.RoleTemplate
			roles string
		)
		if err := rows.Scan(&tpl.ServiceID, &tpl.Name, &roles); err != nil {
			return nil, err
		}
		if err := decodeJSON(roles, &tpl.RequiredRoles); err != nil {
			return nil, fmt.Errorf("decode roles of template %s: %w", tpl.ServiceID, err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Store) UpsertRoleTemplate(ctx context.Context, storeID string, template domain.RoleTemplate) error {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(template.ServiceID) == "" {
		return store.ErrInvalidInput
	}
	if template.RequiredRoles == nil {
		template.RequiredRoles = []string{}
	}
	roles, err := encodeJSON(template.RequiredRoles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO role_templates (store_id, service_id, name, required_roles, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (store_id, service_id)
		DO UPDATE SET name = excluded.name, required_roles = excluded.required_roles, updated_at = excluded.updated_at
	`), storeID, template.ServiceID, template.Name, roles, time.Now().UTC())
	return err
}
