package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/store/storetest"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, New())
}

func TestNewSeededHasRosterAndUsers(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pass")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-test-pass")
	s := NewSeeded()
	ctx := context.Background()

	staff, err := s.ListStaff(ctx, "main-store")
	require.NoError(t, err)
	assert.NotEmpty(t, staff)

	templates, err := s.ListRoleTemplates(ctx, "main-store")
	require.NoError(t, err)
	assert.NotEmpty(t, templates)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.NotEqual(t, "admin-test-pass", users[0].Password)
}
