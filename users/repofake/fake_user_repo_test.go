package fakeuserrepo

import (
	"context"
	"testing"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/users"
	"github.com/stretchr/testify/require"
)

func TestFakeUserRepo_FindOrCreate(t *testing.T) {
	repo := NewFakeUserRepo()
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, "A@Example.com", "", users.SourceGitHub)
	require.NoError(t, err)
	require.Equal(t, "a@example.com", first.Email)
	require.Equal(t, "Guest1", first.DisplayName)
	require.Equal(t, []string{permissions.DefaultRole}, first.Roles)
	require.Equal(t, users.SourceGitHub, first.Source)

	again, err := repo.FindOrCreate(ctx, "a@example.com", "Alice", users.SourceYandex)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, "Guest1", again.DisplayName)
	require.Equal(t, users.SourceGitHub, again.Source)

	second, err := repo.FindOrCreate(ctx, "b@example.com", "Bob", users.SourceOIDC)
	require.NoError(t, err)
	require.Equal(t, "Bob", second.DisplayName)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = repo.FindOrCreate(ctx, "broken", "", users.SourceGitHub)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestFakeUserRepo_Mutations(t *testing.T) {
	repo := NewFakeUserRepo()
	ctx := context.Background()
	user, err := repo.FindOrCreate(ctx, "a@example.com", "A", users.SourceCode)
	require.NoError(t, err)

	require.NoError(t, repo.SetBlocked(ctx, user.ID, true))
	require.NoError(t, repo.SetRoles(ctx, user.ID, []string{permissions.RoleAdmin}))

	got, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, got.Blocked)
	require.Equal(t, []string{permissions.RoleAdmin}, got.Roles)

	got.Roles[0] = "mutated"
	again, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, permissions.RoleAdmin, again.Roles[0])

	require.ErrorIs(t, repo.SetBlocked(ctx, "missing", true), errs.ErrNotFound)
	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)

	repo.Delete(user.ID)
	_, err = repo.GetByEmail(ctx, "a@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
