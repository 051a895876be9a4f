package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("single role", func(t *testing.T) {
		perms := Resolve([]string{RoleStudent})
		require.Len(t, perms, 12)
		require.True(t, Has(perms, "attempt:create"))
		require.False(t, Has(perms, BlockWrite))
	})

	t.Run("union is sorted and deduplicated", func(t *testing.T) {
		perms := Resolve([]string{RoleAdmin, RoleStudent, RoleAdmin})
		require.Len(t, perms, 23)
		require.IsIncreasing(t, perms)
		require.True(t, Has(perms, BlockWrite))
	})

	t.Run("unknown roles are ignored", func(t *testing.T) {
		require.Equal(t, Resolve([]string{RoleTeacher}), Resolve([]string{"janitor", RoleTeacher}))
		require.Empty(t, Resolve([]string{"janitor"}))
		require.Empty(t, Resolve(nil))
	})

	t.Run("result does not alias the table", func(t *testing.T) {
		perms := Resolve([]string{RoleStudent})
		perms[0] = "mutated"
		require.False(t, Has(Resolve([]string{RoleStudent}), "mutated"))
	})
}

func TestKnownAndRoles(t *testing.T) {
	require.True(t, Known(DefaultRole))
	require.False(t, Known("janitor"))
	require.Equal(t, []string{RoleAdmin, RoleStudent, RoleTeacher}, Roles())
}
