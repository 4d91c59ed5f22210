package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cookiejar/storage"
)

func TestRolesGrantAndRevoke(t *testing.T) {
	roles := NewRoles(storage.NewMemDB())
	alice := []byte{0x02}
	bob := []byte{0x01}

	require.False(t, roles.HasRole("ROLE_MEMBER", alice))
	require.NoError(t, roles.SetRole("ROLE_MEMBER", alice))
	require.NoError(t, roles.SetRole("ROLE_MEMBER", bob))
	require.NoError(t, roles.SetRole(" ROLE_MEMBER ", alice))

	members, err := roles.RoleMembers("ROLE_MEMBER")
	require.NoError(t, err)
	require.Equal(t, [][]byte{bob, alice}, members, "members stay sorted and deduplicated")
	require.True(t, roles.HasRole("ROLE_MEMBER", alice))
	require.False(t, roles.HasRole("ROLE_ADMIN", alice))

	require.NoError(t, roles.RevokeRole("ROLE_MEMBER", alice))
	require.False(t, roles.HasRole("ROLE_MEMBER", alice))
	require.True(t, roles.HasRole("ROLE_MEMBER", bob))
	require.NoError(t, roles.RevokeRole("ROLE_MEMBER", alice))

	require.NoError(t, roles.RevokeRole("ROLE_MEMBER", bob))
	members, err = roles.RoleMembers("ROLE_MEMBER")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestRolesRejectsEmptyInput(t *testing.T) {
	roles := NewRoles(storage.NewMemDB())
	require.Error(t, roles.SetRole("", []byte{0x01}))
	require.Error(t, roles.SetRole("ROLE_MEMBER", nil))
	require.Error(t, roles.RevokeRole(" ", []byte{0x01}))
	require.False(t, roles.HasRole("ROLE_MEMBER", nil))
}

func TestRolesCorruptStoreDeniesAccess(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put(roleKey("ROLE_MEMBER"), []byte{0xff, 0x00}))
	roles := NewRoles(db)
	require.False(t, roles.HasRole("ROLE_MEMBER", []byte{0x01}))
	_, err := roles.RoleMembers("ROLE_MEMBER")
	require.Error(t, err)
}
