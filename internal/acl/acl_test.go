package acl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultUserAllowsEverything(t *testing.T) {
	u := DefaultUser()
	require.True(t, u.CanExecute("get"))
	require.True(t, u.CanExecute("flushall"))
	require.True(t, u.CanAccessKey([]byte("anything")))
	require.True(t, u.CheckPassword("whatever"))
}

func TestParseRulesCommandAllowDeny(t *testing.T) {
	u := NewUser("bob")
	u.ParseRules([]string{"on", ">secret", "+get", "+set", "~foo:*"})
	require.True(t, u.Enabled)
	require.True(t, u.CheckPassword("secret"))
	require.False(t, u.CheckPassword("wrong"))
	require.True(t, u.CanExecute("get"))
	require.False(t, u.CanExecute("del"))
	require.True(t, u.CanAccessKey([]byte("foo:1")))
	require.False(t, u.CanAccessKey([]byte("bar:1")))
}

func TestParseRulesAllCommandsWithDeny(t *testing.T) {
	u := NewUser("admin")
	u.ParseRules([]string{"+@all", "-flushall"})
	require.True(t, u.CanExecute("get"))
	require.False(t, u.CanExecute("flushall"))
}

func TestParseRulesResetKeysAndAllKeys(t *testing.T) {
	u := NewUser("x")
	u.ParseRules([]string{"~foo:*", "allkeys"})
	require.True(t, u.AllKeys)
	u.ParseRules([]string{"resetkeys"})
	require.False(t, u.AllKeys)
	require.False(t, u.CanAccessKey([]byte("foo:1")))
}

func TestStoreCannotDeleteDefaultUser(t *testing.T) {
	s := NewStore()
	require.False(t, s.DelUser("default"))

	s.SetUser(NewUser("temp"))
	require.True(t, s.DelUser("temp"))
	require.False(t, s.DelUser("temp"))
}

func TestStoreAuthenticate(t *testing.T) {
	s := NewStore()
	u := NewUser("alice")
	u.ParseRules([]string{"on", ">hunter2", "+@all", "~*"})
	s.SetUser(u)

	_, ok := s.Authenticate("alice", "hunter2")
	require.True(t, ok)
	_, ok = s.Authenticate("alice", "wrong")
	require.False(t, ok)
	_, ok = s.Authenticate("nobody", "x")
	require.False(t, ok)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := NewStore()
	u := NewUser("svc")
	u.ParseRules([]string{"on", ">p1", "+get", "+set", "~cache:*"})
	s.SetUser(u)

	path := filepath.Join(t.TempDir(), "users.acl")
	require.NoError(t, s.SaveToFile(path))

	loaded := NewStore()
	require.NoError(t, loaded.LoadFromFile(path))

	got, ok := loaded.GetUser("svc")
	require.True(t, ok)
	require.True(t, got.CanExecute("get"))
	require.True(t, got.CanExecute("set"))
	require.False(t, got.CanExecute("del"))
	require.True(t, got.CanAccessKey([]byte("cache:1")))
	require.True(t, got.CheckPassword("p1"))
}
