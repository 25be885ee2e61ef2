// Package acl implements the access-control user store described in
// spec.md §4.8: named users with enable/disable, password sets,
// allow/deny command sets, and key glob patterns, parsed from and
// serialized back to the ACL rule token grammar. Grounded directly on
// original_source/src/acl.rs, whose User/Acl shape this package ports
// almost one-to-one.
package acl

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/corekv/corekv/internal/glob"
)

// User is one ACL identity: its password set, command allow/deny rules,
// and key pattern allowlist.
type User struct {
	Name                string
	Passwords           map[string]struct{}
	AllowedCommands     map[string]struct{}
	AllCommands         bool
	DisallowedCommands  map[string]struct{}
	Enabled             bool
	AllKeys             bool
	AllowedKeyPatterns  []string
}

func NewUser(name string) *User {
	return &User{
		Name:               name,
		Passwords:          map[string]struct{}{},
		AllowedCommands:    map[string]struct{}{},
		DisallowedCommands: map[string]struct{}{},
		Enabled:            true,
	}
}

// DefaultUser is the "default" user created on a fresh store: all
// commands, all keys, no password required.
func DefaultUser() *User {
	u := NewUser("default")
	u.AllCommands = true
	u.AllKeys = true
	return u
}

func (u *User) CheckPassword(password string) bool {
	if len(u.Passwords) == 0 {
		return true
	}
	_, ok := u.Passwords[password]
	return ok
}

func (u *User) CanExecute(cmd string) bool {
	cmd = strings.ToLower(cmd)
	if u.AllCommands {
		_, denied := u.DisallowedCommands[cmd]
		return !denied
	}
	_, allowed := u.AllowedCommands[cmd]
	return allowed
}

func (u *User) CanAccessKey(key []byte) bool {
	if u.AllKeys {
		return true
	}
	for _, pattern := range u.AllowedKeyPatterns {
		if glob.Match([]byte(pattern), key) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, used so ACL SETUSER can apply rules to a
// scratch copy before committing (mirrors the load-then-merge behavior
// of the original's load_from_file).
func (u *User) Clone() *User {
	c := &User{
		Name:               u.Name,
		Passwords:          map[string]struct{}{},
		AllowedCommands:    map[string]struct{}{},
		AllCommands:        u.AllCommands,
		DisallowedCommands: map[string]struct{}{},
		Enabled:            u.Enabled,
		AllKeys:            u.AllKeys,
		AllowedKeyPatterns: append([]string(nil), u.AllowedKeyPatterns...),
	}
	for p := range u.Passwords {
		c.Passwords[p] = struct{}{}
	}
	for cmd := range u.AllowedCommands {
		c.AllowedCommands[cmd] = struct{}{}
	}
	for cmd := range u.DisallowedCommands {
		c.DisallowedCommands[cmd] = struct{}{}
	}
	return c
}

// ParseRules applies the ACL rule token grammar in order: on/off,
// +@all/-@all, >pass/<pass, nopass, allkeys/~*/resetkeys/~pattern,
// +cmd/-cmd.
func (u *User) ParseRules(rules []string) {
	for _, rule := range rules {
		switch {
		case rule == "on":
			u.Enabled = true
		case rule == "off":
			u.Enabled = false
		case rule == "+@all":
			u.AllCommands = true
			u.DisallowedCommands = map[string]struct{}{}
		case rule == "-@all":
			u.AllCommands = false
			u.AllowedCommands = map[string]struct{}{}
		case strings.HasPrefix(rule, ">"):
			u.Passwords[rule[1:]] = struct{}{}
		case strings.HasPrefix(rule, "<"):
			delete(u.Passwords, rule[1:])
		case rule == "nopass":
			u.Passwords = map[string]struct{}{}
		case rule == "allkeys" || rule == "~*":
			u.AllKeys = true
			u.AllowedKeyPatterns = nil
		case rule == "resetkeys":
			u.AllKeys = false
			u.AllowedKeyPatterns = nil
		case strings.HasPrefix(rule, "~"):
			u.AllowedKeyPatterns = append(u.AllowedKeyPatterns, rule[1:])
			u.AllKeys = false
		case strings.HasPrefix(rule, "+"):
			cmd := strings.ToLower(rule[1:])
			u.AllowedCommands[cmd] = struct{}{}
			delete(u.DisallowedCommands, cmd)
		case strings.HasPrefix(rule, "-"):
			cmd := strings.ToLower(rule[1:])
			u.DisallowedCommands[cmd] = struct{}{}
			delete(u.AllowedCommands, cmd)
		}
	}
}

// String renders the user back to its rule-line form, the format
// ACL LIST/ACL SAVE emit and load_from_file can re-parse.
func (u *User) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "user %s", u.Name)
	if u.Enabled {
		b.WriteString(" on")
	} else {
		b.WriteString(" off")
	}

	passwords := sortedKeys(u.Passwords)
	for _, p := range passwords {
		fmt.Fprintf(&b, " >%s", p)
	}
	if len(passwords) == 0 {
		b.WriteString(" nopass")
	}

	if u.AllKeys {
		b.WriteString(" ~*")
	} else {
		for _, pattern := range u.AllowedKeyPatterns {
			fmt.Fprintf(&b, " ~%s", pattern)
		}
	}

	if u.AllCommands {
		b.WriteString(" +@all")
		for _, cmd := range sortedKeys(u.DisallowedCommands) {
			fmt.Fprintf(&b, " -%s", cmd)
		}
	} else if len(u.AllowedCommands) == 0 {
		b.WriteString(" -@all")
	} else {
		for _, cmd := range sortedKeys(u.AllowedCommands) {
			fmt.Fprintf(&b, " +%s", cmd)
		}
	}
	return b.String()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store holds the full set of known users.
type Store struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewStore() *Store {
	s := &Store{users: map[string]*User{}}
	s.users["default"] = DefaultUser()
	return s
}

func (s *Store) GetUser(name string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	return u, ok
}

func (s *Store) SetUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Name] = u
}

// DelUser removes a non-default user, returning false if name is
// "default" or unknown — the default user can never be deleted.
func (s *Store) DelUser(name string) bool {
	if name == "default" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; !ok {
		return false
	}
	delete(s.users, name)
	return true
}

func (s *Store) Authenticate(username, password string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok || !u.Enabled || !u.CheckPassword(password) {
		return nil, false
	}
	return u, true
}

// Names returns all known usernames, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.users))
	for n := range s.users {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadFromFile parses the text ACL file format: lines of
// "user <name> <rule> <rule> ...", blank lines and '#' comments
// ignored. Existing users matching a line are updated in place rather
// than replaced, matching the original loader's merge behavior.
func (s *Store) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "user" {
			continue
		}
		username := fields[1]

		s.mu.Lock()
		existing, ok := s.users[username]
		var user *User
		if ok {
			user = existing.Clone()
		} else {
			user = NewUser(username)
		}
		s.mu.Unlock()

		if len(fields) > 2 {
			user.ParseRules(fields[2:])
		}
		s.SetUser(user)
	}
	return scanner.Err()
}

// SaveToFile writes every user's rule-line form to path, one per line.
func (s *Store) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, name := range s.Names() {
		u, _ := s.GetUser(name)
		if _, err := fmt.Fprintln(w, u.String()); err != nil {
			return err
		}
	}
	return w.Flush()
}
