package localization

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Scope is a localization level. Later scopes override earlier ones.
type Scope int

const (
	Base Scope = iota
	Configured
	Site
	Workstation
	User
)

// Scopes lists every scope in composition order.
var Scopes = []Scope{Base, Configured, Site, Workstation, User}

func (s Scope) String() string {
	switch s {
	case Base:
		return "BASE"
	case Configured:
		return "CONFIGURED"
	case Site:
		return "SITE"
	case Workstation:
		return "WORKSTATION"
	case User:
		return "USER"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// ParseScope accepts a scope name in any case.
func ParseScope(s string) (Scope, error) {
	for _, sc := range Scopes {
		if strings.EqualFold(s, sc.String()) {
			return sc, nil
		}
	}
	return 0, fmt.Errorf("unknown localization scope %q", s)
}

// Context identifies whose files are composed: the site (and configured
// site), the workstation and the user.
type Context struct {
	Site        string `json:"site"`
	Workstation string `json:"workstation,omitempty"`
	User        string `json:"user,omitempty"`
}

// dir is the directory holding files of scope s for c, relative to the store
// root. It is empty when c does not name the scope's owner.
func (s Scope) dir(c Context) string {
	switch s {
	case Base:
		return "base"
	case Configured:
		return owned("configured", c.Site)
	case Site:
		return owned("site", c.Site)
	case Workstation:
		return owned("workstation", c.Workstation)
	case User:
		return owned("user", c.User)
	}
	return ""
}

func owned(prefix, owner string) string {
	if owner == "" {
		return ""
	}
	return filepath.Join(prefix, owner)
}

func (c Context) key() string {
	return c.Site + "|" + c.Workstation + "|" + c.User
}
