package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Capability names understood by the server.
const (
	PermSay   = "say"
	PermBan   = "ban"
	PermMute  = "mute"
	PermStore = "store"
	PermAdmin = "admin"
)

var knownPermissions = map[string]struct{}{
	PermSay:   {},
	PermBan:   {},
	PermMute:  {},
	PermStore: {},
	PermAdmin: {},
}

// ValidatePermission reports an error for capability names outside the closed registry.
func ValidatePermission(name string) error {
	if _, ok := knownPermissions[name]; !ok {
		return NewError(ErrCodeBadRequest, fmt.Sprintf("unknown permission '%s' (known: %s)", name, strings.Join(KnownPermissions(), ", ")))
	}
	return nil
}

// KnownPermissions returns the sorted capability registry.
func KnownPermissions() []string {
	names := make([]string, 0, len(knownPermissions))
	for name := range knownPermissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Permissions maps capability names to grants. Missing entries are false.
// It is not safe for concurrent use; the owning record serializes access.
type Permissions map[string]bool

// DefaultPermissions returns the set every new identity starts with.
func DefaultPermissions() Permissions {
	return Permissions{
		PermSay:   true,
		PermBan:   false,
		PermMute:  false,
		PermStore: false,
	}
}

// Has reports whether the capability is granted. Unknown names resolve to false.
func (p Permissions) Has(name string) bool {
	return p[name]
}

// Grant sets the capability to true, adding it when absent.
func (p Permissions) Grant(name string) {
	p[name] = true
}

// Revoke sets the capability to false. The entry stays present.
func (p Permissions) Revoke(name string) {
	p[name] = false
}

// Clone returns an independent copy.
func (p Permissions) Clone() Permissions {
	out := make(Permissions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String lists granted capabilities, e.g. "say,store".
func (p Permissions) String() string {
	granted := make([]string, 0, len(p))
	for name, ok := range p {
		if ok {
			granted = append(granted, name)
		}
	}
	sort.Strings(granted)
	return strings.Join(granted, ",")
}

type permissionsJSON struct {
	Set map[string]bool `json:"permission-set"`
}

// MarshalJSON encodes the set as {"permission-set": {...}}.
func (p Permissions) MarshalJSON() ([]byte, error) {
	set := map[string]bool(p)
	if set == nil {
		set = map[string]bool{}
	}
	return json.Marshal(permissionsJSON{Set: set})
}

// UnmarshalJSON decodes {"permission-set": {...}}.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	var raw permissionsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = make(Permissions, len(raw.Set))
	for k, v := range raw.Set {
		(*p)[k] = v
	}
	return nil
}
