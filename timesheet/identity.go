package timesheet

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// =============================================================================
// IDENTITY - Who may submit, approve and reject
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
)

// Identity validates actor identifiers and answers role questions.
type Identity interface {
	// Validate returns an error wrapping ErrInvalidIdentity when id is not
	// email-shaped.
	Validate(id string) error

	// DisplayName returns a human-readable name for id.
	DisplayName(ctx context.Context, id string) (string, error)

	// HasRole reports whether id holds role. Managers are also employees.
	HasRole(ctx context.Context, id string, role Role) (bool, error)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail is the shared email-shape check.
func ValidateEmail(id string) error {
	if !emailPattern.MatchString(strings.TrimSpace(id)) {
		return fmt.Errorf("%w: %q is not an email address", ErrInvalidIdentity, id)
	}
	return nil
}

// NormalizeID lowercases and trims an identifier so lookups are
// case-insensitive.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Person is one known actor.
type Person struct {
	ID   string `toml:"id" json:"id"`
	Name string `toml:"name" json:"name"`
	Role Role   `toml:"role" json:"role"`
}

// StaticDirectory is an in-memory Identity seeded from configuration.
// Unknown but email-shaped IDs are treated as employees.
type StaticDirectory struct {
	mu     sync.RWMutex
	people map[string]Person
}

func NewStaticDirectory(people ...Person) *StaticDirectory {
	d := &StaticDirectory{people: make(map[string]Person, len(people))}
	for _, p := range people {
		d.Put(p)
	}
	return d
}

// Put adds or replaces a person.
func (d *StaticDirectory) Put(p Person) {
	if p.Role == "" {
		p.Role = RoleEmployee
	}
	d.mu.Lock()
	d.people[NormalizeID(p.ID)] = p
	d.mu.Unlock()
}

func (d *StaticDirectory) Validate(id string) error { return ValidateEmail(id) }

func (d *StaticDirectory) DisplayName(_ context.Context, id string) (string, error) {
	if err := ValidateEmail(id); err != nil {
		return "", err
	}
	d.mu.RLock()
	p, ok := d.people[NormalizeID(id)]
	d.mu.RUnlock()
	if ok && p.Name != "" {
		return p.Name, nil
	}
	local, _, _ := strings.Cut(strings.TrimSpace(id), "@")
	return local, nil
}

func (d *StaticDirectory) HasRole(_ context.Context, id string, role Role) (bool, error) {
	if err := ValidateEmail(id); err != nil {
		return false, err
	}
	d.mu.RLock()
	p, ok := d.people[NormalizeID(id)]
	d.mu.RUnlock()

	switch role {
	case RoleEmployee:
		return true, nil
	case RoleManager:
		return ok && p.Role == RoleManager, nil
	default:
		return false, nil
	}
}
