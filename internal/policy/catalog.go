package policy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fleetops/authz-core/internal/domain"
)

// Action names known to the default catalog.
const (
	ActionInstancesList     = "instances:list"
	ActionInstancesDescribe = "instances:describe"
	ActionInstancesReboot   = "instances:reboot"
	ActionInstancesStart    = "instances:start"
	ActionInstancesStop     = "instances:stop"
	ActionAuditRead         = "audit:read"
	ActionSessionContext    = "session:context"
	ActionMetricsRead       = "metrics:read"
)

// Catalog resolves action names to descriptors.
type Catalog struct {
	actions map[string]domain.ActionDescriptor
}

type catalogFile struct {
	Actions []domain.ActionDescriptor `yaml:"actions"`
}

// DefaultCatalog returns the built-in instance management actions.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]domain.ActionDescriptor{
		{Name: ActionInstancesList, Resource: "instances", RequiredRole: domain.RoleReadonly},
		{Name: ActionInstancesDescribe, Resource: "instances", RequiredRole: domain.RoleReadonly},
		{Name: ActionInstancesReboot, Resource: "instances", RequiredRole: domain.RoleAdmin, Privileged: true},
		{Name: ActionInstancesStart, Resource: "instances", RequiredRole: domain.RoleAdmin, Privileged: true},
		{Name: ActionInstancesStop, Resource: "instances", RequiredRole: domain.RoleAdmin, Privileged: true},
		{Name: ActionAuditRead, Resource: "audit", RequiredRole: domain.RoleAdmin},
		{Name: ActionSessionContext, Resource: "session", RequiredRole: domain.RoleReadonly},
		{Name: ActionMetricsRead, Resource: "metrics", RequiredRole: domain.RoleAdmin},
	})
	return c
}

// NewCatalog validates and indexes actions.
func NewCatalog(actions []domain.ActionDescriptor) (*Catalog, error) {
	c := &Catalog{actions: make(map[string]domain.ActionDescriptor, len(actions))}
	for _, action := range actions {
		if action.Name == "" {
			return nil, fmt.Errorf("action without name")
		}
		if !action.RequiredRole.Valid() {
			return nil, fmt.Errorf("action %s: unknown required role %q", action.Name, action.RequiredRole)
		}
		if _, dup := c.actions[action.Name]; dup {
			return nil, fmt.Errorf("action %s declared twice", action.Name)
		}
		c.actions[action.Name] = action
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog of the form `actions: [{name, resource, required_role, privileged}]`.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse action catalog: %w", err)
	}
	if len(file.Actions) == 0 {
		return nil, fmt.Errorf("action catalog %s declares no actions", path)
	}
	return NewCatalog(file.Actions)
}

// Lookup returns the descriptor for name.
func (c *Catalog) Lookup(name string) (domain.ActionDescriptor, bool) {
	action, ok := c.actions[name]
	return action, ok
}

// MustLookup returns the descriptor for name and panics when it is missing.
// Intended for route wiring at startup.
func (c *Catalog) MustLookup(name string) domain.ActionDescriptor {
	action, ok := c.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("action %q not in catalog", name))
	}
	return action
}

// Names lists the catalog's action names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.actions))
	for name := range c.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
