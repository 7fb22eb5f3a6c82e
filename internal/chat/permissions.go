package chat

// RolePermissions is the default authz.PermissionProvider: a static
// role-to-allowlist map. Roles absent from the map get no MCPs and no
// tools, so a newly introduced role is closed by default rather than
// silently admitted.

import (
	"context"
)

// RoleGrant is one role's allowlists. A nil AllMCPs/AllTools slice with
// Unrestricted set true permits everything; this is used for the "admin"
// role so operators are never locked out by a stale allowlist.
type RoleGrant struct {
	MCPs         []string
	Tools        []string
	Unrestricted bool
}

// RolePermissionProvider answers authz.PermissionProvider from a static
// role table, configured at startup from gatewayd's role_permissions
// configuration section.
type RolePermissionProvider struct {
	grants map[string]RoleGrant
	// listMCPIDs resolves the full registered MCP catalog for
	// Unrestricted roles, since a static allowlist can't enumerate "all
	// MCPs that happen to be registered right now" on its own.
	listMCPIDs func() []string
}

// NewRolePermissionProvider builds a provider from a role->grant map.
// listMCPIDs supplies the live MCP catalog (typically mcp.Coordinator's
// registered ids) so Unrestricted roles resolve to every current MCP
// rather than a frozen list; pass nil if no MCPs are wired.
func NewRolePermissionProvider(grants map[string]RoleGrant, listMCPIDs func() []string) *RolePermissionProvider {
	if grants == nil {
		grants = map[string]RoleGrant{}
	}
	if listMCPIDs == nil {
		listMCPIDs = func() []string { return nil }
	}
	return &RolePermissionProvider{grants: grants, listMCPIDs: listMCPIDs}
}

// DefaultRolePermissions is a sensible starting table: "admin" is
// unrestricted, "user" gets a conservative default tool set, unknown
// roles get nothing.
func DefaultRolePermissions() map[string]RoleGrant {
	return map[string]RoleGrant{
		"admin": {Unrestricted: true},
		"user": {
			MCPs:  []string{},
			Tools: []string{},
		},
	}
}

func (p *RolePermissionProvider) AllowedMCPs(_ context.Context, role string) ([]string, error) {
	g, ok := p.grants[role]
	if !ok {
		return nil, nil
	}
	if g.Unrestricted {
		return p.listMCPIDs(), nil
	}
	return g.MCPs, nil
}

// AllowedTools filters toolNames down to the role's allowlist. An
// Unrestricted role passes every requested tool through unfiltered.
func (p *RolePermissionProvider) AllowedTools(_ context.Context, role string, toolNames []string) ([]string, error) {
	g, ok := p.grants[role]
	if !ok {
		return []string{}, nil
	}
	if g.Unrestricted {
		return toolNames, nil
	}
	allowed := make(map[string]bool, len(g.Tools))
	for _, t := range g.Tools {
		allowed[t] = true
	}
	out := make([]string, 0, len(toolNames))
	for _, t := range toolNames {
		if allowed[t] {
			out = append(out, t)
		}
	}
	return out, nil
}
