package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"receptionist-platform/internal/rbac"
	"receptionist-platform/internal/tenants"
)

var (
	ErrUnauthenticated = errors.New("tenancy: unauthenticated")
	ErrTenantRequired  = errors.New("tenancy: tenant required")
	ErrForbidden       = errors.New("tenancy: forbidden")
	ErrTenantNotFound  = errors.New("tenancy: tenant not found")
	ErrTenantInactive  = errors.New("tenancy: tenant inactive")
)

// Context is the resolved tenant context attached to a request.
// Role and Permissions are computed server side and never taken from input.
type Context struct {
	Tenant      tenants.Tenant
	UserID      string
	Role        string
	Permissions rbac.PermissionSet

	// Webhook is true when the tenant was resolved from a provider payload.
	Webhook bool
}

func (c Context) TenantID() string { return c.Tenant.ID }

// Request carries the tenant hints and caller identity of an inbound request.
// Tenant hints are tried in order: path, query, body, session.
type Request struct {
	UserID          string
	PlatformRole    string
	SessionTenantID string

	PathTenantID  string
	QueryTenantID string
	BodyTenantID  string

	Required []rbac.Permission
}

func (r Request) tenantID() string {
	for _, id := range []string{r.PathTenantID, r.QueryTenantID, r.BodyTenantID, r.SessionTenantID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

type Resolver struct {
	tenants tenants.Repository
}

func NewResolver(repo tenants.Repository) *Resolver {
	return &Resolver{tenants: repo}
}

// Authorize resolves the caller and tenant of an authenticated request.
func (r *Resolver) Authorize(ctx context.Context, req Request) (Context, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Context{}, ErrUnauthenticated
	}
	tenantID := req.tenantID()
	if tenantID == "" {
		return Context{}, ErrTenantRequired
	}

	role := req.PlatformRole
	if !rbac.IsSuperAdmin(role) {
		m, err := r.tenants.GetMembership(ctx, tenantID, req.UserID)
		if err != nil {
			if errors.Is(err, tenants.ErrMembershipAbsent) {
				return Context{}, ErrForbidden
			}
			return Context{}, fmt.Errorf("tenancy: membership lookup: %w", err)
		}
		if !m.Active() {
			return Context{}, ErrForbidden
		}
		role = m.Role
	}

	perms := rbac.PermissionsFor(role)
	if !perms.HasAll(req.Required...) {
		return Context{}, ErrForbidden
	}

	t, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return Context{}, ErrTenantNotFound
		}
		return Context{}, fmt.Errorf("tenancy: tenant lookup: %w", err)
	}

	return Context{
		Tenant:      t,
		UserID:      req.UserID,
		Role:        role,
		Permissions: perms,
	}, nil
}

// AuthorizeWebhook resolves the tenant of a provider-originated payload that
// carries no caller identity. Explicit tenant fields win over phone lookup.
func (r *Resolver) AuthorizeWebhook(ctx context.Context, payload map[string]any) (Context, error) {
	var (
		t   tenants.Tenant
		err error
	)
	if id := explicitTenantID(payload); id != "" {
		t, err = r.tenants.Get(ctx, id)
	} else {
		t, err = r.byPhone(ctx, candidatePhones(payload))
	}
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return Context{}, ErrTenantNotFound
		}
		return Context{}, fmt.Errorf("tenancy: tenant lookup: %w", err)
	}
	if !t.CanReceiveCalls() {
		return Context{}, ErrTenantInactive
	}
	return Context{Tenant: t, Permissions: rbac.PermissionSet{}, Webhook: true}, nil
}

// AuthorizeTenantID resolves a webhook whose tenant is named by the URL.
func (r *Resolver) AuthorizeTenantID(ctx context.Context, tenantID string) (Context, error) {
	return r.AuthorizeWebhook(ctx, map[string]any{"tenantId": tenantID})
}

func (r *Resolver) byPhone(ctx context.Context, phones []string) (tenants.Tenant, error) {
	for _, p := range phones {
		t, err := r.tenants.GetByPhone(ctx, p)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, tenants.ErrNotFound) {
			return tenants.Tenant{}, err
		}
	}
	return tenants.Tenant{}, tenants.ErrNotFound
}

// explicitTenantPaths name fields that carry the tenant id directly. The
// assistant metadata path is set by the synchronizer on provisioning.
var explicitTenantPaths = [][]string{
	{"tenantId"},
	{"tenant_id"},
	{"businessId"},
	{"business_id"},
	{"metadata", "tenantId"},
	{"call", "assistant", "metadata", "tenantId"},
	{"message", "call", "assistant", "metadata", "tenantId"},
	{"message", "assistant", "metadata", "tenantId"},
}

// calleePaths are the callee-number fields used by the supported providers,
// in order of preference. The Vapi phoneNumber object is always the business line.
var calleePaths = [][]string{
	{"to"},
	{"To"},
	{"called"},
	{"Called"},
	{"phoneNumber"},
	{"phone_number"},
	{"businessPhone"},
	{"call", "phoneNumber", "number"},
	{"message", "call", "phoneNumber", "number"},
	{"message", "phoneNumber", "number"},
}

// callerPaths hold the business line on outbound calls.
var callerPaths = [][]string{
	{"from"},
	{"From"},
	{"caller"},
	{"Caller"},
}

var directionPaths = [][]string{
	{"direction"},
	{"Direction"},
}

// phonePathsFor orders the lookup by call direction. Outbound calls are placed
// from the business line; inbound calls never match on the caller.
func phonePathsFor(payload map[string]any) [][]string {
	var dir string
	for _, p := range directionPaths {
		if dir = strings.ToLower(lookupString(payload, p)); dir != "" {
			break
		}
	}
	switch {
	case strings.HasPrefix(dir, "outbound"):
		return append(append([][]string{}, callerPaths...), calleePaths...)
	case strings.HasPrefix(dir, "inbound"):
		return calleePaths
	default:
		return append(append([][]string{}, calleePaths...), callerPaths...)
	}
}

func explicitTenantID(payload map[string]any) string {
	for _, p := range explicitTenantPaths {
		if s := lookupString(payload, p); s != "" {
			return s
		}
	}
	return ""
}

func candidatePhones(payload map[string]any) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range phonePathsFor(payload) {
		s := lookupString(payload, p)
		if tenants.NormalizePhone(s) == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func lookupString(m map[string]any, path []string) string {
	var cur any = m
	for _, k := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[k]
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}
