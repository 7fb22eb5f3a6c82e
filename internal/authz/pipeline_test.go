package authz

import (
	"context"
	"testing"

	"github.com/kubilitics/gatewayd/internal/flow"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	blocked  map[string]bool
	inactive map[string]bool
}

func (f fakeStatus) IsBlocked(_ context.Context, userID string) (bool, error) {
	return f.blocked[userID], nil
}
func (f fakeStatus) IsActive(_ context.Context, userID string) (bool, error) {
	return !f.inactive[userID], nil
}

type fakeUsage struct {
	spent  map[string]float64
	budget map[string]float64
}

func (f fakeUsage) TodayCostUSD(_ context.Context, userID string) (float64, error) {
	return f.spent[userID], nil
}
func (f fakeUsage) DailyBudgetUSD(_ context.Context, userID string) (float64, error) {
	return f.budget[userID], nil
}

type fakePerms struct{}

func (fakePerms) AllowedMCPs(_ context.Context, role string) ([]string, error) {
	if role == "admin" {
		return []string{"mcp1", "mcp2"}, nil
	}
	return []string{"mcp1"}, nil
}
func (fakePerms) AllowedTools(_ context.Context, role string, toolNames []string) ([]string, error) {
	if role == "readonly" {
		out := []string{}
		for _, n := range toolNames {
			if n == "get_thing" {
				out = append(out, n)
			}
		}
		return out, nil
	}
	return toolNames, nil
}

func newTestPipeline() (*Pipeline, *fakeStatus, *fakeUsage) {
	status := &fakeStatus{blocked: map[string]bool{}, inactive: map[string]bool{}}
	usage := &fakeUsage{spent: map[string]float64{}, budget: map[string]float64{"u1": 10}}
	tracker := flow.NewTracker(nil, nil, nil, nil)
	return New(status, usage, fakePerms{}, tracker), status, usage
}

func ctxFor(userID, role string) context.Context {
	return identity.WithUserContext(context.Background(), identity.UserContext{UserID: userID, Role: role})
}

func TestAdmitMessageSuccess(t *testing.T) {
	p, _, _ := newTestPipeline()
	err := p.AdmitMessage(ctxFor("u1", "user"), "sess-1")
	require.NoError(t, err)
}

func TestAdmitMessageNoAuth(t *testing.T) {
	p, _, _ := newTestPipeline()
	err := p.AdmitMessage(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, gwerrors.AuthMissing, gwerrors.KindOf(err))
}

func TestAdmitMessageBlocked(t *testing.T) {
	p, status, _ := newTestPipeline()
	status.blocked["u1"] = true
	err := p.AdmitMessage(ctxFor("u1", "user"), "sess-1")
	require.Error(t, err)
	assert.Equal(t, gwerrors.Blocked, gwerrors.KindOf(err))
}

func TestAdmitMessageInactive(t *testing.T) {
	p, status, _ := newTestPipeline()
	status.inactive["u1"] = true
	err := p.AdmitMessage(ctxFor("u1", "user"), "sess-1")
	require.Error(t, err)
	assert.Equal(t, gwerrors.Inactive, gwerrors.KindOf(err))
}

func TestAdmitMessageQuotaExceeded(t *testing.T) {
	p, _, usage := newTestPipeline()
	usage.spent["u1"] = 10
	err := p.AdmitMessage(ctxFor("u1", "user"), "sess-1")
	require.Error(t, err)
	assert.Equal(t, gwerrors.QuotaExceeded, gwerrors.KindOf(err))
}

func TestCheckMCPPermission(t *testing.T) {
	p, _, _ := newTestPipeline()
	err := p.CheckMCPPermission(ctxFor("u1", "user"), "sess-1", "mcp1")
	require.NoError(t, err)

	err = p.CheckMCPPermission(ctxFor("u1", "user"), "sess-1", "mcp2")
	require.Error(t, err)
	assert.Equal(t, gwerrors.PermissionDenied, gwerrors.KindOf(err))

	err = p.CheckMCPPermission(ctxFor("u1", "admin"), "sess-1", "mcp2")
	require.NoError(t, err)
}

func TestFilterTools(t *testing.T) {
	p, _, _ := newTestPipeline()
	filtered, err := p.FilterTools(ctxFor("u1", "readonly"), "sess-1", []string{"get_thing", "create_thing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_thing"}, filtered)
}
