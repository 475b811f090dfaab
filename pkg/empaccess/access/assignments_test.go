package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/empaccess/pkg/empaccess/models"
)

func TestGroupAssignments(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "G1", true)
	store := NewAssignmentStore(f.db, WithClock(testClock))
	ctx := context.Background()

	_, err := store.AssignToGroup(ctx, g.ID, 20, "admin")
	require.NoError(t, err)
	_, err = store.AssignToGroup(ctx, g.ID, 10, "admin")
	require.NoError(t, err)

	_, err = store.AssignToGroup(ctx, g.ID, 10, "admin")
	assert.True(t, errors.Is(err, ErrConflict))
	_, err = store.AssignToGroup(ctx, g.ID, 60, "admin")
	assert.True(t, errors.Is(err, ErrNotFound), "inactive definition")
	_, err = store.AssignToGroup(ctx, 9999, 10, "admin")
	assert.True(t, errors.Is(err, ErrNotFound), "unknown group")

	rows, err := store.GroupAssignments(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 10, rows[0].SecurityID)

	require.NoError(t, store.UnassignFromGroup(ctx, g.ID, 10, "admin"))
	assert.True(t, errors.Is(store.UnassignFromGroup(ctx, g.ID, 10, "admin"), ErrNotFound))

	rows, err = store.GroupAssignments(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 20, rows[0].SecurityID)
}

func TestDirectGrantLifecycle(t *testing.T) {
	f := newFixture(t)
	store := NewAssignmentStore(f.db, WithClock(testClock))
	engine := f.engine()
	ctx := context.Background()
	jdoe := acct(t, "jdoe")

	grant, err := store.GrantDirect(ctx, jdoe, DirectGrantInput{
		SecurityID: 30,
		ExpiryDate: timePtr(testNow.Add(48 * time.Hour)),
		Notes:      "covering for asmith",
	}, "manager1")
	require.NoError(t, err)

	res, err := engine.CheckAccess(ctx, jdoe, 30)
	require.NoError(t, err)
	assert.True(t, res.HasAccess)
	assert.Equal(t, SourceDirect, res.AssignmentSource)

	_, err = store.GrantDirect(ctx, jdoe, DirectGrantInput{SecurityID: 30, ExpiryDate: timePtr(testNow)}, "manager1")
	assert.True(t, errors.Is(err, ErrInvalidInput), "expiry at now is already expired")
	_, err = store.GrantDirect(ctx, jdoe, DirectGrantInput{SecurityID: 999}, "manager1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.RevokeDirect(ctx, jdoe, grant.ID, "manager2"))
	assert.True(t, errors.Is(store.RevokeDirect(ctx, jdoe, grant.ID, "manager2"), ErrNotFound))
	assert.True(t, errors.Is(store.RevokeDirect(ctx, acct(t, "other"), grant.ID, "manager2"), ErrNotFound))

	res, err = engine.CheckAccess(ctx, jdoe, 30)
	require.NoError(t, err)
	assert.False(t, res.HasAccess)

	rows, err := store.DirectGrants(ctx, jdoe)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsActive)
	assert.Equal(t, "manager2", rows[0].RevokedBy)
	require.NotNil(t, rows[0].RevokedDate)

	var stored models.EmployeeSecurityAssignment
	require.NoError(t, f.db.First(&stored, grant.ID).Error)
	assert.Equal(t, "covering for asmith", stored.Notes)
}
