package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadflow/models"
	"leadflow/utils"
)

func seedAssignedLead(t *testing.T, db *gorm.DB, ownerID uint, externalID string) {
	t.Helper()
	lead := models.Lead{
		Name:           "seed",
		Phone:          "0000" + externalID,
		ExternalLeadID: externalID,
		AssignedToID:   utils.Pointer(ownerID),
	}
	require.NoError(t, db.Create(&lead).Error)
}

func TestRoundRobinAdvancesPastLastOwner(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "a", models.RoleAgent, true)
	b := seedAgent(t, db, "b", models.RoleAgent, true)
	c := seedAgent(t, db, "c", models.RoleAgent, true)

	seedAssignedLead(t, db, b.ID, "X1")

	next, err := NextOwner(db)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, c.ID, next.ID)
}

func TestRoundRobinWrapsToFirstAgent(t *testing.T) {
	db := newTestDB(t)
	a := seedAgent(t, db, "a", models.RoleAgent, true)
	seedAgent(t, db, "b", models.RoleAgent, true)
	c := seedAgent(t, db, "c", models.RoleAgent, true)

	seedAssignedLead(t, db, c.ID, "X1")

	next, err := NextOwner(db)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, a.ID, next.ID)
}

func TestRoundRobinStartsAtFirstAgent(t *testing.T) {
	db := newTestDB(t)
	a := seedAgent(t, db, "a", models.RoleAgent, true)
	seedAgent(t, db, "b", models.RoleAgent, true)

	next, err := NextOwner(db)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, a.ID, next.ID)
}

func TestRoundRobinFallsBackWhenOwnerDeactivated(t *testing.T) {
	db := newTestDB(t)
	a := seedAgent(t, db, "a", models.RoleAgent, true)
	gone := seedAgent(t, db, "gone", models.RoleAgent, false)
	seedAgent(t, db, "c", models.RoleAgent, true)

	seedAssignedLead(t, db, gone.ID, "X1")

	next, err := NextOwner(db)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, a.ID, next.ID)
}

func TestRoundRobinReturnsNilWithNoAgents(t *testing.T) {
	db := newTestDB(t)
	seedAgent(t, db, "triage-only", models.RoleTriage, true)

	next, err := NextOwner(db)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRoundRobinUsesMostRecentAssignment(t *testing.T) {
	db := newTestDB(t)
	a := seedAgent(t, db, "a", models.RoleAgent, true)
	b := seedAgent(t, db, "b", models.RoleAgent, true)
	c := seedAgent(t, db, "c", models.RoleAgent, true)

	seedAssignedLead(t, db, c.ID, "older")
	time.Sleep(10 * time.Millisecond)
	seedAssignedLead(t, db, a.ID, "newer")

	next, err := NextOwner(db)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, b.ID, next.ID)
}
