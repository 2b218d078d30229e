package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/models"
)

func TestDedupeByReference(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Lead{
		Name:           "Jane Doe",
		Phone:          "+910000000001",
		ExternalLeadID: "LG100",
	}).Error)

	deduper := NewDeduper(db, nil)
	result, matched, err := deduper.Check(context.Background(), Contact{Phone: "+919999999999"}, "LG100")
	require.NoError(t, err)
	assert.Equal(t, DupReference, result)
	require.NotNil(t, matched)
	assert.Equal(t, "LG100", matched.ExternalLeadID)
}

func TestDedupeByPhone(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Lead{
		Name:           "Jane Doe",
		Phone:          "+910000000001",
		ExternalLeadID: "LG100",
	}).Error)

	deduper := NewDeduper(db, nil)
	result, matched, err := deduper.Check(context.Background(), Contact{Phone: "+910000000001"}, "LG200")
	require.NoError(t, err)
	assert.Equal(t, DupContact, result)
	require.NotNil(t, matched)
	assert.Equal(t, "Jane Doe", matched.Name)
}

func TestDedupeByEmail(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Lead{
		Name:           "Jane Doe",
		Phone:          "+910000000001",
		Email:          "jane@example.com",
		ExternalLeadID: "LG100",
	}).Error)

	deduper := NewDeduper(db, nil)
	contact := Contact{Phone: "+918888888888", Email: "jane@example.com"}
	result, _, err := deduper.Check(context.Background(), contact, "LG200")
	require.NoError(t, err)
	assert.Equal(t, DupContact, result)
}

func TestDedupePendingPhoneDoesNotCollide(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Lead{
		Name:           "Incomplete One",
		Phone:          PendingPhone,
		ExternalLeadID: "LG100",
	}).Error)

	deduper := NewDeduper(db, nil)
	result, _, err := deduper.Check(context.Background(), Contact{Phone: PendingPhone}, "LG200")
	require.NoError(t, err)
	assert.Equal(t, NotDuplicate, result)
}

func TestDedupeNewLead(t *testing.T) {
	db := newTestDB(t)

	deduper := NewDeduper(db, nil)
	result, matched, err := deduper.Check(context.Background(), Contact{Phone: "+910000000001"}, "LG300")
	require.NoError(t, err)
	assert.Equal(t, NotDuplicate, result)
	assert.Nil(t, matched)
}
