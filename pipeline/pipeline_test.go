package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadflow/meta"
	"leadflow/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

// fakePlatform is an in-memory stand-in for the ads platform API
type fakePlatform struct {
	leads      map[string]*meta.LeadDetail
	names      map[string]string
	forms      []meta.LeadForm
	formLeads  map[string][]meta.LeadDetail
	fetchErr   error
	fetchCalls int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		leads:     make(map[string]*meta.LeadDetail),
		names:     make(map[string]string),
		formLeads: make(map[string][]meta.LeadDetail),
	}
}

func (f *fakePlatform) FetchLead(ctx context.Context, leadID string) (*meta.LeadDetail, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	detail, ok := f.leads[leadID]
	if !ok {
		return nil, &meta.APIError{Code: 100, Message: "Unsupported get request", HTTPStatus: 400}
	}
	return detail, nil
}

func (f *fakePlatform) FetchEntityName(ctx context.Context, entityID string) (string, error) {
	name, ok := f.names[entityID]
	if !ok {
		return "", &meta.APIError{Code: 100, Message: "no such entity", HTTPStatus: 400}
	}
	return name, nil
}

func (f *fakePlatform) ListForms(ctx context.Context, pageID string) ([]meta.LeadForm, error) {
	return f.forms, nil
}

func (f *fakePlatform) ListLeads(ctx context.Context, formID string, since time.Time, fn func(meta.LeadDetail) error) error {
	for _, detail := range f.formLeads[formID] {
		if err := fn(detail); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePlatform) addLead(detail *meta.LeadDetail) {
	f.leads[detail.ID] = detail
	f.formLeads[detail.FormID] = append(f.formLeads[detail.FormID], *detail)
}

func leadDetail(id string, fields ...meta.FieldData) *meta.LeadDetail {
	return &meta.LeadDetail{
		ID:          id,
		CreatedTime: time.Now().Add(-time.Hour),
		FormID:      "F1",
		AdID:        "AD1",
		AdGroupID:   "AG1",
		CampaignID:  "C1",
		Fields:      fields,
	}
}

func field(name string, values ...string) meta.FieldData {
	return meta.FieldData{Name: name, Values: values}
}

func seedAgent(t *testing.T, db *gorm.DB, name, role string, active bool) *models.User {
	t.Helper()
	user := models.User{
		Email:    fmt.Sprintf("%s@example.com", name),
		Name:     name,
		Role:     role,
		IsActive: active,
	}
	require.NoError(t, db.Create(&user).Error)
	if !active {
		// The is_active default tag makes Create drop the zero value, so
		// persist deactivation explicitly.
		require.NoError(t, db.Model(&user).Update("is_active", false).Error)
	}
	return &user
}

func newTestProcessor(db *gorm.DB, api Platform) *Processor {
	return NewProcessor(db, api, NewDeduper(db, nil), testLogger())
}
