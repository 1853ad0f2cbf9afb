package plans

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Captain-Subtext/level5-courseware-sub000/testutils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()

	log.SetOutput(io.Discard)

	exitCode := m.Run()

	log.SetOutput(os.Stdout)

	os.Exit(exitCode)
}

func TestGetPlans(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT \* FROM "plans"`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan_type", "stripe_price_id", "amount", "active"}).
			AddRow("2e9b1c1e-5c6f-4a6e-8d35-0f4c1d2f9ab1", "Monthly", "monthly", "price_123", 999, true).
			AddRow("7f3a0d4b-1234-4a6e-8d35-0f4c1d2f9ab2", "Annual", "annual", "price_456", 9900, true))

	r := testutils.SetupTestRouter()
	r.GET("/plans", GetPlans)

	req, _ := http.NewRequest(http.MethodGet, "/plans", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "price_123")
	assert.Contains(t, resp.Body.String(), "price_456")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlan_Success(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT \* FROM "plans"`).
		WillReturnError(gorm.ErrRecordNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow("2e9b1c1e-5c6f-4a6e-8d35-0f4c1d2f9ab1"))
	mock.ExpectCommit()

	r := testutils.SetupTestRouter()
	r.POST("/plans", CreatePlan)

	body := `{"name":"Monthly","planType":"monthly","stripePriceId":"price_123","amount":999,"currency":"usd","active":true}`
	req, _ := http.NewRequest(http.MethodPost, "/plans", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), "price_123")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlan_DuplicateActiveType(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT \* FROM "plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "active"}).
			AddRow("2e9b1c1e-5c6f-4a6e-8d35-0f4c1d2f9ab1", "monthly", true))

	r := testutils.SetupTestRouter()
	r.POST("/plans", CreatePlan)

	body := `{"name":"Monthly v2","planType":"monthly","stripePriceId":"price_789"}`
	req, _ := http.NewRequest(http.MethodPost, "/plans", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"success":false`)
	assert.Contains(t, resp.Body.String(), "An active plan with this type already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlan_InvalidBody(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	r := testutils.SetupTestRouter()
	r.POST("/plans", CreatePlan)

	// name, planType and stripePriceId are all required
	req, _ := http.NewRequest(http.MethodPost, "/plans", bytes.NewBufferString(`{"name":"Monthly"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "Invalid request body")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePlan_Success(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	planID := "2e9b1c1e-5c6f-4a6e-8d35-0f4c1d2f9ab1"

	mock.ExpectQuery(`SELECT \* FROM "plans"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan_type", "active"}).
			AddRow(planID, "Monthly", "monthly", true))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "plans"`).
		WithArgs(
			false,            // active
			int64(999),       // amount
			"usd",            // currency
			"Monthly legacy", // name
			"monthly",        // plan_type
			"price_123",      // stripe_price_id
			sqlmock.AnyArg(), // updated_at
			planID,           // WHERE id
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := testutils.SetupTestRouter()
	r.PUT("/plans/:id", UpdatePlan)

	body := `{"name":"Monthly legacy","planType":"monthly","stripePriceId":"price_123","amount":999,"currency":"usd","active":false}`
	req, _ := http.NewRequest(http.MethodPut, "/plans/"+planID, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePlan_NotFound(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT \* FROM "plans"`).
		WillReturnError(gorm.ErrRecordNotFound)

	r := testutils.SetupTestRouter()
	r.PUT("/plans/:id", UpdatePlan)

	req, _ := http.NewRequest(http.MethodPut, "/plans/unknown", bytes.NewBufferString(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "Plan not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
