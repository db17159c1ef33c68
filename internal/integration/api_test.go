package integration

import (
	"bytes"
	"context"
	"database/sql"
	"device-loan-api/internal/config"
	"device-loan-api/internal/database"
	"device-loan-api/internal/handler"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/internal/router"
	"device-loan-api/internal/service"
	"device-loan-api/pkg/auth"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminUser     = "admin"
	testAdminPassword = "integration-pass"
)

// recordingReminders implements service.NotificationService for testing
type recordingReminders struct {
	mu        sync.Mutex
	reminders []service.OverdueReminder
}

func (r *recordingReminders) SendOverdueReminder(ctx context.Context, reminder service.OverdueReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders = append(r.reminders, reminder)
	return nil
}

func (r *recordingReminders) sent() []service.OverdueReminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]service.OverdueReminder, len(r.reminders))
	copy(out, r.reminders)
	return out
}

// IntegrationTestSuite holds the test dependencies
type IntegrationTestSuite struct {
	DB        *sql.DB
	Router    http.Handler
	Config    *config.Config
	Reminders *recordingReminders
}

// setupIntegrationTest initializes the test environment
func setupIntegrationTest(t *testing.T) *IntegrationTestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := loadTestConfig(t)
	db := initTestDatabase(t, cfg)
	cleanDatabase(t, db)

	hash, err := auth.HashPassword(testAdminPassword)
	require.NoError(t, err)

	devices := repository.NewDeviceRepository(db)
	ledger := repository.NewLedgerRepository(db)
	reminders := &recordingReminders{}
	loc := cfg.Location()

	authService := service.NewAuthService(repository.NewAdminRepository(db), service.AdminCredentials{
		Username:     testAdminUser,
		PasswordHash: hash,
	}, auth.TokenConfig{Secret: "integration-secret-value", Issuer: "device-loan-api", TTL: time.Hour}, nil)
	registryService := service.NewRegistryService(devices, nil)

	ledgerHandler := handler.NewLedgerHandler(
		service.NewLedgerService(devices, ledger, cfg.Loans.AllowedEmailDomains, nil, nil),
		registryService, db, cfg.Server.MaxBodyBytes, nil)
	adminHandler := handler.NewAdminHandler(handler.AdminServices{
		Auth:     authService,
		Registry: registryService,
		Reports:  service.NewReportService(ledger, loc, nil),
		Importer: service.NewImportService(repository.NewRestoreRepository(db), cfg.Loans.ImportEmailDomain, loc, nil, nil),
		Reminder: service.NewReminderService(ledger, reminders, cfg.Loans.LoanPeriod, loc, nil, nil),
	}, cfg.Server.MaxBodyBytes, nil)

	testRouter := router.NewRouter(router.Handlers{
		Ledger:   ledgerHandler,
		Admin:    adminHandler,
		Verifier: authService,
	}, cfg, nil)

	return &IntegrationTestSuite{
		DB:        db,
		Router:    testRouter,
		Config:    cfg,
		Reminders: reminders,
	}
}

// teardownIntegrationTest cleans up test resources
func teardownIntegrationTest(t *testing.T, suite *IntegrationTestSuite) {
	t.Helper()
	if suite.DB != nil {
		cleanDatabase(t, suite.DB)
		suite.DB.Close()
	}
}

// loadTestConfig loads configuration for testing
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dbPort, err := strconv.Atoi(getEnv("TEST_DB_PORT", "5452"))
	if err != nil {
		t.Fatalf("invalid TEST_DB_PORT: %v", err)
	}

	return &config.Config{
		App: config.AppConfig{Port: 8080, LogLevel: "info", Timezone: "UTC"},
		Database: config.DatabaseConfig{
			Host:         getEnv("TEST_DB_HOST", "127.0.0.1"),
			Port:         dbPort,
			User:         getEnv("TEST_DB_USER", "postgres"),
			Password:     getEnv("TEST_DB_PASSWORD", "postgres"),
			Name:         getEnv("TEST_DB_NAME", "postgres"),
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 10,
		},
		Loans: config.LoanConfig{
			AllowedEmailDomains: []string{"example.org"},
			ImportEmailDomain:   "imported.invalid",
			LoanPeriod:          7 * 24 * time.Hour,
		},
		Security: config.SecurityConfig{
			RateLimitRPS:    100,
			RateLimitBurst:  200,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
		},
		Server: config.ServerConfig{MaxBodyBytes: 1 << 20},
	}
}

// initTestDatabase connects and migrates the test database, skipping the
// test when it is unreachable
func initTestDatabase(t *testing.T, cfg *config.Config) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		t.Skipf("Failed to connect to test database: %v. Ensure test database is running.", err)
	}

	if err := database.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// cleanDatabase removes all test data
func cleanDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec("TRUNCATE TABLE loans, borrowers, devices, admin_logins RESTART IDENTITY CASCADE")
	if err != nil {
		t.Logf("Warning: Failed to clean database: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createJSONRequest builds a request with a JSON body
func createJSONRequest(method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseJSONResponse(t *testing.T, resp *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode JSON response: %v. Body: %s", err, resp.Body.String())
	}
}

// do sends a request through the router, with the admin token when set
func (s *IntegrationTestSuite) do(method, url string, body interface{}, token string) *httptest.ResponseRecorder {
	req := createJSONRequest(method, url, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)
	return resp
}

func (s *IntegrationTestSuite) login(t *testing.T) string {
	t.Helper()

	resp := s.do(http.MethodPost, "/api/v1/admin/login", map[string]string{
		"username": testAdminUser,
		"password": testAdminPassword,
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	parseJSONResponse(t, resp, &body)
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

func (s *IntegrationTestSuite) addDevice(t *testing.T, token, rubric, suffix, category string) int64 {
	t.Helper()

	resp := s.do(http.MethodPost, "/api/v1/admin/devices", map[string]string{
		"rubric_id": rubric,
		"suffix_id": suffix,
		"category":  category,
	}, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var body struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	parseJSONResponse(t, resp, &body)
	require.NotZero(t, body.Data.ID)
	return body.Data.ID
}

func listCount(t *testing.T, resp *httptest.ResponseRecorder) int {
	t.Helper()
	var body struct {
		Count int `json:"count"`
	}
	parseJSONResponse(t, resp, &body)
	return body.Count
}

func TestIntegration_HealthCheck(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	resp := suite.do(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)

	var body map[string]interface{}
	parseJSONResponse(t, resp, &body)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "healthy", data["status"])
}

func TestIntegration_AdminRoutesRequireToken(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	for _, path := range []string{"/api/v1/admin/devices", "/api/v1/admin/export", "/api/v1/admin/loans/history"} {
		resp := suite.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}

	resp := suite.do(http.MethodPost, "/api/v1/admin/login", map[string]string{
		"username": testAdminUser,
		"password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	token := suite.login(t)
	resp = suite.do(http.MethodGet, "/api/v1/admin/logins", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, listCount(t, resp), "both login attempts are audited")
}

func TestIntegration_LoanLifecycle(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	token := suite.login(t)
	laptop := suite.addDevice(t, token, "SHC-LQ", "001", "Laptop")
	charger := suite.addDevice(t, token, "SHC-LP", "001", "Charger")

	resp := suite.do(http.MethodGet, "/api/v1/devices/available", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, listCount(t, resp))

	resp = suite.do(http.MethodGet, "/api/v1/devices/available?category=Laptop", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, listCount(t, resp))

	t.Run("Borrow_Both_Devices", func(t *testing.T) {
		resp := suite.do(http.MethodPost, "/api/v1/loans", map[string]interface{}{
			"first_name": "Maud",
			"last_name":  "Okafor",
			"email":      "  Maud.Okafor@Example.org ",
			"device_ids": []int64{laptop, charger},
		}, "")
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

		resp = suite.do(http.MethodGet, "/api/v1/devices/available", nil, "")
		assert.Equal(t, 0, listCount(t, resp))

		resp = suite.do(http.MethodGet, "/api/v1/loans/open", nil, "")
		assert.Equal(t, 2, listCount(t, resp))

		resp = suite.do(http.MethodGet, "/api/v1/borrowers/maud.okafor@example.org/loans", nil, "")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, 2, listCount(t, resp))
	})

	t.Run("Loaned_Device_Cannot_Be_Borrowed_Again", func(t *testing.T) {
		resp := suite.do(http.MethodPost, "/api/v1/loans", map[string]interface{}{
			"first_name": "Jonas",
			"last_name":  "Berg",
			"email":      "jonas.berg@example.org",
			"device_ids": []int64{laptop},
		}, "")
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("Foreign_Domain_Rejected", func(t *testing.T) {
		resp := suite.do(http.MethodPost, "/api/v1/loans", map[string]interface{}{
			"first_name": "Eve",
			"last_name":  "Mallory",
			"email":      "eve@elsewhere.test",
			"device_ids": []int64{laptop},
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("On_Loan_Device_Cannot_Be_Deleted", func(t *testing.T) {
		resp := suite.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/devices/%d", laptop), nil, token)
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("Return_By_Borrower_And_Device", func(t *testing.T) {
		resp := suite.do(http.MethodPost, "/api/v1/returns", map[string]interface{}{
			"email":     "maud.okafor@example.org",
			"device_id": laptop,
		}, "")
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		resp = suite.do(http.MethodPost, "/api/v1/returns", map[string]interface{}{
			"email":     "maud.okafor@example.org",
			"device_id": laptop,
		}, "")
		assert.Equal(t, http.StatusConflict, resp.Code, "second return matches no open loan")

		resp = suite.do(http.MethodGet, "/api/v1/devices/available", nil, "")
		assert.Equal(t, 1, listCount(t, resp))
	})

	t.Run("History_Keeps_Returned_Loans", func(t *testing.T) {
		resp := suite.do(http.MethodGet, "/api/v1/admin/loans/history", nil, token)
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			History []struct {
				Label  string `json:"label"`
				Status string `json:"status"`
			} `json:"history"`
		}
		parseJSONResponse(t, resp, &body)
		require.Len(t, body.History, 2)

		statuses := map[string]string{}
		for _, row := range body.History {
			statuses[row.Label] = row.Status
		}
		assert.Equal(t, "Returned", statuses["SHC-LQ-001"])
		assert.Equal(t, "On Loan", statuses["SHC-LP-001"])
	})

	t.Run("Returned_Device_Can_Be_Deleted", func(t *testing.T) {
		resp := suite.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/devices/%d", laptop), nil, token)
		assert.Equal(t, http.StatusOK, resp.Code)

		resp = suite.do(http.MethodGet, "/api/v1/admin/loans/history", nil, token)
		assert.Equal(t, 2, listCount(t, resp), "the loan keeps its device snapshot")
	})
}

func TestIntegration_ReturnSeveralDevices(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	token := suite.login(t)
	laptop := suite.addDevice(t, token, "SHC-LQ", "001", "Laptop")
	charger := suite.addDevice(t, token, "SHC-LP", "001", "Charger")
	ipad := suite.addDevice(t, token, "SHC-IQ", "001", "iPad")

	resp := suite.do(http.MethodPost, "/api/v1/loans", map[string]interface{}{
		"first_name": "Maud",
		"last_name":  "Okafor",
		"email":      "maud.okafor@example.org",
		"device_ids": []int64{laptop, charger},
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = suite.do(http.MethodPost, "/api/v1/returns", map[string]interface{}{
		"email":      "maud.okafor@example.org",
		"device_ids": []int64{ipad},
	}, "")
	assert.Equal(t, http.StatusConflict, resp.Code, "a device not on loan returns nothing")

	resp = suite.do(http.MethodPost, "/api/v1/returns", map[string]interface{}{
		"email":      "maud.okafor@example.org",
		"device_ids": []int64{charger, ipad, laptop},
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Data model.ReturnResult `json:"data"`
	}
	parseJSONResponse(t, resp, &body)
	assert.Len(t, body.Data.Loans, 2)
	assert.True(t, body.Data.Partial)
	require.Len(t, body.Data.Outcomes, 3)
	assert.Equal(t, model.OutcomeNotOnLoan, body.Data.Outcomes[1].Outcome)

	resp = suite.do(http.MethodGet, "/api/v1/devices/available", nil, "")
	assert.Equal(t, 3, listCount(t, resp))
}

func TestIntegration_ExportImportRoundTrip(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	token := suite.login(t)
	first := suite.addDevice(t, token, "SHC-IQ", "004", "iPad")
	suite.addDevice(t, token, "SHC-HP", "010", "Headphones")

	resp := suite.do(http.MethodPost, "/api/v1/loans", map[string]interface{}{
		"first_name": "Ines",
		"last_name":  "Duarte",
		"email":      "ines.duarte@example.org",
		"device_ids": []int64{first},
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = suite.do(http.MethodGet, "/api/v1/admin/export", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "device-loans-")
	exported := resp.Body.Bytes()

	cleanDatabase(t, suite.DB)
	token = suite.login(t)

	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(exported, &snapshot))
	resp = suite.do(http.MethodPost, "/api/v1/admin/import", snapshot, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var imported struct {
		Data struct {
			Devices   int `json:"devices"`
			Borrowers int `json:"borrowers"`
			Loans     int `json:"loans"`
			OpenLoans int `json:"open_loans"`
		} `json:"data"`
	}
	parseJSONResponse(t, resp, &imported)
	assert.Equal(t, 2, imported.Data.Devices)
	assert.Equal(t, 1, imported.Data.Borrowers)
	assert.Equal(t, 1, imported.Data.Loans)
	assert.Equal(t, 1, imported.Data.OpenLoans)

	resp = suite.do(http.MethodGet, "/api/v1/devices/available", nil, "")
	assert.Equal(t, 1, listCount(t, resp))

	resp = suite.do(http.MethodGet, "/api/v1/borrowers/ines.duarte@example.org/loans", nil, "")
	assert.Equal(t, 1, listCount(t, resp))
}

func TestIntegration_OverdueReminders(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	token := suite.login(t)
	overdue := suite.addDevice(t, token, "SHC-LQ", "007", "Laptop")
	recent := suite.addDevice(t, token, "SHC-LQ", "008", "Laptop")

	resp := suite.do(http.MethodPost, "/api/v1/loans", map[string]interface{}{
		"first_name": "Tomas",
		"last_name":  "Lind",
		"email":      "tomas.lind@example.org",
		"device_ids": []int64{overdue, recent},
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	_, err := suite.DB.Exec("UPDATE loans SET loaned_at = now() - interval '10 days' WHERE device_id = $1", overdue)
	require.NoError(t, err)

	resp = suite.do(http.MethodGet, "/api/v1/admin/loans/overdue", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, listCount(t, resp))

	resp = suite.do(http.MethodPost, "/api/v1/admin/loans/overdue/notify", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	sent := suite.Reminders.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "tomas.lind@example.org", sent[0].Recipient)
	assert.Equal(t, "SHC-LQ-007", sent[0].DeviceLabel)
	assert.Equal(t, 10, sent[0].DaysOut)
}
