package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/barcode"
	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/inventory"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/notify"
	"github.com/erazemk/zaloga/internal/store"
)

const testJWTSecret = "test-secret"

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last() notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	inv    *inventory.Service
	outbox *outbox
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	alloc, err := barcode.New(barcode.DefaultConfig)
	require.NoError(t, err)

	env := &testEnv{db: database, inv: inventory.New(database, alloc), outbox: &outbox{}}
	router := NewRouter(Deps{
		DB:             database,
		Inventory:      env.inv,
		Policy:         &auth.Policy{DB: database},
		Notifier:       env.outbox,
		JWTSecret:      testJWTSecret,
		TokenTTL:       time.Hour,
		ExpiringDays:   7,
		MaxUploadBytes: 1 << 20,
	})
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

// userToken creates a verified user and logs in through the API.
func (e *testEnv) userToken(t *testing.T, email, role string) string {
	t.Helper()
	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), e.db, email, hash, role, "")
	require.NoError(t, err)

	resp := e.do(t, "POST", "/api/auth/login", "", map[string]string{"email": email, "password": "password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login loginResponse
	decode(t, resp, &login)
	require.NotEmpty(t, login.Token)
	return login.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func (e *testEnv) stock(t *testing.T, quantity int, status model.Status, expires model.Date) *model.StockRecord {
	t.Helper()
	r := &model.StockRecord{
		Name:       "Coffee",
		Category:   "pantry",
		Quantity:   quantity,
		Price:      decimal.NewNullDecimal(decimal.RequireFromString("100.00")),
		ExpiryDate: expires,
		Status:     status,
	}
	require.NoError(t, e.inv.Create(context.Background(), r))
	return r
}

func inDays(n int) model.Date {
	return model.DateOf(time.Now()).AddDays(n)
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.userToken(t, "admin@example.com", model.RoleAdmin)

	resp := env.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "admin@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterVerifyLogin(t *testing.T) {
	env := setupTestServer(t)
	creds := map[string]string{"email": "new@example.com", "password": "password"}

	resp := env.do(t, "POST", "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var user model.User
	decode(t, resp, &user)
	assert.Equal(t, model.RoleCustomer, user.Role)
	assert.False(t, user.Verified)

	msg := env.outbox.last()
	assert.Equal(t, "new@example.com", msg.To)
	code := msg.Body[len("Your verification code is ") : len(msg.Body)-1]
	require.Len(t, code, auth.VerificationCodeDigits)

	resp = env.do(t, "POST", "/api/auth/register", "", creds)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	wrong := "00000"
	if code == wrong {
		wrong = "11111"
	}
	resp = env.do(t, "POST", "/api/auth/verify", "", map[string]string{"email": "new@example.com", "code": wrong})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/verify", "", map[string]string{"email": "new@example.com", "code": code})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResendVerification(t *testing.T) {
	env := setupTestServer(t)
	creds := map[string]string{"email": "late@example.com", "password": "password"}
	resend := map[string]string{"email": "late@example.com"}

	resp := env.do(t, "POST", "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := env.outbox.last().Body

	resp = env.do(t, "POST", "/api/auth/resend", "", resend)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msg := env.outbox.last()
	assert.Equal(t, "late@example.com", msg.To)
	code := msg.Body[len("Your verification code is ") : len(msg.Body)-1]
	require.Len(t, code, auth.VerificationCodeDigits)

	if old := first[len("Your verification code is ") : len(first)-1]; old != code {
		resp = env.do(t, "POST", "/api/auth/verify", "", map[string]string{"email": "late@example.com", "code": old})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp = env.do(t, "POST", "/api/auth/verify", "", map[string]string{"email": "late@example.com", "code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/resend", "", resend)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/resend", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/auth/register", "", map[string]string{"email": "not-an-email", "password": "password"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/register", "", map[string]string{"email": "a@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, map[string]any{"Password": "min"}, body["fields"])
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "GET", "/api/stock", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "customer@example.com", model.RoleCustomer)
	rec := env.stock(t, 2, model.StatusWarehouse, inDays(10))

	resp := env.do(t, "POST", "/api/stock/"+itoa(rec.ID)+"/showcase", token, map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "GET", "/api/users", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStockFlow(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "manager@example.com", model.RoleManager)
	rec := env.stock(t, 10, model.StatusWarehouse, inDays(10))
	id := itoa(rec.ID)

	resp := env.do(t, "POST", "/api/stock/"+id+"/showcase", token, map[string]int{"quantity": 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var moved inventory.Result
	decode(t, resp, &moved)
	assert.Equal(t, 6, moved.Source.Quantity)
	assert.Equal(t, 4, moved.Target.Quantity)
	assert.Equal(t, model.StatusShowcase, moved.Target.Status)
	showcaseID := itoa(moved.Target.ID)

	resp = env.do(t, "POST", "/api/stock/"+id+"/showcase", token, map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []model.StockRecord
	decode(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, moved.Target.ID, listed[0].ID)

	// No body sells a single unit.
	resp = env.do(t, "POST", "/api/stock/"+showcaseID+"/sell", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sold sellResponse
	decode(t, resp, &sold)
	assert.Equal(t, 3, sold.Source.Quantity)
	assert.Equal(t, 1, sold.Sold.Quantity)
	assert.Equal(t, model.StatusSold, sold.Sold.Status)

	resp = env.do(t, "POST", "/api/stock/"+showcaseID+"/sell", token, map[string]int{"quantity": 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/stock/"+id+"/sell", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock/scan/"+rec.Barcode, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scanned scanResponse
	decode(t, resp, &scanned)
	assert.Equal(t, 3, scanned.Quantity)
	assert.Equal(t, 9, scanned.OnHand)

	resp = env.do(t, "POST", "/api/stock/"+showcaseID+"/discount", token, map[string]string{"percent": "15"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var discounted inventory.Discounted
	decode(t, resp, &discounted)
	assert.True(t, discounted.OldPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, discounted.NewPrice.Equal(decimal.NewFromInt(85)))

	resp = env.do(t, "POST", "/api/stock/"+id+"/discount", token, map[string]string{"percent": "15"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/stock/"+showcaseID+"/remove", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock/"+showcaseID+"/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []model.Movement
	decode(t, resp, &history)
	assert.Len(t, history, 2)

	resp = env.do(t, "GET", "/api/stock/99999", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock/scan/0000000000000", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock?status=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForecastEndpoint(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "manager@example.com", model.RoleManager)
	env.stock(t, 10, model.StatusWarehouse, inDays(30))
	shelf := env.stock(t, 5, model.StatusShowcase, inDays(30))

	resp := env.do(t, "POST", "/api/stock/"+itoa(shelf.ID)+"/sell", token, map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/forecast", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var forecasts []model.CategoryForecast
	decode(t, resp, &forecasts)
	require.Len(t, forecasts, 1)
	assert.Equal(t, "pantry", forecasts[0].Category)
	assert.Equal(t, 10, forecasts[0].CurrentStock)
	assert.Equal(t, 2, forecasts[0].HistoricalSales)
	assert.True(t, forecasts[0].ForecastRevenue.Equal(decimal.NewFromInt(200)))

	customer := env.userToken(t, "customer@example.com", model.RoleCustomer)
	resp = env.do(t, "GET", "/api/forecast", customer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRemoveAndExpiring(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "manager@example.com", model.RoleManager)
	old := env.stock(t, 2, model.StatusShowcase, inDays(-1))
	soon := env.stock(t, 2, model.StatusWarehouse, inDays(3))
	env.stock(t, 2, model.StatusWarehouse, inDays(30))

	resp := env.do(t, "GET", "/api/stock/expiring", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var expiring []model.StockRecord
	decode(t, resp, &expiring)
	require.Len(t, expiring, 2)
	assert.Equal(t, old.ID, expiring[0].ID)
	assert.Equal(t, soon.ID, expiring[1].ID)

	resp = env.do(t, "POST", "/api/stock/"+itoa(old.ID)+"/remove", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var removed model.StockRecord
	decode(t, resp, &removed)
	assert.Equal(t, model.StatusDeleted, removed.Status)

	resp = env.do(t, "GET", "/api/stock/expiring?days=60", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &expiring)
	assert.Len(t, expiring, 2)

	resp = env.do(t, "GET", "/api/stock/expiring?days=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func upload(t *testing.T, env *testEnv, token, fileName, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", env.server.URL+"/api/uploads", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadPromotesCustomer(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "customer@example.com", model.RoleCustomer)

	resp := upload(t, env, token, "notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	csv := "name,quantity,price,expire_date\nTea,5,3.20,2099-01-01\nBroken,x,1,2099-01-01\nSugar,2,,2099-02-01\n"
	resp = upload(t, env, token, "delivery.csv", csv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out inventory.Imported
	decode(t, resp, &out)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 1, out.Skipped)

	resp = env.do(t, "GET", "/api/uploads/"+itoa(out.Upload.ID)+"/items", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []model.StockRecord
	decode(t, resp, &items)
	require.Len(t, items, 2)

	resp = env.do(t, "GET", "/api/uploads", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploads []model.UploadBatch
	decode(t, resp, &uploads)
	require.Len(t, uploads, 1)
	assert.Equal(t, "customer@example.com", uploads[0].UploaderEmail)

	// The same token now carries manager rights.
	resp = env.do(t, "POST", "/api/stock/"+itoa(items[0].ID)+"/showcase", token, map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "customer@example.com", model.RoleCustomer)

	resp := env.do(t, "POST", "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/stock", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "customer@example.com", model.RoleCustomer)

	resp := env.do(t, "PUT", "/api/auth/password", token, map[string]string{"current_password": "nope", "new_password": "brand-new-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/auth/password", token, map[string]string{"current_password": "password", "new_password": "brand-new-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "customer@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUsersAdmin(t *testing.T) {
	env := setupTestServer(t)
	token := env.userToken(t, "admin@example.com", model.RoleAdmin)

	resp := env.do(t, "POST", "/api/users", token, map[string]string{
		"email": "staff@example.com", "password": "password", "role": "cashier",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/users", token, map[string]string{
		"email": "staff@example.com", "password": "password", "role": model.RoleCustomer,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var staff model.User
	decode(t, resp, &staff)
	assert.True(t, staff.Verified)

	resp = env.do(t, "PUT", "/api/users/"+itoa(staff.ID), token, map[string]string{"role": model.RoleManager})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated model.User
	decode(t, resp, &updated)
	assert.Equal(t, model.RoleManager, updated.Role)

	resp = env.do(t, "GET", "/api/users", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []model.User
	decode(t, resp, &users)
	assert.Len(t, users, 2)

	resp = env.do(t, "DELETE", "/api/users/"+itoa(staff.ID), token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, "DELETE", "/api/users/"+itoa(staff.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	admin, err := store.GetUserByEmail(context.Background(), env.db, "admin@example.com")
	require.NoError(t, err)
	resp = env.do(t, "DELETE", "/api/users/"+itoa(admin.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
