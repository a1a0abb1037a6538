package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/extract"
	"fintrack/internal/ingest"
	"fintrack/internal/services"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

type fakeExtractor struct {
	raw ingest.Raw
	err error
}

func (f *fakeExtractor) AnalyzeReceipt(context.Context, []byte, string) (ingest.Raw, error) {
	return f.raw, f.err
}

func (f *fakeExtractor) ExtractTransactionDetails(context.Context, string) (ingest.Raw, error) {
	return f.raw, f.err
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(context.Context, io.Reader, string) (string, error) {
	return "lunch twelve euros", nil
}

type testEnv struct {
	srv   *Server
	store *storage.Store
	fx    *fakeExtractor
}

func newTestEnv(t *testing.T, withCapture bool, opts Options) *testEnv {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{store: store, fx: &fakeExtractor{}}
	capture := services.NewCaptureService(nil, nil, nil, 0)
	if withCapture {
		capture = services.NewCaptureService(env.fx, fakeTranscriber{}, nil, 0)
	}
	env.srv, err = NewServer(":0", Deps{
		Store:        store,
		Transactions: services.NewTransactionService(store, nil, nil),
		Analytics:    services.NewAnalyticsService(store, 6, 5),
		Capture:      capture,
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.srv.Shutdown(context.Background()) })
	return env
}

type reqOpt func(*http.Request)

func asUser(id string) reqOpt {
	return func(r *http.Request) { r.Header.Set(session.HeaderUserID, id) }
}

func withAccount(at string) reqOpt {
	return func(r *http.Request) { r.Header.Set(session.HeaderAccountType, at) }
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, body)
	r.RemoteAddr = "198.51.100.10:1234"
	if body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(r)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndPublicRoutes(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["capture"])

	rec = env.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["categories"], len(core.DefaultCategories))
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodGet, "/api/wallets", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["requestId"])

	rec = env.do(t, http.MethodGet, "/api/wallets", nil, asUser("alice"), withAccount("corporate"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAccountSelection(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodGet, "/api/account", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "personal", decode(t, rec)["accountType"])

	rec = env.do(t, http.MethodPut, "/api/account", strings.NewReader(`{"accountType":"Family"}`), asUser("alice"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/account", nil, asUser("alice"))
	assert.Equal(t, "family", decode(t, rec)["accountType"])

	rec = env.do(t, http.MethodGet, "/api/account", nil, asUser("alice"), withAccount("business"))
	assert.Equal(t, "business", decode(t, rec)["accountType"], "header overrides the stored choice")

	rec = env.do(t, http.MethodPut, "/api/account", strings.NewReader(`{"accountType":"galactic"}`), asUser("alice"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/account", strings.NewReader(`{"accountType":`), asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionsFlow(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodPost, "/api/transactions",
		strings.NewReader(`{"amount": 12.5, "category": "food & dining", "place": "Cafe", "date": "2024-05-02"}`),
		asUser("alice"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	wallet := created["wallet"].(map[string]any)
	tx := created["transaction"].(map[string]any)
	assert.Equal(t, -12.5, wallet["balance"])
	assert.Equal(t, "Food & Dining", tx["category"])
	walletID := wallet["id"].(string)

	form := "amount=1500&type=income&category=Salary&place=Employer&date=2024-05-28"
	r := strings.NewReader(form)
	rec = env.do(t, http.MethodPost, "/api/transactions", r, asUser("alice"), func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1487.5, decode(t, rec)["wallet"].(map[string]any)["balance"])

	rec = env.do(t, http.MethodPost, "/api/transactions", strings.NewReader(`{"amount": "abc"}`), asUser("alice"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problems := decode(t, rec)["problems"].(map[string]any)
	assert.Contains(t, problems, "amount")
	assert.Contains(t, problems, "category")
	assert.Contains(t, problems, "place")

	rec = env.do(t, http.MethodGet, "/api/transactions?wallet="+walletID+"&from=2024-05-01&to=2024-05-10", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["transactions"], 1)

	rec = env.do(t, http.MethodGet, "/api/transactions?wallet="+walletID, nil, asUser("mallory"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions?wallet=nope", nil, asUser("alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions?from=yesterday", nil, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions", nil, asUser("alice"), withAccount("business"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["transactions"], "account contexts are isolated")
}

func TestListTransactionsSearchAndSort(t *testing.T) {
	env := newTestEnv(t, false, Options{})
	for _, body := range []string{
		`{"amount": 45, "category": "Food & Dining", "place": "Corner Bakery", "description": "bread", "date": "2024-06-03"}`,
		`{"amount": 12, "category": "Transportation", "place": "Metro", "date": "2024-06-01"}`,
		`{"amount": 99, "category": "Shopping", "place": "Hardware Store", "description": "drill bits", "date": "2024-06-07"}`,
		`{"amount": 3, "category": "food & dining", "place": "Kiosk", "date": "2024-06-05"}`,
	} {
		rec := env.do(t, http.MethodPost, "/api/transactions", strings.NewReader(body), asUser("carol"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	places := func(path string) []string {
		t.Helper()
		rec := env.do(t, http.MethodGet, path, nil, asUser("carol"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, tx := range decode(t, rec)["transactions"].([]any) {
			out = append(out, tx.(map[string]any)["place"].(string))
		}
		return out
	}

	assert.Equal(t, []string{"Corner Bakery"}, places("/api/transactions?q=BREAD"))
	assert.Equal(t, []string{"Hardware Store"}, places("/api/transactions?q=shop"))
	assert.Equal(t, []string{"Corner Bakery", "Kiosk"}, places("/api/transactions?category=food+%26+dining"))
	assert.Equal(t, []string{"Hardware Store", "Kiosk", "Corner Bakery", "Metro"}, places("/api/transactions?order=desc"))
	assert.Equal(t, []string{"Kiosk", "Metro", "Corner Bakery", "Hardware Store"}, places("/api/transactions?sort=amount"))
	assert.Equal(t, []string{"Hardware Store"}, places("/api/transactions?sort=amount&order=desc&limit=1"))

	for _, bad := range []string{"sort=place", "order=sideways"} {
		rec := env.do(t, http.MethodGet, "/api/transactions?"+bad, nil, asUser("carol"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestWallets(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodPost, "/api/wallets", strings.NewReader(`{"name":"Cash","openingBalance":"100,00"}`), asUser("bob"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cash := decode(t, rec)
	assert.Equal(t, true, cash["isActive"])
	assert.Equal(t, 100.0, cash["balance"])

	rec = env.do(t, http.MethodPost, "/api/wallets", strings.NewReader(`{"name":"Card"}`), asUser("bob"))
	require.Equal(t, http.StatusCreated, rec.Code)
	card := decode(t, rec)
	assert.Equal(t, false, card["isActive"])

	rec = env.do(t, http.MethodPost, "/api/wallets/"+card["id"].(string)+"/activate", nil, asUser("bob"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/wallets", nil, asUser("bob"))
	require.Equal(t, http.StatusOK, rec.Code)
	wallets := decode(t, rec)["wallets"].([]any)
	require.Len(t, wallets, 2)
	active := 0
	for _, w := range wallets {
		if w.(map[string]any)["isActive"] == true {
			active++
			assert.Equal(t, card["id"], w.(map[string]any)["id"])
		}
	}
	assert.Equal(t, 1, active)

	rec = env.do(t, http.MethodPost, "/api/wallets/"+card["id"].(string)+"/activate", nil, asUser("eve"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/wallets", strings.NewReader(`{"name":"  "}`), asUser("bob"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyticsEndpoint(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodGet, "/api/analytics", nil, asUser("carol"))
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode(t, rec)
	assert.Nil(t, empty["wallet"])
	assert.Equal(t, []any{}, empty["categoryBreakdown"])

	for _, body := range []string{
		`{"amount":"20","category":"Shopping","place":"Mall"}`,
		`{"amount":"5","category":"Health","place":"Pharmacy"}`,
		`{"amount":"15","category":"Shopping","place":"Market"}`,
		`{"amount":"900","kind":"income","category":"Salary","place":"Work"}`,
	} {
		rec := env.do(t, http.MethodPost, "/api/transactions", strings.NewReader(body), asUser("carol"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/analytics?months=3&top=1", nil, asUser("carol"))
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode(t, rec)
	assert.Equal(t, 40.0, s["totalSpent"])
	assert.Equal(t, 3.0, s["count"])
	top := s["topCategories"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, "Shopping", top[0].(map[string]any)["category"])

	rec = env.do(t, http.MethodGet, "/api/analytics?months=-1", nil, asUser("carol"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/analytics?months=1000", nil, asUser("carol"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCapture(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, false, Options{})
		rec := env.do(t, http.MethodPost, "/api/capture/text", strings.NewReader(`{"text":"coffee 2 euro"}`), asUser("dan"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	env := newTestEnv(t, true, Options{})
	raw, err := ingest.DecodeRaw([]byte(`{"amount":"12,00","category":"food & dining","place":"Trattoria","items":[{"name":"pasta"}]}`))
	require.NoError(t, err)
	env.fx.raw = raw

	rec := env.do(t, http.MethodPost, "/api/capture/text", strings.NewReader(`{"text":"lunch twelve euros"}`), asUser("dan"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decode(t, rec)
	assert.Equal(t, 12.0, d["amount"])
	assert.Equal(t, "Food & Dining", d["category"])
	assert.Equal(t, "pasta", d["description"])
	assert.Equal(t, false, d["needsReview"])

	body, ct := multipartBody(t, "image", "r.png", "image/png", []byte("\x89PNG\r\n\x1a\nfake"))
	rec = env.do(t, http.MethodPost, "/api/capture/receipt", body, asUser("dan"), func(r *http.Request) { r.Header.Set("Content-Type", ct) })
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "receipt", decode(t, rec)["source"])

	body, ct = multipartBody(t, "image", "r.txt", "text/plain", []byte("hello"))
	rec = env.do(t, http.MethodPost, "/api/capture/receipt", body, asUser("dan"), func(r *http.Request) { r.Header.Set("Content-Type", ct) })
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, "audio", "a.webm", "audio/webm", []byte("ogg"))
	rec = env.do(t, http.MethodPost, "/api/capture/voice", body, asUser("dan"), func(r *http.Request) { r.Header.Set("Content-Type", ct) })
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "lunch twelve euros", decode(t, rec)["transcript"])

	env.fx.raw = ingest.Raw{}
	rec = env.do(t, http.MethodPost, "/api/capture/text", strings.NewReader(`{"text":"something"}`), asUser("dan"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["needsReview"])

	env.fx.err = extract.ErrUpstream
	rec = env.do(t, http.MethodPost, "/api/capture/text", strings.NewReader(`{"text":"something"}`), asUser("dan"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "extraction service failed", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/capture/text", strings.NewReader(`{"text":"  "}`), asUser("dan"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRateLimitOnWrites(t *testing.T) {
	env := newTestEnv(t, false, Options{RateLimitPerMinute: 2})

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodGet, "/api/wallets", nil, asUser("erin"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/wallets", strings.NewReader(`{"name":"W"}`), asUser("erin"))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ingest.ValidationError{Problems: map[string]string{"amount": "required"}}, http.StatusUnprocessableEntity},
		{core.ErrTooLong, http.StatusUnprocessableEntity},
		{storage.ErrInvalidFilter, http.StatusBadRequest},
		{session.ErrNoSession, http.StatusUnauthorized},
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrWalletMismatch, http.StatusForbidden},
		{extract.ErrUpstream, http.StatusBadGateway},
		{extract.ErrAudioTooLarge, http.StatusRequestEntityTooLarge},
		{services.ErrCaptureDisabled, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
