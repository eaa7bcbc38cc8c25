package controllers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-qris/payment/browser"
	"go-qris/payment/db"
	"go-qris/payment/events"
	"go-qris/payment/order"
	"go-qris/payment/qrcode"
	"go-qris/web/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testPassword = "hunter2"

type fakeStore struct {
	mu       sync.Mutex
	payments map[string]db.TrackedPayment
	products map[string]db.Product
	logs     []db.AdminLog
	seq      int

	beforeUpdate func(payments map[string]db.TrackedPayment)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: make(map[string]db.TrackedPayment),
		products: make(map[string]db.Product),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) CreateTrackedPayment(_ context.Context, p *db.TrackedPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.nextID("pay")
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *fakeStore) FindTrackedPayment(_ context.Context, id string) (db.TrackedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return p, db.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ListTrackedPayments(_ context.Context, status db.Status, _ bool) ([]db.TrackedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.TrackedPayment
	for _, p := range s.payments {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateTrackedPaymentStatus(_ context.Context, id string, status db.Status, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeUpdate != nil {
		s.beforeUpdate(s.payments)
	}
	p, ok := s.payments[id]
	if !ok || p.Status != db.StatusPending {
		return db.ErrNotPending
	}
	p.Status = status
	p.PaidAt = paidAt
	s.payments[id] = p
	return nil
}

func (s *fakeStore) DeleteTrackedPayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *fakeStore) AppendLogEntry(_ context.Context, action, message string, level db.LogLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, db.AdminLog{ID: s.nextID("log"), Action: action, Message: message, Level: level})
	return nil
}

func (s *fakeStore) RecentLogs(_ context.Context, limit int) ([]db.AdminLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.AdminLog
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *fakeStore) ListProducts(context.Context) ([]db.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Product
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) CreateProduct(_ context.Context, p *db.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.URL == p.URL {
			*p = existing
			return false, nil
		}
	}
	p.ID = s.nextID("prod")
	s.products[p.ID] = *p
	return true, nil
}

func (s *fakeStore) FindOrCreateProduct(_ context.Context, name string, price int64) (db.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	p := db.Product{ID: s.nextID("prod"), URL: "manual://upload", Name: name, Price: price}
	s.products[p.ID] = p
	return p, nil
}

func (s *fakeStore) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *fakeStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

func (s *fakeStore) onlyPayment(t *testing.T) db.TrackedPayment {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payments) != 1 {
		t.Fatalf("expected one payment, have %d", len(s.payments))
	}
	for _, p := range s.payments {
		return p
	}
	return db.TrackedPayment{}
}

type fakeMatcher struct {
	match *order.PendingOrder
	asked []int64
}

func (m *fakeMatcher) FindPendingByAmount(_ context.Context, amount int64) (*order.PendingOrder, bool) {
	m.asked = append(m.asked, amount)
	if m.match == nil {
		return nil, false
	}
	return m.match, true
}

type fakeChecker struct {
	res order.Result
	err error
}

func (c *fakeChecker) Run(context.Context) (order.Result, error) {
	return c.res, c.err
}

type testEnv struct {
	h       *Handler
	r       *gin.Engine
	store   *fakeStore
	matcher *fakeMatcher
	checker *fakeChecker
	broker  *events.Broker
	dir     string
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth, err := middleware.NewAdminAuth("test-secret", testPassword, 24*time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	env := &testEnv{
		store:   newFakeStore(),
		matcher: &fakeMatcher{},
		checker: &fakeChecker{},
		broker:  events.NewBroker(8),
		dir:     dir,
		now:     time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	env.h = &Handler{
		Store:         env.store,
		Matcher:       env.matcher,
		Checker:       env.checker,
		Images:        qrcode.NewStorage(filepath.Join(dir, "qris")),
		Cookies:       browser.NewCookieStore(filepath.Join(dir, "cookies.json")),
		Broker:        env.broker,
		Gate:          order.NewGate(),
		Auth:          auth,
		Logins:        middleware.NewLoginLimiter(5, time.Minute, 5*time.Minute),
		ExpiryMinutes: 15,
		Logger:        zap.NewNop(),
		now:           func() time.Time { return env.now },
	}
	env.r = gin.New()
	env.h.Register(env.r, nil)
	return env
}

func (e *testEnv) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token, err := e.h.Auth.IssueToken()
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: middleware.AdminCookie, Value: token}
}

func (e *testEnv) do(method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:4000"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return env
}

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

func testPayload(amount string) string {
	return tlv("00", "01") +
		tlv("01", "12") +
		tlv("54", amount) +
		tlv("58", "ID") +
		tlv("59", "TOKO MAKMUR") +
		tlv("60", "JAKARTA") +
		tlv("62", tlv("01", "INV-0000001")) +
		"6304ABCD"
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/auth/login", gin.H{"password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized || decode(t, w).Error != "Invalid password" {
		t.Fatalf("wrong password: %d %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPost, "/api/auth/login", gin.H{"password": testPassword}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AdminCookie {
			session = c
		}
	}
	if session == nil || !session.HttpOnly {
		t.Fatalf("expected http only session cookie, got %v", w.Result().Cookies())
	}

	w = e.do(http.MethodGet, "/api/auth/login", nil, session)
	if !strings.Contains(w.Body.String(), `"authenticated":true`) {
		t.Fatalf("status with cookie: %s", w.Body.String())
	}
	w = e.do(http.MethodGet, "/api/auth/login", nil, nil)
	if !strings.Contains(w.Body.String(), `"authenticated":false`) {
		t.Fatalf("status without cookie: %s", w.Body.String())
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	e := newTestEnv(t)

	for i := 0; i < 5; i++ {
		w := e.do(http.MethodPost, "/api/auth/login", gin.H{"password": "wrong"}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i, w.Code)
		}
	}

	// even the right password is refused while blocked
	w := e.do(http.MethodPost, "/api/auth/login", gin.H{"password": testPassword}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "300" {
		t.Errorf("Retry-After = %q", got)
	}
	if msg := decode(t, w).Error; msg != "Too many login attempts. Try again in 300 seconds." {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestAdminRoutesRequireLogin(t *testing.T) {
	e := newTestEnv(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/qris/upload"},
		{http.MethodPost, "/api/qris/mark-paid"},
		{http.MethodDelete, "/api/qris?id=x"},
		{http.MethodPost, "/api/payment/check"},
		{http.MethodGet, "/api/logs"},
		{http.MethodGet, "/api/auth"},
		{http.MethodPost, "/api/products"},
	}
	for _, r := range routes {
		w := e.do(r.method, r.path, gin.H{}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d", r.method, r.path, w.Code)
		}
	}
}

func TestUploadAutoMatchesPendingOrder(t *testing.T) {
	e := newTestEnv(t)
	deadline := e.now.Add(40 * time.Minute)
	e.matcher.match = &order.PendingOrder{OrderID: "AMT-150000", Amount: 150000, Deadline: &deadline}
	sub := e.broker.Subscribe()

	w := e.do(http.MethodPost, "/api/qris/upload", gin.H{
		"payload":       testPayload("150000"),
		"useAutoExpiry": true,
	}, e.adminCookie(t))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp.Message != "Detected amount: Rp 150.000 | Auto-matched order: AMT-150000" {
		t.Errorf("message = %q", resp.Message)
	}
	var data struct {
		Amount         int64  `json:"amount"`
		DetectedAmount *int64 `json:"detectedAmount"`
		MatchedOrderID string `json:"matchedOrderId"`
	}
	json.Unmarshal(resp.Data, &data)
	if data.Amount != 150000 || data.DetectedAmount == nil || *data.DetectedAmount != 150000 || data.MatchedOrderID != "AMT-150000" {
		t.Errorf("unexpected data %s", resp.Data)
	}

	p := e.store.onlyPayment(t)
	if p.OrderID != "AMT-150000" || p.Status != db.StatusPending {
		t.Errorf("stored %+v", p)
	}
	if !p.ExpiresAt.Equal(deadline) {
		t.Errorf("expiry %v, want the order deadline %v", p.ExpiresAt, deadline)
	}
	if !strings.HasPrefix(p.QrisImage, imageRoute+"qris_") {
		t.Errorf("image path %q", p.QrisImage)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "qris", strings.TrimPrefix(p.QrisImage, imageRoute))); err != nil {
		t.Errorf("image not written: %v", err)
	}
	if len(e.matcher.asked) != 1 || e.matcher.asked[0] != 150000 {
		t.Errorf("matcher asked for %v", e.matcher.asked)
	}

	want := []string{"order_auto_matched", "upload_qris"}
	if got := e.store.actions(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("operator log %v, want %v", got, want)
	}
	select {
	case ev := <-sub:
		if ev.Type != events.QrisCreated {
			t.Errorf("event %s", ev.Type)
		}
	default:
		t.Error("no event published")
	}
}

func TestUploadWithoutMatchUsesMinutesAndReference(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/qris/upload", gin.H{
		"payload":       testPayload("75000"),
		"productName":   "Kopi",
		"expiryMinutes": 30,
	}, e.adminCookie(t))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}

	p := e.store.onlyPayment(t)
	if p.OrderID != "INV-0000001" {
		t.Errorf("order id %q", p.OrderID)
	}
	if !p.ExpiresAt.Equal(e.now.Add(30 * time.Minute)) {
		t.Errorf("expiry %v", p.ExpiresAt)
	}
	if p.Amount != 75000 {
		t.Errorf("amount %d", p.Amount)
	}
	if msg := decode(t, w).Message; msg != "Detected amount: Rp 75.000" {
		t.Errorf("message %q", msg)
	}
}

func TestUploadExplicitOrderSkipsMatching(t *testing.T) {
	e := newTestEnv(t)
	e.matcher.match = &order.PendingOrder{OrderID: "AMT-50000", Amount: 50000}

	w := e.do(http.MethodPost, "/api/qris/upload", gin.H{
		"payload": tlv("00", "01") + tlv("58", "ID"),
		"amount":  50000,
		"orderId": "ORDER-7",
	}, e.adminCookie(t))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	if len(e.matcher.asked) != 0 {
		t.Error("matcher should not be asked when an order id is given")
	}

	p := e.store.onlyPayment(t)
	if p.OrderID != "ORDER-7" || p.Amount != 50000 {
		t.Errorf("stored %+v", p)
	}
	if !p.ExpiresAt.Equal(e.now.Add(15 * time.Minute)) {
		t.Errorf("default expiry %v", p.ExpiresAt)
	}
	if msg := decode(t, w).Message; msg != "QRIS uploaded successfully" {
		t.Errorf("message %q", msg)
	}
}

func TestUploadRequiresPayloadOrImage(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/qris/upload", gin.H{"productName": "x"}, e.adminCookie(t))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d", w.Code)
	}
}

func TestUploadBadImageIsLogged(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/qris/upload", gin.H{
		"imageBase64": "data:image/png;base64,@@@",
		"amount":      50000,
		"orderId":     "ORDER-1",
	}, e.adminCookie(t))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", w.Code)
	}
	if got := e.store.actions(); len(got) != 1 || got[0] != "upload_qris_error" {
		t.Errorf("operator log %v", got)
	}
}

func TestMarkPaid(t *testing.T) {
	e := newTestEnv(t)
	e.store.CreateTrackedPayment(context.Background(), &db.TrackedPayment{
		ID:      "p1",
		Amount:  150000,
		Status:  db.StatusPending,
		Product: &db.Product{Name: "Kopi"},
	})
	admin := e.adminCookie(t)
	sub := e.broker.Subscribe()

	w := e.do(http.MethodPost, "/api/qris/mark-paid", gin.H{"qrisId": "p1"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("mark paid: %d %s", w.Code, w.Body.String())
	}
	p, _ := e.store.FindTrackedPayment(context.Background(), "p1")
	if p.Status != db.StatusPaid || p.PaidAt == nil || !p.PaidAt.Equal(e.now) {
		t.Errorf("stored %+v", p)
	}
	if e.store.logs[0].Message != "QRIS marked as paid: Kopi - Rp 150.000" {
		t.Errorf("log message %q", e.store.logs[0].Message)
	}
	if ev := <-sub; ev.Type != events.QrisPaid {
		t.Errorf("event %s", ev.Type)
	}

	w = e.do(http.MethodPost, "/api/qris/mark-paid", gin.H{"qrisId": "p1"}, admin)
	if w.Code != http.StatusBadRequest || decode(t, w).Error != "QRIS is already paid" {
		t.Errorf("second mark: %d %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPost, "/api/qris/mark-paid", gin.H{"qrisId": "nope"}, admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: %d", w.Code)
	}
	w = e.do(http.MethodPost, "/api/qris/mark-paid", gin.H{}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id: %d", w.Code)
	}
}

func TestDeleteQris(t *testing.T) {
	e := newTestEnv(t)
	e.store.CreateTrackedPayment(context.Background(), &db.TrackedPayment{ID: "p1", Status: db.StatusPending})
	admin := e.adminCookie(t)
	sub := e.broker.Subscribe()

	if w := e.do(http.MethodDelete, "/api/qris?id=nope", nil, admin); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/api/qris", nil, admin); w.Code != http.StatusBadRequest {
		t.Errorf("missing id: %d", w.Code)
	}

	w := e.do(http.MethodDelete, "/api/qris?id=p1", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if _, err := e.store.FindTrackedPayment(context.Background(), "p1"); !errors.Is(err, db.ErrNotFound) {
		t.Error("payment still stored")
	}
	if ev := <-sub; ev.Type != events.QrisDeleted {
		t.Errorf("event %s", ev.Type)
	}
}

func TestListQrisFiltersByStatus(t *testing.T) {
	e := newTestEnv(t)
	e.store.CreateTrackedPayment(context.Background(), &db.TrackedPayment{ID: "p1", Status: db.StatusPending})
	e.store.CreateTrackedPayment(context.Background(), &db.TrackedPayment{ID: "p2", Status: db.StatusPaid})

	var list []db.TrackedPayment
	json.Unmarshal(decode(t, e.do(http.MethodGet, "/api/qris?status=paid", nil, nil)).Data, &list)
	if len(list) != 1 || list[0].ID != "p2" {
		t.Errorf("got %+v", list)
	}
}

func TestCheckPayments(t *testing.T) {
	e := newTestEnv(t)
	admin := e.adminCookie(t)
	e.checker.res = order.Result{Checked: 3, Updated: 1}

	w := e.do(http.MethodPost, "/api/payment/check", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("check: %d %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w).Message; msg != "Checked 3 orders, 1 updated" {
		t.Errorf("message %q", msg)
	}
	if e.store.logs[0].Action != "payment_check" || e.store.logs[0].Message != "Checked 3 orders, updated 1" {
		t.Errorf("log %+v", e.store.logs[0])
	}

	e.checker.err = errors.New("db down")
	w = e.do(http.MethodPost, "/api/payment/check", nil, admin)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("failing check: %d", w.Code)
	}
	if got := e.store.logs[1].Action; got != "payment_check_error" {
		t.Errorf("log action %s", got)
	}

	w = e.do(http.MethodGet, "/api/payment/check", nil, nil)
	if !strings.Contains(w.Body.String(), "POST to trigger check.") {
		t.Errorf("readiness %s", w.Body.String())
	}
}

func TestCookies(t *testing.T) {
	e := newTestEnv(t)
	admin := e.adminCookie(t)

	w := e.do(http.MethodGet, "/api/auth", nil, admin)
	if !strings.Contains(w.Body.String(), `"isLoggedIn":false`) {
		t.Fatalf("before upload: %s", w.Body.String())
	}

	w = e.do(http.MethodPost, "/api/auth", gin.H{"cookies": "nope"}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non array: %d", w.Code)
	}

	w = e.do(http.MethodPost, "/api/auth", gin.H{"cookies": []gin.H{
		{"name": "_SID_Tokopedia_", "value": "abc", "domain": ".tokopedia.com"},
	}}, admin)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cookiesCount":1`) {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodGet, "/api/auth", nil, admin)
	if !strings.Contains(w.Body.String(), `"isLoggedIn":true`) {
		t.Errorf("after upload: %s", w.Body.String())
	}
}

func TestQrisImage(t *testing.T) {
	e := newTestEnv(t)
	name, err := e.h.Images.WritePayload(testPayload("1000"))
	if err != nil {
		t.Fatal(err)
	}

	w := e.do(http.MethodGet, imageRoute+name, nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("existing image: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w := e.do(http.MethodGet, imageRoute+"qris_missing.png", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing image: %d", w.Code)
	}
	if w := e.do(http.MethodGet, imageRoute+"secrets.txt", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("non png: %d", w.Code)
	}
}

func TestProducts(t *testing.T) {
	e := newTestEnv(t)
	admin := e.adminCookie(t)
	body := gin.H{"url": "https://www.tokopedia.com/toko/kopi", "name": "Kopi", "price": 25000}

	w := e.do(http.MethodPost, "/api/products", body, admin)
	if msg := decode(t, w).Message; msg != "Product created successfully" {
		t.Errorf("first create: %q", msg)
	}
	w = e.do(http.MethodPost, "/api/products", body, admin)
	if msg := decode(t, w).Message; msg != "Product already exists" {
		t.Errorf("second create: %q", msg)
	}
	w = e.do(http.MethodPost, "/api/products", gin.H{"name": "Kopi"}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fields: %d", w.Code)
	}

	var products []db.Product
	json.Unmarshal(decode(t, e.do(http.MethodGet, "/api/products", nil, nil)).Data, &products)
	if len(products) != 1 {
		t.Fatalf("listed %d products", len(products))
	}

	if w := e.do(http.MethodDelete, "/api/products?id="+products[0].ID, nil, admin); w.Code != http.StatusOK {
		t.Errorf("delete: %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/api/products?id="+products[0].ID, nil, admin); w.Code != http.StatusNotFound {
		t.Errorf("delete again: %d", w.Code)
	}
}

func TestLogs(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < recentLogLimit+5; i++ {
		e.store.AppendLogEntry(context.Background(), "payment_check", "x", db.LevelInfo)
	}

	var logs []db.AdminLog
	json.Unmarshal(decode(t, e.do(http.MethodGet, "/api/logs", nil, e.adminCookie(t))).Data, &logs)
	if len(logs) != recentLogLimit {
		t.Errorf("got %d logs", len(logs))
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	e.h.Gate.Acquire(context.Background(), 0)
	defer e.h.Gate.Release()

	w := e.do(http.MethodGet, "/api/health", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"browser_busy":true`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestEventsStream(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	next := func() events.Event {
		t.Helper()
		for lines.Scan() {
			data, ok := strings.CutPrefix(lines.Text(), "data:")
			if !ok {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("bad event %q: %v", data, err)
			}
			return ev
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return events.Event{}
	}

	if ev := next(); ev.Type != "connection" {
		t.Fatalf("first event %s", ev.Type)
	}

	e.broker.Publish(events.Event{Type: events.QrisPaid, Data: gin.H{"id": "p1"}})
	if ev := next(); ev.Type != events.QrisPaid {
		t.Fatalf("second event %s", ev.Type)
	}
}

func TestMarkPaidLosesToConcurrentExpiry(t *testing.T) {
	e := newTestEnv(t)
	e.store.CreateTrackedPayment(context.Background(), &db.TrackedPayment{ID: "p1", Amount: 150000, Status: db.StatusPending})
	e.store.beforeUpdate = func(payments map[string]db.TrackedPayment) {
		p := payments["p1"]
		p.Status = db.StatusExpired
		payments["p1"] = p
	}
	sub := e.broker.Subscribe()

	w := e.do(http.MethodPost, "/api/qris/mark-paid", gin.H{"qrisId": "p1"}, e.adminCookie(t))
	if w.Code != http.StatusBadRequest || decode(t, w).Error != "QRIS is no longer pending" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if len(e.store.actions()) != 0 {
		t.Errorf("operator log %v", e.store.actions())
	}
	select {
	case ev := <-sub:
		t.Errorf("unexpected event %s", ev.Type)
	default:
	}
}
