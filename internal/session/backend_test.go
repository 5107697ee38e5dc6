package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/internal/tokenstore"
)

const testPassword = "correct-horse-battery"

// fakeBackend is a minimal storefront API. Access and refresh tokens are
// opaque strings that are valid until expired.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	access  map[string]bool
	refresh map[string]bool
	users   map[string]*client.User
	seq     int

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	ordersCalls  atomic.Int32

	// refreshDelay holds each refresh open to widen the concurrency window.
	refreshDelay atomic.Int64
	// dropRefresh closes the connection instead of answering a refresh.
	dropRefresh atomic.Bool
	// rotateRefresh returns a new refresh token with each refresh.
	rotateRefresh atomic.Bool
	logoutStatus  atomic.Int32
	userInfoError atomic.Int32
	// omitRefresh leaves the refresh token out of login answers.
	omitRefresh atomic.Bool

	refreshGate  atomic.Pointer[gate]
	userInfoGate atomic.Pointer[gate]

	lastLogout client.RefreshRequest
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		t:       t,
		access:  map[string]bool{},
		refresh: map[string]bool{},
		users:   map[string]*client.User{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", b.handleLogin)
	mux.HandleFunc("POST /api/auth/register/", b.handleRegister)
	mux.HandleFunc("POST /api/auth/logout/", b.handleLogout)
	mux.HandleFunc("POST /api/token/refresh/", b.handleRefresh)
	mux.HandleFunc("GET /api/auth/user-info/", b.authorized(b.handleUserInfo))
	mux.HandleFunc("GET /api/orders/", b.authorized(b.handleOrders))
	mux.HandleFunc("POST /api/cart/add/", b.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"quantity": []string{"Ensure this value is greater than or equal to 1."},
		})
	}))
	mux.HandleFunc("POST /api/cart/clear/", b.authorized(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /api/plain-400/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
	})
	mux.HandleFunc("GET /api/always-401/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
	})
	mux.HandleFunc("GET /api/forbidden/", b.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
	}))

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) lastLogoutRefresh() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLogout.Refresh
}

func (b *fakeBackend) URL() string {
	return b.server.URL + "/api"
}

func (b *fakeBackend) addUser(email string) *client.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	u := &client.User{
		ID:        int64(b.seq),
		Email:     email,
		Username:  gofakeit.Username(),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		IsActive:  true,
	}
	b.users[email] = u
	return u
}

// issue returns a valid token pair.
func (b *fakeBackend) issue() client.TokenPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked()
}

func (b *fakeBackend) issueLocked() client.TokenPair {
	b.seq++
	pair := client.TokenPair{
		Access:  fmt.Sprintf("access-%d", b.seq),
		Refresh: fmt.Sprintf("refresh-%d", b.seq),
	}
	b.access[pair.Access] = true
	b.refresh[pair.Refresh] = true
	return pair
}

func (b *fakeBackend) expireAccess(token string) {
	b.mu.Lock()
	delete(b.access, token)
	b.mu.Unlock()
}

func (b *fakeBackend) revokeRefresh(token string) {
	b.mu.Lock()
	delete(b.refresh, token)
	b.mu.Unlock()
}

func (b *fakeBackend) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		ok := b.access[token]
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req client.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	b.mu.Lock()
	user, ok := b.users[req.Email]
	if !ok || req.Password != testPassword {
		b.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"non_field_errors": []string{"Invalid email or password."},
		})
		return
	}
	pair := b.issueLocked()
	b.mu.Unlock()

	if b.omitRefresh.Load() {
		pair.Refresh = ""
	}
	writeJSON(w, http.StatusOK, client.AuthResponse{Message: "Login successful", User: user, Tokens: pair})
}

func (b *fakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req client.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	errs := map[string][]string{}
	b.mu.Lock()
	if _, exists := b.users[req.Email]; exists {
		errs["email"] = []string{"user with this email already exists."}
	}
	b.mu.Unlock()
	if req.Password != req.PasswordConfirm {
		errs["password_confirm"] = []string{"Passwords do not match."}
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	user := b.addUser(req.Email)
	user.Username = req.Username
	pair := b.issue()
	writeJSON(w, http.StatusCreated, client.AuthResponse{Message: "Registration successful", User: user, Tokens: pair})
}

func (b *fakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.logoutCalls.Add(1)

	var req client.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	b.lastLogout = req
	delete(b.refresh, req.Refresh)
	b.mu.Unlock()

	if status := int(b.logoutStatus.Load()); status != 0 {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	if b.dropRefresh.Load() {
		hj, ok := w.(http.Hijacker)
		if !assert.True(b.t, ok) {
			return
		}
		conn, _, err := hj.Hijack()
		if assert.NoError(b.t, err) {
			conn.Close()
		}
		return
	}

	if d := time.Duration(b.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}

	var req client.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	b.mu.Lock()
	valid := b.refresh[req.Refresh]
	var resp client.RefreshResponse
	if valid {
		next := b.issueLocked()
		resp.Access = next.Access
		if b.rotateRefresh.Load() {
			delete(b.refresh, req.Refresh)
			resp.Refresh = next.Refresh
		} else {
			delete(b.refresh, next.Refresh)
		}
	}
	b.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	if g := b.refreshGate.Load(); g != nil {
		g.wait()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *fakeBackend) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if g := b.userInfoGate.Load(); g != nil {
		g.wait()
	}
	if status := int(b.userInfoError.Load()); status != 0 {
		w.WriteHeader(status)
		return
	}

	b.mu.Lock()
	var user *client.User
	for _, u := range b.users {
		user = u
		break
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, client.UserInfoResponse{User: user, IsAuthenticated: true})
}

func (b *fakeBackend) handleOrders(w http.ResponseWriter, r *http.Request) {
	b.ordersCalls.Add(1)
	writeJSON(w, http.StatusOK, client.OrderPage{
		Results: []client.Order{
			{ID: 7, OrderNumber: "ORD-20240101-0007", Status: "pending", FinalAmount: "59000.00"},
		},
		Count:       1,
		NumPages:    1,
		CurrentPage: 1,
	})
}

// gate holds handlers until opened.
type gate struct {
	ch      chan struct{}
	once    sync.Once
	waiting atomic.Int32
}

func (g *gate) wait() {
	g.waiting.Add(1)
	<-g.ch
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

// hold installs a gate on p that keeps handlers waiting. It is opened at the
// latest on cleanup so the server can shut down.
func hold(t *testing.T, p *atomic.Pointer[gate]) *gate {
	t.Helper()
	g := &gate{ch: make(chan struct{})}
	p.Store(g)
	t.Cleanup(g.open)
	return g
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type recordingNavigator struct {
	mu   sync.Mutex
	dest []Destination
}

func (n *recordingNavigator) Navigate(_ context.Context, to Destination) {
	n.mu.Lock()
	n.dest = append(n.dest, to)
	n.mu.Unlock()
}

func (n *recordingNavigator) Destinations() []Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Destination(nil), n.dest...)
}

type testSession struct {
	*Session
	backend   *fakeBackend
	store     *tokenstore.MemoryStore
	navigator *recordingNavigator
	metrics   *Metrics
}

func newTestSession(t *testing.T, b *fakeBackend) *testSession {
	t.Helper()

	store := tokenstore.NewMemoryStore()
	nav := &recordingNavigator{}
	metrics := NewMetrics(prometheus.NewRegistry())
	s := New(client.New(b.URL()), store, WithNavigator(nav), WithMetrics(metrics))

	return &testSession{Session: s, backend: b, store: store, navigator: nav, metrics: metrics}
}

// seed stores pair as if a previous login had happened.
func (ts *testSession) seed(t *testing.T, pair client.TokenPair) {
	t.Helper()
	require.NoError(t, ts.store.Set(context.Background(), map[string]string{
		tokenstore.AccessTokenKey:  pair.Access,
		tokenstore.RefreshTokenKey: pair.Refresh,
	}))
}

func (ts *testSession) stored(t *testing.T) client.TokenPair {
	t.Helper()
	pair, err := ts.Tokens(context.Background())
	require.NoError(t, err)
	return pair
}
