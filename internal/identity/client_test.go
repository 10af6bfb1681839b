// internal/identity/client_test.go
package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cohortlab/cohort/internal/types"
)

const testRealmPath = "/realms/explorer/protocol/openid-connect"

func newTestClient(t *testing.T, handler http.Handler) (*Client, *MemoryStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := NewMemoryStore()
	client := NewClient(srv.URL, "explorer", "web", "shhh", store, zerolog.Nop())
	return client, store, srv
}

func tokenJSON(access, refresh string, expiresIn int64) string {
	return `{"access_token":"` + access + `","refresh_token":"` + refresh +
		`","token_type":"Bearer","expires_in":` + strconv.FormatInt(expiresIn, 10) + `}`
}

func TestLogin_StoresTokenPair(t *testing.T) {
	var gotForm map[string]string

	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != testRealmPath+"/token" {
			t.Errorf("path = %q, want token endpoint", r.URL.Path)
		}
		r.ParseForm()
		gotForm = map[string]string{
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"grant_type":    r.PostForm.Get("grant_type"),
			"scope":         r.PostForm.Get("scope"),
			"username":      r.PostForm.Get("username"),
			"password":      r.PostForm.Get("password"),
		}
		w.Write([]byte(tokenJSON("acc-1", "ref-1", 300)))
	}))

	if err := client.Login(context.Background(), "alice", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v, want nil", err)
	}

	want := map[string]string{
		"client_id":     "web",
		"client_secret": "shhh",
		"grant_type":    "password",
		"scope":         "openid",
		"username":      "alice",
		"password":      "hunter2",
	}
	for k, v := range want {
		if gotForm[k] != v {
			t.Errorf("form[%q] = %q, want %q", k, gotForm[k], v)
		}
	}

	creds, ok := store.Get()
	if !ok {
		t.Fatal("store empty after login")
	}
	if creds.AccessToken != "acc-1" || creds.RefreshToken != "ref-1" {
		t.Errorf("stored = %+v, want acc-1/ref-1", creds)
	}
	if creds.ExpiresAt.Before(time.Now().Add(4 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want roughly now+300s", creds.ExpiresAt)
	}
}

func TestLogin_GrantErrorSurfaced(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
	}))

	err := client.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("Login() error = nil, want grant error")
	}
	if _, ok := store.Get(); ok {
		t.Error("store populated after failed login")
	}
}

func TestRefresh_RotatesTokens(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "ref-old" {
			t.Errorf("refresh_token = %q, want ref-old", got)
		}
		w.Write([]byte(tokenJSON("acc-new", "ref-new", 300)))
	}))

	store.Set(Credentials{AccessToken: "acc-old", RefreshToken: "ref-old"})

	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v, want nil", err)
	}

	creds, _ := store.Get()
	if creds.AccessToken != "acc-new" || creds.RefreshToken != "ref-new" {
		t.Errorf("stored = %+v, want rotated pair", creds)
	}
}

func TestRefresh_NoCredentials(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint called without credentials")
	}))

	if err := client.Refresh(context.Background()); !errors.Is(err, types.ErrNoCredentials) {
		t.Errorf("Refresh() error = %v, want ErrNoCredentials", err)
	}
}

func TestRefresh_FailureClearsStore(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))

	store.Set(Credentials{AccessToken: "acc", RefreshToken: "ref"})

	err := client.Refresh(context.Background())
	if !errors.Is(err, types.ErrSessionExpired) {
		t.Errorf("Refresh() error = %v, want ErrSessionExpired", err)
	}
	if _, ok := store.Get(); ok {
		t.Error("store still populated after failed refresh")
	}
}

func TestAccessToken_RefreshesExpiredToken(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tokenJSON("acc-fresh", "ref-fresh", 300)))
	}))

	store.Set(Credentials{
		AccessToken:  "acc-stale",
		RefreshToken: "ref-stale",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})

	token, err := client.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v, want nil", err)
	}
	if token != "acc-fresh" {
		t.Errorf("token = %q, want acc-fresh", token)
	}
}

func TestAccessToken_ValidTokenNoRefresh(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint called for valid token")
	}))

	store.Set(Credentials{
		AccessToken: "acc-valid",
		ExpiresAt:   time.Now().Add(time.Hour),
	})

	token, err := client.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v, want nil", err)
	}
	if token != "acc-valid" {
		t.Errorf("token = %q, want acc-valid", token)
	}
}

func TestDo_RetriesOnceAfter401(t *testing.T) {
	var apiCalls, tokenCalls int32

	client, store, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == testRealmPath+"/token" {
			atomic.AddInt32(&tokenCalls, 1)
			w.Write([]byte(tokenJSON("acc-2", "ref-2", 300)))
			return
		}

		n := atomic.AddInt32(&apiCalls, 1)
		if n == 1 {
			if got := r.Header.Get("Authorization"); got != "Bearer acc-1" {
				t.Errorf("first attempt auth = %q, want Bearer acc-1", got)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer acc-2" {
			t.Errorf("retry auth = %q, want Bearer acc-2", got)
		}
		w.Write([]byte(`ok`))
	}))

	store.Set(Credentials{
		AccessToken:  "acc-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL+"/protected", nil, "")
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&apiCalls); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Errorf("token calls = %d, want 1", got)
	}
}

func TestDo_SecondUnauthorizedReturnedAsIs(t *testing.T) {
	var apiCalls int32

	client, store, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == testRealmPath+"/token" {
			w.Write([]byte(tokenJSON("acc-2", "ref-2", 300)))
			return
		}
		atomic.AddInt32(&apiCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	store.Set(Credentials{
		AccessToken:  "acc-1",
		RefreshToken: "ref-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	resp, err := client.Do(context.Background(), http.MethodGet, srv.URL+"/protected", nil, "")
	if err != nil {
		t.Fatalf("Do() error = %v, want response", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&apiCalls); got != 2 {
		t.Errorf("api calls = %d, want exactly 2 (no second retry)", got)
	}
}

func TestUserInfo_DecodesClaims(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != testRealmPath+"/userinfo" {
			t.Errorf("path = %q, want userinfo endpoint", r.URL.Path)
		}
		w.Write([]byte(`{"sub":"u-1","email":"alice@example.com","preferred_username":"alice","name":"Alice"}`))
	}))

	store.Set(Credentials{AccessToken: "acc", ExpiresAt: time.Now().Add(time.Hour)})

	info, err := client.UserInfo(context.Background())
	if err != nil {
		t.Fatalf("UserInfo() error = %v, want nil", err)
	}
	if info.Subject != "u-1" || info.PreferredUsername != "alice" {
		t.Errorf("info = %+v, want u-1/alice", info)
	}
}

func TestLogout_ClearsStoreEvenOnProviderError(t *testing.T) {
	client, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	store.Set(Credentials{AccessToken: "acc", RefreshToken: "ref"})

	client.Logout(context.Background())

	if _, ok := store.Get(); ok {
		t.Error("store still populated after logout")
	}
}

func TestCredentials_ExpiredAt(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"zero expiry never expires", time.Time{}, false},
		{"far future not expired", now.Add(time.Hour), false},
		{"already past expired", now.Add(-time.Minute), true},
		{"inside skew window expired", now.Add(5 * time.Second), true},
		{"just outside skew not expired", now.Add(30 * time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Credentials{ExpiresAt: tt.expiresAt}
			if got := c.ExpiredAt(now); got != tt.want {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}
