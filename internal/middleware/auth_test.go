package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_RoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	rec := httptest.NewRecorder()
	if err := auth.SetAuthCookie(rec, "admin"); err != nil {
		t.Fatalf("SetAuthCookie error: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}

	var gotOperator string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperator, _ = GetOperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	req.AddCookie(cookies[0])
	respRec := httptest.NewRecorder()

	handler.ServeHTTP(respRec, req)

	if respRec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", respRec.Result().StatusCode, http.StatusOK)
	}
	if gotOperator != "admin" {
		t.Fatalf("operator = %q, want admin", gotOperator)
	}
}

func TestAuthMiddleware_NoCookie(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called without cookie")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	issuer := NewAuthMiddleware("secret-one")
	verifier := NewAuthMiddleware("secret-two")

	rec := httptest.NewRecorder()
	if err := issuer.SetAuthCookie(rec, "admin"); err != nil {
		t.Fatalf("SetAuthCookie error: %v", err)
	}

	handler := verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called with forged cookie")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	respRec := httptest.NewRecorder()

	handler.ServeHTTP(respRec, req)

	if respRec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", respRec.Result().StatusCode, http.StatusUnauthorized)
	}
}
