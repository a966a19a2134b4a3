package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetTokenCookies(t *testing.T) {
	cm := NewCookieManager("example.com", true, "strict")
	rr := httptest.NewRecorder()
	cm.SetTokenCookies(rr, "acc", "ref", 15*time.Minute, 24*time.Hour)

	res := rr.Result()
	cookies := res.Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	access, ok := byName[AccessTokenCookie]
	if !ok {
		t.Fatal("access token cookie missing")
	}
	if !access.HttpOnly || !access.Secure || access.Path != "/" {
		t.Fatalf("unexpected access cookie attributes: %+v", access)
	}
	if access.MaxAge != int((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected access cookie max-age %d", access.MaxAge)
	}
	if refresh := byName[RefreshTokenCookie]; refresh == nil || refresh.Value != "ref" {
		t.Fatal("refresh token cookie missing or wrong")
	}
}

func TestClearTokenCookies(t *testing.T) {
	cm := NewCookieManager("", false, "lax")
	rr := httptest.NewRecorder()
	cm.ClearTokenCookies(rr)

	for _, c := range rr.Result().Cookies() {
		if c.MaxAge != -1 || c.Value != "" {
			t.Fatalf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}

func TestGetCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "tok"})
	if got := GetCookie(req, AccessTokenCookie); got != "tok" {
		t.Fatalf("unexpected cookie value %q", got)
	}
	if got := GetCookie(req, "missing"); got != "" {
		t.Fatalf("expected empty for missing cookie, got %q", got)
	}
}
