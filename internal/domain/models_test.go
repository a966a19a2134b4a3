package domain

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTenantSecretFieldsNeverSerialize(t *testing.T) {
	typ := reflect.TypeOf(Tenant{})
	for _, name := range []string{"ConnectionCipher", "AccessTokenSecretCipher", "RefreshTokenSecretCipher", "DBNamePrefix"} {
		f, ok := typ.FieldByName(name)
		if !ok {
			t.Fatalf("missing Tenant.%s field", name)
		}
		if got := f.Tag.Get("json"); got != "-" {
			t.Fatalf("Tenant.%s must not serialize, json tag %q", name, got)
		}
	}

	ref, ok := typ.FieldByName("ReferenceID")
	if !ok {
		t.Fatal("missing Tenant.ReferenceID field")
	}
	if !strings.Contains(ref.Tag.Get("gorm"), "uniqueIndex") {
		t.Fatalf("Tenant.ReferenceID gorm tag missing uniqueIndex: %q", ref.Tag.Get("gorm"))
	}
}

func TestTenantHostnameGloballyUnique(t *testing.T) {
	f, ok := reflect.TypeOf(TenantHostname{}).FieldByName("Hostname")
	if !ok {
		t.Fatal("missing TenantHostname.Hostname field")
	}
	if !strings.Contains(f.Tag.Get("gorm"), "uniqueIndex") {
		t.Fatalf("TenantHostname.Hostname gorm tag missing uniqueIndex: %q", f.Tag.Get("gorm"))
	}
}

func TestUserIdentityFieldsSparseUnique(t *testing.T) {
	typ := reflect.TypeOf(User{})
	for _, name := range []string{"Email", "Phone"} {
		f, ok := typ.FieldByName(name)
		if !ok {
			t.Fatalf("missing User.%s field", name)
		}
		if f.Type.Kind() != reflect.Ptr {
			t.Fatalf("User.%s must be nullable for sparse uniqueness", name)
		}
		if !strings.Contains(f.Tag.Get("gorm"), "uniqueIndex") {
			t.Fatalf("User.%s gorm tag missing uniqueIndex: %q", name, f.Tag.Get("gorm"))
		}
	}
}

func TestUserLockedWindow(t *testing.T) {
	now := time.Now()
	u := &User{}
	if u.Locked(now) {
		t.Fatal("user without lock must not be locked")
	}
	past := now.Add(-time.Minute)
	u.Lock.LockedUntil = &past
	if u.Locked(now) {
		t.Fatal("expired lock must not be locked")
	}
	future := now.Add(time.Minute)
	u.Lock.LockedUntil = &future
	if !u.Locked(now) {
		t.Fatal("open lock window must report locked")
	}
}

func TestSessionTokenIdentifiersHidden(t *testing.T) {
	typ := reflect.TypeOf(Session{})
	for _, name := range []string{"AccessTokenID", "RefreshTokenID", "Fingerprint"} {
		f, ok := typ.FieldByName(name)
		if !ok {
			t.Fatalf("missing Session.%s field", name)
		}
		if got := f.Tag.Get("json"); got != "-" {
			t.Fatalf("Session.%s must not serialize, json tag %q", name, got)
		}
	}

	refresh, _ := typ.FieldByName("RefreshTokenID")
	if !strings.Contains(refresh.Tag.Get("gorm"), "uniqueIndex") {
		t.Fatalf("Session.RefreshTokenID gorm tag missing uniqueIndex: %q", refresh.Tag.Get("gorm"))
	}
	expiry, _ := typ.FieldByName("RefreshTokenExpiresAt")
	if !strings.Contains(expiry.Tag.Get("gorm"), "index") {
		t.Fatalf("Session.RefreshTokenExpiresAt gorm tag missing index: %q", expiry.Tag.Get("gorm"))
	}
}
