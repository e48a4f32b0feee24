package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	codec, err := NewCodec(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "authority",
		Audience:      "authority-clients",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func TestCodecAccessRoundtrip(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	signed, err := codec.SignAccess("jti-1", "sub-1", "a@example.com", "user", "sess-1", now)
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	claims, err := codec.ParseAccess(signed)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.ID != "jti-1" {
		t.Errorf("ID = %q, want jti-1", claims.ID)
	}
	if claims.Subject != "sub-1" {
		t.Errorf("Subject = %q, want sub-1", claims.Subject)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("Email = %q, want a@example.com", claims.Email)
	}
	if claims.Role != "user" {
		t.Errorf("Role = %q, want user", claims.Role)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", claims.SessionID)
	}
	if got := claims.ExpiresAt.Time; got.Sub(now.Add(15*time.Minute)).Abs() > time.Second {
		t.Errorf("ExpiresAt = %v, want ~%v", got, now.Add(15*time.Minute))
	}
}

func TestCodecRefreshRoundtrip(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()

	signed, err := codec.SignRefresh("jti-2", "sub-1", "fam-1", "sess-1", 3, now)
	if err != nil {
		t.Fatalf("SignRefresh failed: %v", err)
	}

	claims, err := codec.ParseRefresh(signed)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if claims.FamilyID != "fam-1" {
		t.Errorf("FamilyID = %q, want fam-1", claims.FamilyID)
	}
	if claims.Generation != 3 {
		t.Errorf("Generation = %d, want 3", claims.Generation)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", claims.SessionID)
	}
}

func TestCodecWrongKeyIsSignatureInvalid(t *testing.T) {
	signer := newTestCodec(t)
	verifier := newTestCodec(t)

	signed, err := signer.SignAccess("jti-1", "sub-1", "", "user", "", time.Now())
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	_, err = verifier.ParseAccess(signed)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("ParseAccess with wrong key = %v, want ErrSignatureInvalid", err)
	}
}

func TestCodecExpired(t *testing.T) {
	codec := newTestCodec(t)

	signed, err := codec.SignAccess("jti-1", "sub-1", "", "user", "", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	_, err = codec.ParseAccess(signed)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("ParseAccess of expired token = %v, want ErrExpired", err)
	}
}

func TestCodecNotYetValid(t *testing.T) {
	codec := newTestCodec(t)

	signed, err := codec.SignAccess("jti-1", "sub-1", "", "user", "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	_, err = codec.ParseAccess(signed)
	if !errors.Is(err, ErrNotYetValid) {
		t.Fatalf("ParseAccess of future token = %v, want ErrNotYetValid", err)
	}
}

func TestCodecMalformed(t *testing.T) {
	codec := newTestCodec(t)

	for _, input := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.ParseAccess(input); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseAccess(%q) = %v, want ErrMalformed", input, err)
		}
	}
}

func TestCodecRefreshRejectsAccessShape(t *testing.T) {
	codec := newTestCodec(t)

	// An access token carries no family or generation claims; presenting
	// one on the refresh path must fail closed.
	signed, err := codec.SignAccess("jti-1", "sub-1", "", "user", "sess-1", time.Now())
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	_, err = codec.ParseRefresh(signed)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("ParseRefresh of access token = %v, want ErrMalformed", err)
	}
}

func TestCodecHS256(t *testing.T) {
	codec, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authority",
		Audience:      "authority-clients",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	signed, err := codec.SignAccess("jti-1", "sub-1", "", "user", "", time.Now())
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	if _, err := codec.ParseAccess(signed); err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}

	// Tokens signed under a different secret must not verify.
	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "authority",
		Audience:      "authority-clients",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	if _, err := other.ParseAccess(signed); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("ParseAccess with wrong secret = %v, want ErrSignatureInvalid", err)
	}
}

func TestCodecDefaultsToEd25519(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	codec, err := NewCodec(Config{
		PrivateKey: priv,
		Issuer:     "authority",
		Audience:   "authority-clients",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec with empty method failed: %v", err)
	}
	if codec.method().Alg() != "EdDSA" {
		t.Fatalf("default alg = %q, want EdDSA", codec.method().Alg())
	}
}

func TestCodecRejectsBadConfig(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero access ttl", Config{PrivateKey: priv, Issuer: "i", Audience: "a", RefreshTTL: time.Hour}},
		{"missing issuer", Config{PrivateKey: priv, Audience: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"missing audience", Config{PrivateKey: priv, Issuer: "i", AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"excessive leeway", Config{PrivateKey: priv, Issuer: "i", Audience: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: 5 * time.Minute}},
		{"bad key", Config{PrivateKey: []byte("short"), Issuer: "i", Audience: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour}},
		{"unknown method", Config{SigningMethod: "rs512", PrivateKey: priv, Issuer: "i", Audience: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour}},
	}
	for _, tc := range cases {
		if _, err := NewCodec(tc.cfg); err == nil {
			t.Errorf("NewCodec(%s) succeeded, want error", tc.name)
		}
	}
}
