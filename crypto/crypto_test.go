package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate random key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{name: "empty key", key: "", wantError: true, errorMsg: "encryption key is empty"},
		{name: "invalid base64", key: "not-valid-base64!@#$", wantError: true, errorMsg: "base64 decode failed"},
		{name: "key too short", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "key too long", key: base64.StdEncoding.EncodeToString(make([]byte, 64)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "valid 32-byte key", key: base64.StdEncoding.EncodeToString(make([]byte, 32)), wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewAESEncryptor() expected error but got nil")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESEncryptor() error = %v, want error containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("NewAESEncryptor() unexpected error = %v", err)
			}
			if enc == nil {
				t.Errorf("NewAESEncryptor() returned nil encryptor")
			}
		})
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}

	plaintexts := []string{
		"BQDdy3...access-token",
		"AQCs9...refresh-token",
		"short",
		strings.Repeat("long-", 500),
	}
	for _, plain := range plaintexts {
		ct, err := enc.EncryptString(plain)
		if err != nil {
			t.Fatalf("EncryptString() error = %v", err)
		}
		if ct == plain {
			t.Error("ciphertext equals plaintext")
		}
		got, err := enc.DecryptString(ct)
		if err != nil {
			t.Fatalf("DecryptString() error = %v", err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestEncryptString_EmptyRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	ct, err := enc.EncryptString("")
	if err != nil {
		t.Fatalf("EncryptString(\"\") error = %v", err)
	}
	if ct != "" {
		t.Errorf("EncryptString(\"\") = %q, want empty", ct)
	}
	got, err := enc.DecryptString("")
	if err != nil || got != "" {
		t.Errorf("DecryptString(\"\") = %q, %v, want empty, nil", got, err)
	}
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	a, err := enc.EncryptString("same plaintext")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	b, err := enc.EncryptString("same plaintext")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	ct, err := enc.EncryptString("secret token")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)
	if _, err := enc.DecryptString(tampered); err == nil {
		t.Error("DecryptString() accepted tampered ciphertext")
	}
}

func TestDecrypt_MalformedInputs(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	for _, bad := range []string{"not base64 at all!!", base64.StdEncoding.EncodeToString([]byte("tiny"))} {
		if _, err := enc.DecryptString(bad); err == nil {
			t.Errorf("DecryptString(%q) expected error", bad)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	enc2, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	ct, err := enc1.EncryptString("secret")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	if _, err := enc2.DecryptString(ct); err == nil {
		t.Error("DecryptString() with wrong key should fail")
	}
}
