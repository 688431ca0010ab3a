package security_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/angelmondragon/smartbill-sync/pkg/security"
)

func TestEncryptDecryptNumberRoundTrip(t *testing.T) {
	numbers := []string{"1", "0042", "SB-2024-000123", "ăîș"}
	for _, number := range numbers {
		token, err := security.EncryptNumber("api-token", number)
		if err != nil {
			t.Fatalf("EncryptNumber(%q) returned error: %v", number, err)
		}
		if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
			t.Fatalf("token %q is not url-safe base64: %v", token, err)
		}

		got, err := security.DecryptNumber("api-token", token)
		if err != nil {
			t.Fatalf("DecryptNumber returned error: %v", err)
		}
		if got != number {
			t.Fatalf("expected %q after round trip, got %q", number, got)
		}
	}
}

func TestEncryptNumberIsSalted(t *testing.T) {
	a, err := security.EncryptNumber("api-token", "7")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := security.EncryptNumber("api-token", "7")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens for the same number")
	}
}

func TestDecryptNumberWrongSecret(t *testing.T) {
	token, err := security.EncryptNumber("api-token", "7")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := security.DecryptNumber("other-token", token); !errors.Is(err, security.ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestDecryptNumberAcceptsBareAndNumericPlaintext(t *testing.T) {
	cases := map[string]string{
		`"0099"`:          "0099",
		`123`:             "123",
		`{"number":456}`:  "456",
		`{"number":"78"}`: "78",
	}
	for plain, want := range cases {
		sealed, err := security.Seal("api-token", []byte(plain))
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		token := base64.StdEncoding.EncodeToString(sealed)
		got, err := security.DecryptNumber("api-token", token)
		if err != nil {
			t.Fatalf("decrypt %s: %v", plain, err)
		}
		if got != want {
			t.Fatalf("plaintext %s: expected %q got %q", plain, want, got)
		}
	}
}

func TestDecryptNumberRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "!!!", base64.RawURLEncoding.EncodeToString([]byte("short"))} {
		if _, err := security.DecryptNumber("api-token", token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestSealRequiresSecret(t *testing.T) {
	if _, err := security.Seal("", []byte("x")); !errors.Is(err, security.ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
	if _, err := security.EncryptNumber("", "1"); !errors.Is(err, security.ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}
