package qr_test

import (
	"testing"
	"time"

	"eco-tiket/internal/ledger/qr"
)

func TestGenerateEncryptedQR(t *testing.T) {
	gen := qr.NewPassGenerator("test-secret-key")

	payload := qr.PassPayload{
		AccountID: "acc_test",
		FullName:  "Test Passenger",
		IssuedAt:  time.Now(),
	}

	png, err := gen.GenerateEncryptedQR(payload)
	if err != nil {
		t.Fatalf("Failed to generate QR code: %v", err)
	}
	if len(png) == 0 {
		t.Error("Generated QR code is empty")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	gen := qr.NewPassGenerator("test-secret-key")

	payload := qr.PassPayload{
		AccountID: "acc_roundtrip",
		FullName:  "Round Trip",
		IssuedAt:  time.Now().Round(time.Second).UTC(),
	}

	content, err := gen.EncryptPayload(payload)
	if err != nil {
		t.Fatalf("Failed to encrypt payload: %v", err)
	}

	decoded, err := gen.Decrypt(content)
	if err != nil {
		t.Fatalf("Failed to decrypt payload: %v", err)
	}

	if decoded.AccountID != payload.AccountID {
		t.Errorf("Expected account ID %s, got %s", payload.AccountID, decoded.AccountID)
	}
	if decoded.FullName != payload.FullName {
		t.Errorf("Expected full name %s, got %s", payload.FullName, decoded.FullName)
	}
	if !decoded.IssuedAt.Equal(payload.IssuedAt) {
		t.Errorf("Expected issued at %v, got %v", payload.IssuedAt, decoded.IssuedAt)
	}
}

func TestDecryptWithWrongSecretFails(t *testing.T) {
	gen := qr.NewPassGenerator("right-secret")
	other := qr.NewPassGenerator("wrong-secret")

	content, err := gen.EncryptPayload(qr.PassPayload{AccountID: "acc_x", IssuedAt: time.Now()})
	if err != nil {
		t.Fatalf("Failed to encrypt payload: %v", err)
	}

	if _, err := other.Decrypt(content); err == nil {
		t.Error("Decrypting with the wrong secret should fail")
	}
}

func TestEncryptionIsSalted(t *testing.T) {
	gen := qr.NewPassGenerator("test-secret-key")
	payload := qr.PassPayload{AccountID: "acc_same", IssuedAt: time.Unix(0, 0)}

	first, err := gen.EncryptPayload(payload)
	if err != nil {
		t.Fatalf("Failed to encrypt payload: %v", err)
	}
	second, err := gen.EncryptPayload(payload)
	if err != nil {
		t.Fatalf("Failed to encrypt payload: %v", err)
	}

	if first == second {
		t.Error("Same payload should encrypt differently thanks to the random IV")
	}
}
