package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// PassPayload is what a field officer's scanner reads off a passenger's
// pass: enough to address the ledger account, nothing more.
type PassPayload struct {
	AccountID string    `json:"account_id"`
	FullName  string    `json:"full_name,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

type PassGenerator struct {
	secret []byte
}

func NewPassGenerator(secret string) *PassGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &PassGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR renders the payload as a QR PNG with the content
// AES-encrypted, so a pass cannot be forged from a screenshot of the id.
func (g *PassGenerator) GenerateEncryptedQR(payload PassPayload) ([]byte, error) {
	encrypted, err := g.EncryptPayload(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// EncryptPayload produces the encrypted QR content without rendering the
// image. Scanners feed this string back through Decrypt.
func (g *PassGenerator) EncryptPayload(payload PassPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}

// Decrypt recovers the payload from scanned QR content.
func (g *PassGenerator) Decrypt(content string) (*PassPayload, error) {
	data, err := decryptAES(content, g.secret)
	if err != nil {
		return nil, err
	}
	var payload PassPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(content string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(content)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	return data, nil
}
