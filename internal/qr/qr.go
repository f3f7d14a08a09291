// Package qr builds the payload students scan to check in and renders it as a PNG.
package qr

import (
	"encoding/json"
	"errors"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Payload is the content of an attendance QR code.
type Payload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	// Expires is the window expiry in Unix milliseconds.
	Expires int64 `json:"expires"`
}

// Encode serializes the payload as compact JSON.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a scanned payload.
func Decode(data string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Payload{}, err
	}
	if p.SessionID == "" || p.Code == "" {
		return Payload{}, errors.New("qr payload missing session or code")
	}
	return p, nil
}

// PNG renders data as a QR code image. Size falls back to DefaultSize when not positive.
func PNG(data string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(data, qrcode.Medium, size)
}
