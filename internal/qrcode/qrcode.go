package qrcode

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"parking/internal/models"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrMalformedToken = errors.New("malformed booking token")
	ErrBadSignature   = errors.New("booking token signature mismatch")
)

const macSize = 16

// Reference is what a gate scanner learns from a booking token.
type Reference struct {
	BookingID string
	UserID    string
	ValidTo   time.Time
}

// Generator issues keyed-MAC booking tokens. The payload is readable; only
// the MAC is secret.
type Generator struct {
	key []byte
}

func NewGenerator(secret string) (*Generator, error) {
	if len(secret) == 0 || len(secret) > blake2b.Size {
		return nil, errors.New("qr secret must be 1..64 bytes")
	}
	return &Generator{key: []byte(secret)}, nil
}

func (g *Generator) Generate(booking models.Booking) (string, error) {
	payload := strings.Join([]string{booking.ID, booking.UserID, strconv.FormatInt(booking.EndTime.Unix(), 10)}, "|")
	mac, err := g.sign([]byte(payload))
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return "PK1." + enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(mac), nil
}

func (g *Generator) Verify(token string) (Reference, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != "PK1" {
		return Reference{}, ErrMalformedToken
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(parts[1])
	if err != nil {
		return Reference{}, ErrMalformedToken
	}
	got, err := enc.DecodeString(parts[2])
	if err != nil {
		return Reference{}, ErrMalformedToken
	}
	want, err := g.sign(payload)
	if err != nil {
		return Reference{}, err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return Reference{}, ErrBadSignature
	}
	fields := strings.Split(string(payload), "|")
	if len(fields) != 3 {
		return Reference{}, ErrMalformedToken
	}
	validTo, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Reference{}, ErrMalformedToken
	}
	return Reference{BookingID: fields[0], UserID: fields[1], ValidTo: time.Unix(validTo, 0).UTC()}, nil
}

func (g *Generator) sign(payload []byte) ([]byte, error) {
	h, err := blake2b.New(macSize, g.key)
	if err != nil {
		return nil, err
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
