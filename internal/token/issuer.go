// Package token mints and verifies ticket admission tokens.
//
// A token is the unpadded base64url (RFC 4648 §5) encoding of:
//
//	offset  size  field
//	0       1     version, currently 0x01
//	1       16    ticket id (UUID bytes)
//	17      1     E = length of event id (1..255)
//	18      E     event id
//	18+E    1     T = length of tier id (1..255)
//	19+E    T     tier id
//	19+E+T  16    HMAC-SHA256(key, bytes[0:19+E+T]) truncated to 16 bytes
//
// The MAC key is derived from the server secret with HKDF-SHA256 using the
// info string "ticket-token/v1". A gate holding the secret can check a token
// offline; whether the ticket is still unused is only known to the store.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"ticket-inventory/internal/status"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	Version    byte = 0x01
	MACSize         = 16
	MinSecret       = 16
	maxIDLen        = 255
	keyInfo         = "ticket-token/v1"
	headerSize      = 1 + 16
)

var encoding = base64.RawURLEncoding.Strict()

// Claims are the identifiers bound into a token.
type Claims struct {
	TicketID string `json:"ticket_id"`
	EventID  string `json:"event_id"`
	TierID   string `json:"tier_id"`
}

type Issuer struct {
	key []byte
}

func NewIssuer(secret []byte) (*Issuer, error) {
	if len(secret) < MinSecret {
		return nil, fmt.Errorf("token: secret must be at least %d bytes", MinSecret)
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("token: derive key: %w", err)
	}

	return &Issuer{key: key}, nil
}

// Issue returns the token for the given ticket. The result is deterministic
// for the same inputs and secret, so a ticket can be re-issued after a crash.
func (i *Issuer) Issue(ticketID, eventID, tierID string) (string, error) {
	id, err := uuid.Parse(ticketID)
	if err != nil {
		return "", fmt.Errorf("token: ticket id: %w", err)
	}
	if err := checkID("event id", eventID); err != nil {
		return "", err
	}
	if err := checkID("tier id", tierID); err != nil {
		return "", err
	}

	buf := make([]byte, 0, headerSize+2+len(eventID)+len(tierID)+MACSize)
	buf = append(buf, Version)
	buf = append(buf, id[:]...)
	buf = append(buf, byte(len(eventID)))
	buf = append(buf, eventID...)
	buf = append(buf, byte(len(tierID)))
	buf = append(buf, tierID...)
	buf = append(buf, i.mac(buf)...)

	return encoding.EncodeToString(buf), nil
}

// VerifyFormat checks the MAC and layout of a token and returns the claims it
// carries. Any failure is reported as status.ErrMalformedToken.
func (i *Issuer) VerifyFormat(token string) (*Claims, error) {
	// the decoder silently skips CR/LF, which would make two strings equivalent
	if strings.ContainsAny(token, "\r\n") {
		return nil, status.ErrMalformedToken
	}
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return nil, status.ErrMalformedToken
	}
	if len(raw) < headerSize+2+2+MACSize || raw[0] != Version {
		return nil, status.ErrMalformedToken
	}

	body, sum := raw[:len(raw)-MACSize], raw[len(raw)-MACSize:]
	if !hmac.Equal(sum, i.mac(body)) {
		return nil, status.ErrMalformedToken
	}

	claims, err := parseBody(body)
	if err != nil {
		return nil, status.ErrMalformedToken
	}
	return claims, nil
}

func (i *Issuer) mac(body []byte) []byte {
	h := hmac.New(sha256.New, i.key)
	h.Write(body)
	return h.Sum(nil)[:MACSize]
}

func parseBody(body []byte) (*Claims, error) {
	var id uuid.UUID
	copy(id[:], body[1:headerSize])
	rest := body[headerSize:]

	eventID, rest, err := readField(rest)
	if err != nil {
		return nil, err
	}
	tierID, rest, err := readField(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.New("trailing bytes")
	}

	return &Claims{TicketID: id.String(), EventID: eventID, TierID: tierID}, nil
}

func readField(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, errors.New("short field")
	}
	n := int(b[0])
	if n == 0 || len(b) < 1+n {
		return "", nil, errors.New("bad field length")
	}
	return string(b[1 : 1+n]), b[1+n:], nil
}

func checkID(name, v string) error {
	if v == "" || len(v) > maxIDLen {
		return fmt.Errorf("token: %s must be 1..%d bytes", name, maxIDLen)
	}
	return nil
}
