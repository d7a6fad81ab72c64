// Package flash carries one-shot user messages across a redirect in a signed cookie.
package flash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrInvalid is returned for a cookie that is malformed or fails verification.
var ErrInvalid = errors.New("invalid flash cookie")

// Kind classifies a message for styling.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Message is a single flashed message.
type Message struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

const lifetime = 2 * time.Minute

// payload is what gets signed: the message plus its expiry in Unix seconds.
type payload struct {
	Message
	ExpiresAt int64 `json:"exp"`
}

// Codec signs and verifies flash cookies.
type Codec struct {
	secret     []byte
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewCodec creates a Codec. secure marks cookies HTTPS-only.
func NewCodec(secret []byte, cookieName string, secure bool) *Codec {
	return &Codec{secret: secret, cookieName: cookieName, secure: secure, now: time.Now}
}

// Encode returns base64(json) + "." + base64(hmac). The signed JSON carries
// an expiry matching the cookie lifetime.
func (c *Codec) Encode(m Message) (string, error) {
	b, err := json.Marshal(payload{Message: m, ExpiresAt: c.now().Add(lifetime).Unix()})
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(b)
	return encoded + "." + c.sign(encoded), nil
}

// Decode verifies v and returns the message it carries. Expired values are
// rejected even when the signature is valid.
func (c *Codec) Decode(v string) (*Message, error) {
	encoded, sig, ok := strings.Cut(v, ".")
	if !ok || !hmac.Equal([]byte(c.sign(encoded)), []byte(sig)) {
		return nil, ErrInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalid
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrInvalid
	}
	if p.ExpiresAt == 0 || c.now().Unix() > p.ExpiresAt {
		return nil, ErrInvalid
	}
	if strings.TrimSpace(p.Message.Message) == "" {
		return nil, ErrInvalid
	}
	m := p.Message
	return &m, nil
}

// Set stores a message in the response cookie.
func (c *Codec) Set(w http.ResponseWriter, kind Kind, message string) {
	v, err := c.Encode(Message{Kind: kind, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    v,
		Path:     "/",
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Pop returns the pending message, if any, and clears the cookie.
func (c *Codec) Pop(w http.ResponseWriter, r *http.Request) *Message {
	cookie, err := r.Cookie(c.cookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	m, err := c.Decode(cookie.Value)
	if err != nil {
		return nil
	}
	return m
}

func (c *Codec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
