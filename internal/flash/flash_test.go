package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	c := NewCodec([]byte("secret"), "flash", false)

	v, err := c.Encode(Message{Kind: Success, Message: "Uploaded."})
	require.NoError(t, err)

	m, err := c.Decode(v)
	require.NoError(t, err)
	assert.Equal(t, Success, m.Kind)
	assert.Equal(t, "Uploaded.", m.Message)
}

func TestDecode_Rejects(t *testing.T) {
	c := NewCodec([]byte("secret"), "flash", false)
	other := NewCodec([]byte("other"), "flash", false)
	forged, err := other.Encode(Message{Kind: Error, Message: "x"})
	require.NoError(t, err)
	empty, err := c.Encode(Message{Kind: Info, Message: "  "})
	require.NoError(t, err)

	for name, v := range map[string]string{
		"no separator":  "abc",
		"wrong secret":  forged,
		"empty message": empty,
		"garbage":       "!!!.???",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(v)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDecode_RejectsExpired(t *testing.T) {
	issued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCodec([]byte("secret"), "flash", false)
	c.now = func() time.Time { return issued }

	v, err := c.Encode(Message{Kind: Success, Message: "Uploaded."})
	require.NoError(t, err)

	c.now = func() time.Time { return issued.Add(lifetime) }
	_, err = c.Decode(v)
	assert.NoError(t, err, "still valid at the end of its lifetime")

	c.now = func() time.Time { return issued.Add(lifetime + time.Second) }
	_, err = c.Decode(v)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecode_RejectsMissingExpiry(t *testing.T) {
	c := NewCodec([]byte("secret"), "flash", false)

	// A correctly signed message without an expiry, as issued by older builds.
	b, err := json.Marshal(Message{Kind: Info, Message: "hi"})
	require.NoError(t, err)
	encoded := base64.RawURLEncoding.EncodeToString(b)

	_, err = c.Decode(encoded + "." + c.sign(encoded))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSetPop(t *testing.T) {
	c := NewCodec([]byte("secret"), "flash", true)

	rec := httptest.NewRecorder()
	c.Set(rec, Error, "Upload failed: boom")
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 120, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	m := c.Pop(rec, req)

	require.NotNil(t, m)
	assert.Equal(t, Error, m.Kind)
	assert.Equal(t, "Upload failed: boom", m.Message)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestPop_NoCookie(t *testing.T) {
	c := NewCodec([]byte("secret"), "flash", false)

	m := c.Pop(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Nil(t, m)
}
