package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"key": "a.txt"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"key":"a.txt"}}`, rec.Body.String())
}

func TestCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, []int{1})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[1]}`, rec.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "no file") }, http.StatusBadRequest, "no file"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "taken") }, http.StatusConflict, "taken"},
		{"too large", func(w http.ResponseWriter) { TooLarge(w, "big") }, http.StatusRequestEntityTooLarge, "big"},
		{"unsupported", func(w http.ResponseWriter) { UnsupportedMediaType(w, "nope") }, http.StatusUnsupportedMediaType, "nope"},
		{"bad gateway", func(w http.ResponseWriter) { BadGateway(w, "down") }, http.StatusBadGateway, "down"},
		{"not implemented", func(w http.ResponseWriter) { NotImplemented(w, "later") }, http.StatusNotImplemented, "later"},
		{"internal", InternalError, http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var env Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.msg, env.Error)
			assert.Nil(t, env.Data)
		})
	}
}
