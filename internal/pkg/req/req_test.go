package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convochat/internal/pkg/errs"
)

type signIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func newRequest(contentType, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", contentType)
	return r
}

func TestBindJSON(t *testing.T) {
	var dst signIn
	err := BindJSON(httptest.NewRecorder(), newRequest("application/json", `{"email":"a@b.c","password":"secret"}`), &dst)

	require.Nil(t, err)
	assert.Equal(t, "a@b.c", dst.Email)
}

func TestBindJSONErrors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		code        int
	}{
		{"wrong content type", "text/plain", `{}`, errs.ErrUnsupportedMediaType},
		{"syntax", "application/json", `{"email":`, errs.ErrInvalidJSONFormat},
		{"unknown field", "application/json", `{"nope":1}`, errs.ErrInvalidJSONFormat},
		{"trailing data", "application/json", `{"email":"x"} {"email":"y"}`, errs.ErrExtraContentInBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst signIn
			err := BindJSON(httptest.NewRecorder(), newRequest(tt.contentType, tt.body), &dst)
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}
