package logx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.42:5000", "203.0.113.0"},
		{"203.0.113.42", "203.0.113.0"},
		{"127.0.0.1:80", "127.0.0.1"},
		{"[2001:db8:85a3::8a2e:370:7334]:443", "2001:db8:85a3::"},
		{"garbage", "unknown_ip"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.in))
		})
	}
}

func TestRequestLoggerWritesStatus(t *testing.T) {
	var buf bytes.Buffer
	InitGlobalLoggerTo(&buf, false)

	h := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.Equal(t, "/health", line["request_uri"])
}

func TestOddFieldsAreDropped(t *testing.T) {
	var buf bytes.Buffer
	InitGlobalLoggerTo(&buf, false)

	Info("hello", "dangling")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var last map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &last))
	assert.Equal(t, "hello", last["message"])
	assert.NotContains(t, last, "dangling")
}
