package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCached(t *testing.T) {
	c := Cached{Body: []byte(`{"ok":true}`), ETag: `"abc"`, TTL: 30 * time.Second}

	rec := httptest.NewRecorder()
	WriteCached(rec, httptest.NewRequest(http.MethodGet, "/", nil), c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "public, max-age=30, stale-while-revalidate=15", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", `"abc"`)
	rec = httptest.NewRecorder()
	WriteCached(rec, req, c)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestWriteErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetail(rec, http.StatusConflict, "MATCH_CLOSED", "Conflict", "match 7 closed")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, noStore, rec.Header().Get("Cache-Control"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorBody{Code: "MATCH_CLOSED", Message: "Conflict", Detail: "match 7 closed"}, body.Error)
}
