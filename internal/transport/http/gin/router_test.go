package httpgin_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
	"github.com/kirinyoku/calendar-engine/internal/service"
	httpgin "github.com/kirinyoku/calendar-engine/internal/transport/http/gin"
)

const org = "7"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, deps httpgin.Deps) *gin.Engine {
	t.Helper()

	store := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcs := service.NewServices(store, store, lock.NewLocal(time.Second), nil, nil, log, service.Config{})

	return httpgin.NewRouter(svcs, deps, log)
}

func do(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-ID", org)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createProperty(t *testing.T, r http.Handler) string {
	t.Helper()

	w := do(r, http.MethodPost, "/admin/properties", map[string]any{
		"name": "Harbour Flat", "currency": "EUR", "nightly_price": "100",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created httpgin.CreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	return strconv.FormatInt(created.ID, 10)
}

func book(reservation, in, out string) map[string]any {
	return map[string]any{
		"type": "BOOK", "check_in": in, "check_out": out, "reservation_id": reservation, "adults": 2,
	}
}

func TestRouter_RequiresOrganization(t *testing.T) {
	r := newRouter(t, httpgin.Deps{})

	req := httptest.NewRequest(http.MethodGet, "/properties/1/calendar?from=2030-01-01&to=2030-01-02", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CommandLifecycle(t *testing.T) {
	r := newRouter(t, httpgin.Deps{})
	id := createProperty(t, r)
	path := "/properties/" + id + "/commands"

	w := do(r, http.MethodPost, path, book("R-1", "2030-03-01", "2030-03-04"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Status  string `json:"status"`
		Version int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "EXECUTED", res.Status)
	assert.EqualValues(t, 1, res.Version)

	w = do(r, http.MethodPost, path, book("R-1", "2030-03-01", "2030-03-04"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "DUPLICATE", res.Status)

	w = do(r, http.MethodPost, path, book("R-2", "2030-03-03", "2030-03-05"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "STATE_CONFLICT")

	w = do(r, http.MethodPost, path, map[string]any{"type": "BOOK", "check_in": "2030-03-01"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/properties/"+id+"/commands", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cmds []struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmds))
	require.Len(t, cmds, 3)
	assert.Equal(t, "EXECUTED", cmds[0].Status)
	assert.Equal(t, "DUPLICATE", cmds[1].Status)
	assert.Equal(t, "REJECTED", cmds[2].Status)
}

func TestRouter_CalendarETag(t *testing.T) {
	r := newRouter(t, httpgin.Deps{})
	id := createProperty(t, r)
	path := "/properties/" + id + "/calendar?from=2030-05-01&to=2030-05-08"

	w := do(r, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	var view struct {
		Days []domain.CalendarDay `json:"days"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Days, 7)

	w = do(r, http.MethodGet, path, nil, map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = do(r, http.MethodGet, "/properties/999/calendar?from=2030-05-01&to=2030-05-08", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RestrictionViolation(t *testing.T) {
	r := newRouter(t, httpgin.Deps{})
	id := createProperty(t, r)

	w := do(r, http.MethodPost, "/admin/properties/"+id+"/restrictions", map[string]any{
		"start_date": "2030-07-01", "end_date": "2030-07-31", "min_stay": 3,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/properties/"+id+"/commands", book("R-9", "2030-07-10", "2030-07-12"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "MIN_STAY_VIOLATION")
}

func TestRouter_PriceAndQuote(t *testing.T) {
	r := newRouter(t, httpgin.Deps{})
	id := createProperty(t, r)

	w := do(r, http.MethodPut, "/admin/properties/"+id+"/overrides/2030-09-02", map[string]any{"price": "180"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/properties/"+id+"/price?date=2030-09-02", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":"180"`)

	w = do(r, http.MethodGet, "/properties/"+id+"/quote?check_in=2030-09-01&check_out=2030-09-03", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":"280"`)
}

func TestRouter_IdempotencyKeyReplaysResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newRouter(t, httpgin.Deps{Idempotency: redisrepo.NewIdempotencyStore(rdb, time.Hour)})
	id := createProperty(t, r)
	path := "/properties/" + id + "/commands"
	hdr := map[string]string{"Idempotency-Key": "abc-1"}

	first := do(r, http.MethodPost, path, book("R-1", "2030-04-01", "2030-04-03"), hdr)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := do(r, http.MethodPost, path, book("R-1", "2030-04-01", "2030-04-03"), hdr)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "abc-1", second.Header().Get("Idempotency-Key"))

	reused := do(r, http.MethodPost, path, book("R-2", "2030-04-05", "2030-04-07"), hdr)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)

	w := do(r, http.MethodGet, "/properties/"+id+"/commands", nil, nil)
	var cmds []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmds))
	assert.Len(t, cmds, 1)
}

func TestRouter_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newRouter(t, httpgin.Deps{Limiter: redisrepo.NewSlidingWindowLimiter(rdb, "rl", 1, time.Minute)})
	id := createProperty(t, r)
	path := "/properties/" + id + "/commands"

	w := do(r, http.MethodPost, path, book("R-1", "2030-04-01", "2030-04-03"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, path, book("R-2", "2030-04-05", "2030-04-06"), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
