package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/core/apperror"
	appctx "carmen/internal/core/context"
	"carmen/internal/infrastructure/http/v1/dto"
)

func newEngine(h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Trace(), Recovery(), ErrorHandler(), UserContext())
	r.GET("/x", h)
	return r
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body dto.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRecoveryAnswersInternalError(t *testing.T) {
	r := newEngine(func(*gin.Context) { panic("cache exploded") })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w, body := serve(r, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-42", body.Details["request_id"])
	assert.NotContains(t, w.Body.String(), "cache exploded")
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewNoData("SKU-200", "2024-04"))
	})

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeNoData, body.Code)
}

func TestErrorHandlerHidesPlainErrors(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.NotContains(t, body.Message, assert.AnError.Error())
}

func TestUserContextParsesScopes(t *testing.T) {
	var got *appctx.UserContext
	r := newEngine(func(c *gin.Context) {
		got = appctx.GetUser(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderUserID, "controller")
	req.Header.Set(HeaderScopeIDs, " HOTEL-A, ,HOTEL-B ")
	w, _ := serve(r, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "controller", got.UserID)
	assert.Equal(t, []string{"HOTEL-A", "HOTEL-B"}, got.ScopeIDs)
}

func TestTraceEchoesAndGeneratesIDs(t *testing.T) {
	r := newEngine(func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderTraceID, "trace-1")
	w, _ := serve(r, req)

	assert.Equal(t, "trace-1", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
