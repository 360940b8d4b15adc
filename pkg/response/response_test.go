package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/robjohncolson/statrelay/pkg/errors"
)

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return w
}

func TestSuccessEnvelope(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"answer": "B"})
	})

	require.Equal(t, http.StatusOK, w.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Nil(t, payload.Error)
}

func TestErrorEnvelopeCarriesKindAndTimestamp(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, appErrors.ErrInvalidOperation)
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	require.Equal(t, "InvalidOperation", payload.Error.Kind)
	require.Equal(t, "INVALID_OPERATION", payload.Error.Code)
	require.NotEmpty(t, payload.Error.Timestamp)
}

func TestErrorEnvelopeDefaultsUnknownErrors(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, nil)
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
