package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWebSocket_RejectsWhenAtCapacity(t *testing.T) {
	srv := &Server{
		echo:   echo.New(),
		limits: NewConnectionLimits(0, 10, 100, 100),
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/intelligence", nil)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleWebSocket(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebSocket_NonUpgradeRequestReleasesSlot(t *testing.T) {
	srv := &Server{
		echo:   echo.New(),
		limits: NewConnectionLimits(10, 10, 100, 100),
	}

	// A plain GET without upgrade headers fails the handshake; the slot it
	// briefly held must be returned.
	req := httptest.NewRequest(http.MethodGet, "/ws/intelligence", nil)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleWebSocket(c))
	assert.Equal(t, int64(0), srv.limits.Global().Current())
}
