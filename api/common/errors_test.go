package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anoixa/image-gallery/internal/display"
	store "github.com/anoixa/image-gallery/internal/gallery"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no session", fmt.Errorf("like: %w", session.ErrNoSession), http.StatusUnauthorized},
		{"invalid upload", gallery.ErrInvalidUpload, http.StatusBadRequest},
		{"invalid filter", gallery.ErrInvalidFilter, http.StatusBadRequest},
		{"not in cache", store.ErrNotInCache, http.StatusNotFound},
		{"superseded", gallery.ErrReloadSuperseded, http.StatusConflict},
		{"deadline", fmt.Errorf("GET /images: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"decode", &display.DecodeError{Cause: display.ErrNotImage}, http.StatusBadGateway},
		{"remote 403", &transport.Error{Method: "PATCH", Path: "/images/1/privacy", StatusCode: 403}, http.StatusForbidden},
		{"remote 404", &transport.Error{Method: "GET", Path: "/images/9", StatusCode: 404}, http.StatusNotFound},
		{"remote 500", &transport.Error{Method: "GET", Path: "/images", StatusCode: 500}, http.StatusBadGateway},
		{"network", &transport.Error{Method: "GET", Path: "/images", Cause: errors.New("connection refused")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestRespondServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondServiceError(c, session.ErrNoSession)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}
