package httphandler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parsePagination(t *testing.T) {
	testCases := []struct {
		name          string
		target        string
		wantPage      int
		wantPageLimit int
	}{
		{name: "defaults when absent", target: "/bookings", wantPage: 1, wantPageLimit: defaultPageLimit},
		{name: "explicit values", target: "/bookings?page=3&page_limit=50", wantPage: 3, wantPageLimit: 50},
		{name: "zero and negative clamp to defaults", target: "/bookings?page=0&page_limit=-5", wantPage: 1, wantPageLimit: defaultPageLimit},
		{name: "limit clamps to the maximum", target: "/bookings?page_limit=5000", wantPage: 1, wantPageLimit: maxPageLimit},
		{name: "garbage falls back to defaults", target: "/bookings?page=abc&page_limit=xyz", wantPage: 1, wantPageLimit: defaultPageLimit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			page, pageLimit := parsePagination(req)
			assert.Equal(t, tc.wantPage, page)
			assert.Equal(t, tc.wantPageLimit, pageLimit)
		})
	}
}

func Test_parseDateParam(t *testing.T) {
	t.Run("absent param returns nil", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
		got, err := parseDateParam(req, "date_from")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("valid date", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions?date_from=2026-03-15", nil)
		got, err := parseDateParam(req, "date_from")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *got)
	})

	t.Run("invalid format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions?date_from=15-03-2026", nil)
		_, err := parseDateParam(req, "date_from")
		assert.Error(t, err)
	})
}
