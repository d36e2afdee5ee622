package httphandler

import (
	"net/http"
	"strconv"
	"time"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// parsePagination reads ?page= and ?page_limit=, clamped to sane bounds.
func parsePagination(req *http.Request) (page, pageLimit int) {
	page, _ = strconv.Atoi(req.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageLimit, _ = strconv.Atoi(req.URL.Query().Get("page_limit"))
	if pageLimit < 1 {
		pageLimit = defaultPageLimit
	}
	if pageLimit > maxPageLimit {
		pageLimit = maxPageLimit
	}
	return page, pageLimit
}

// parseDateParam accepts YYYY-MM-DD and returns nil when the param is absent.
func parseDateParam(req *http.Request, name string) (*time.Time, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
