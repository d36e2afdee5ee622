package utils

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
)

// GetRoutePattern returns the chi route pattern for the request, falling back
// to "undefined" when the request does not match a registered route.
func GetRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.Path
	if r.URL.RawPath != "" {
		routePath = r.URL.RawPath
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return "undefined"
	}

	// tctx has the updated pattern, since Match mutates it
	return tctx.RoutePattern()
}

// ValidateEmail rejects empty and malformed addresses.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !govalidator.IsEmail(email) {
		return fmt.Errorf("the provided email is not valid")
	}
	return nil
}

// TruncateString truncates s to maxLen runes, appending an ellipsis marker
// when truncation happened. Used when persisting error payloads.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// StringPtr returns a pointer to a string.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to a time.Time.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// IntPtr returns a pointer to an int.
func IntPtr(i int) *int {
	return &i
}

// StringPtrEq compares a string pointer with a string value and returns true if they are equal.
func StringPtrEq(sp *string, s string) bool {
	return sp != nil && *sp == s
}

// MapSlice applies f to every element of a.
func MapSlice[T any, M any](a []T, f func(T) M) []M {
	n := make([]M, len(a))
	for i, e := range a {
		n[i] = f(e)
	}
	return n
}

// IsValidUUID reports whether s looks like a canonical UUID. Migration
// backfills and provider-mapping lookups rely on this rather than parsing.
func IsValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range strings.ToLower(s) {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
			if !isHex {
				return false
			}
		}
	}
	return true
}
