package contractlint

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lintSource(t *testing.T, rel, src string, allowlist map[string]string) []Finding {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, rel, src, parser.ParseComments)
	require.NoError(t, err)
	return lintParsedFile(fset, file, rel, allowlist)
}

const handlerPath = "internal/serve/httphandler/handler.go"

func findingsForRule(findings []Finding, rule string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func Test_checkTenantInput(t *testing.T) {
	testCases := []struct {
		name          string
		src           string
		wantFindings  int
		wantInMessage string
	}{
		{
			name: "🔴 struct field with tenantId json tag",
			src: `package handler
type createRequest struct {
	TenantID string ` + "`json:\"tenantId\"`" + `
	Amount   string ` + "`json:\"amount\"`" + `
}`,
			wantFindings:  1,
			wantInMessage: `"tenantId"`,
		},
		{
			name: "🔴 snake_case tenant_id tag",
			src: `package handler
type filter struct {
	Tenant string ` + "`json:\"tenant_id\"`" + `
}`,
			wantFindings: 1,
		},
		{
			name: "🔴 tenant_id read from query",
			src: `package handler
func list(req request) {
	_ = req.URL.Query().Get("tenant_id")
}`,
			wantFindings: 1,
		},
		{
			name: "🟢 tenant slug on login is allowed",
			src: `package handler
type loginRequest struct {
	TenantSlug string ` + "`json:\"tenantSlug\"`" + `
	Email      string ` + "`json:\"email\"`" + `
}`,
			wantFindings: 0,
		},
		{
			name: "🟢 tenant id as a db column name",
			src: `package data
const insertQuery = "INSERT INTO bookings (tenant_id) VALUES ($1)"`,
			wantFindings: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := findingsForRule(lintSource(t, handlerPath, tc.src, nil), RuleTenantInput)
			require.Len(t, got, tc.wantFindings)
			if tc.wantInMessage != "" {
				assert.Contains(t, got[0].Message, tc.wantInMessage)
			}
		})
	}

	t.Run("🟢 claims and response DTOs outside the handler package", func(t *testing.T) {
		src := `package auth
type Claims struct {
	TenantID string ` + "`json:\"tenant_id\"`" + `
}`
		got := findingsForRule(lintSource(t, "internal/auth/jwt_manager.go", src, nil), RuleTenantInput)
		assert.Empty(t, got)
	})
}

func Test_checkBareOrConditions(t *testing.T) {
	testCases := []struct {
		name         string
		src          string
		wantFindings int
	}{
		{
			name: "🔴 bare OR at the top level",
			src: `package data
func query(qb builder) {
	qb.AddCondition("tenant_id = ?", tenantID).AddOrCondition("status = ?", status)
}`,
			wantFindings: 1,
		},
		{
			name: "🟢 OR inside a group",
			src: `package data
func query(qb builder) {
	qb.AddGroupedConditions(func(g builder) {
		g.AddCondition("status = ?", a).AddOrCondition("status = ?", b)
	})
}`,
			wantFindings: 0,
		},
		{
			name: "🔴 OR on the receiver chain before the group",
			src: `package data
func query(qb builder) {
	qb.AddOrCondition("status = ?", a).AddGroupedConditions(func(g builder) {
		g.AddCondition("x = ?", b)
	})
}`,
			wantFindings: 1,
		},
		{
			name: "🔴 one grouped and one bare in the same function",
			src: `package data
func query(qb builder) {
	qb.AddGroupedConditions(func(g builder) {
		g.AddOrCondition("a = ?", a)
	})
	qb.AddOrCondition("b = ?", b)
}`,
			wantFindings: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := findingsForRule(lintSource(t, "internal/data/bookings.go", tc.src, nil), RuleBareOrCondition)
			assert.Len(t, got, tc.wantFindings)
		})
	}
}

func Test_checkPublicMutations(t *testing.T) {
	allowlist := map[string]string{
		"/auth/login": "issues the credentials the guard checks",
	}

	testCases := []struct {
		name         string
		src          string
		wantFindings int
		wantPath     string
	}{
		{
			name: "🔴 unguarded POST outside the allowlist",
			src: `package serve
func routes(mux router) {
	mux.Group(func(r router) {
		r.Post("/bookings", createBooking)
	})
}`,
			wantFindings: 1,
			wantPath:     `"/bookings"`,
		},
		{
			name: "🟢 guarded group",
			src: `package serve
func routes(mux router) {
	mux.Group(func(r router) {
		r.Use(middleware.AuthenticateMiddleware(jwtManager))
		r.Post("/bookings", createBooking)
		r.Delete("/webhooks/{id}", deleteWebhook)
	})
}`,
			wantFindings: 0,
		},
		{
			name: "🟢 guard inherited by a nested group",
			src: `package serve
func routes(mux router) {
	mux.Group(func(r router) {
		r.Use(middleware.AuthenticateMiddleware(jwtManager))
		r.Route("/tasks", func(r router) {
			r.Patch("/{id}/status", patchStatus)
		})
	})
}`,
			wantFindings: 0,
		},
		{
			name: "🟢 allowlisted public route",
			src: `package serve
func routes(mux router) {
	mux.Group(func(r router) {
		r.Post("/auth/login", login)
	})
}`,
			wantFindings: 0,
		},
		{
			name: "🟢 GET routes are not state-changing",
			src: `package serve
func routes(mux router) {
	mux.Get("/health", health)
}`,
			wantFindings: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := findingsForRule(lintSource(t, "internal/serve/serve.go", tc.src, allowlist), RulePublicMutation)
			require.Len(t, got, tc.wantFindings)
			if tc.wantPath != "" {
				assert.Contains(t, got[0].Message, tc.wantPath)
			}
		})
	}
}

func Test_Run_sortsAndSkips(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal", "serve", "httphandler"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal", "data"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_examples"), 0o755))

	writeFile := func(rel, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(src), 0o644))
	}

	writeFile("internal/serve/httphandler/b.go", `package httphandler
type req struct {
	TenantID string `+"`json:\"tenantId\"`"+`
}`)
	writeFile("internal/data/a.go", `package data
func query(qb builder) {
	qb.AddOrCondition("x = ?", a)
}`)
	writeFile("internal/data/a_test.go", `package data
func queryInTest(qb builder) {
	qb.AddOrCondition("x = ?", a)
}`)
	writeFile("_examples/ignored.go", `package ignored
func query(qb builder) {
	qb.AddOrCondition("x = ?", a)
}`)

	findings, err := Run(Config{Root: root})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, filepath.Join("internal", "data", "a.go"), findings[0].File)
	assert.Equal(t, RuleBareOrCondition, findings[0].Rule)
	assert.Equal(t, filepath.Join("internal", "serve", "httphandler", "b.go"), findings[1].File)
	assert.Equal(t, RuleTenantInput, findings[1].Rule)
}

func Test_Finding_String(t *testing.T) {
	f := Finding{File: "internal/serve/serve.go", Line: 42, Rule: RulePublicMutation, Message: "no auth guard"}
	assert.Equal(t, "internal/serve/serve.go:42: [public-mutation] no auth guard", f.String())
}
