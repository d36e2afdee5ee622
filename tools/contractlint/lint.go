// Package contractlint is a CI-time checker for the codebase's tenant-safety
// and authorization contracts. It parses source with go/ast; nothing here
// runs in production.
package contractlint

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
)

const (
	RuleTenantInput     = "tenant-input"
	RuleBareOrCondition = "bare-or-condition"
	RulePublicMutation  = "public-mutation"
)

// Finding is one contract violation. File is relative to the scanned root.
type Finding struct {
	File    string
	Line    int
	Rule    string
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: [%s] %s", f.File, f.Line, f.Rule, f.Message)
}

type Config struct {
	// Root is the module directory to scan.
	Root string
	// PublicMutationAllowlist maps route paths that may change state without
	// an auth guard to the rationale for each.
	PublicMutationAllowlist map[string]string
	// SkipDirs are directory names never descended into.
	SkipDirs []string
}

// Run scans every .go file under the root and returns findings sorted by
// file, then line.
func Run(cfg Config) ([]Finding, error) {
	skip := map[string]bool{"_examples": true, "vendor": true, "testdata": true}
	for _, d := range cfg.SkipDirs {
		skip[d] = true
	}

	var findings []Finding
	err := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skip[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, relErr := filepath.Rel(cfg.Root, path)
		if relErr != nil {
			rel = path
		}
		// The linter's own sources mention the forbidden patterns by name.
		if strings.HasPrefix(rel, filepath.Join("tools", "contractlint")) {
			return nil
		}

		fileFindings, parseErr := lintFile(path, rel, cfg.PublicMutationAllowlist)
		if parseErr != nil {
			return fmt.Errorf("parsing %s: %w", rel, parseErr)
		}
		findings = append(findings, fileFindings...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Line < findings[j].Line
	})
	return findings, nil
}

func lintFile(path, rel string, allowlist map[string]string) ([]Finding, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	return lintParsedFile(fset, file, rel, allowlist), nil
}

// lintParsedFile applies all rules to one parsed file. Split out so tests can
// feed sources directly.
func lintParsedFile(fset *token.FileSet, file *ast.File, rel string, allowlist map[string]string) []Finding {
	var findings []Finding
	findings = append(findings, checkTenantInput(fset, file, rel)...)
	findings = append(findings, checkBareOrConditions(fset, file, rel)...)
	findings = append(findings, checkPublicMutations(fset, file, rel, allowlist)...)
	return findings
}

// checkTenantInput flags request DTOs that accept a tenant id from the caller
// and query-string reads of tenant_id. Tenant identity is context-derived
// only. The struct-tag check applies to the handler package, where request
// bodies are decoded; token claims and response DTOs legitimately carry a
// tenant id outward.
func checkTenantInput(fset *token.FileSet, file *ast.File, rel string) []Finding {
	var findings []Finding
	inHandlerPackage := strings.Contains(rel, "httphandler")

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.StructType:
			if !inHandlerPackage {
				return true
			}
			for _, field := range node.Fields.List {
				if field.Tag == nil {
					continue
				}
				tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
				jsonName, _, _ := strings.Cut(tag.Get("json"), ",")
				if isTenantIDName(jsonName) {
					findings = append(findings, Finding{
						File:    rel,
						Line:    fset.Position(field.Pos()).Line,
						Rule:    RuleTenantInput,
						Message: fmt.Sprintf("struct field accepts tenant id %q from the request body; derive the tenant from the context", jsonName),
					})
				}
			}
		case *ast.CallExpr:
			sel, ok := node.Fun.(*ast.SelectorExpr)
			if !ok || sel.Sel.Name != "Get" || len(node.Args) != 1 {
				return true
			}
			if lit, ok := node.Args[0].(*ast.BasicLit); ok && isTenantIDName(strings.Trim(lit.Value, `"`)) {
				findings = append(findings, Finding{
					File:    rel,
					Line:    fset.Position(node.Pos()).Line,
					Rule:    RuleTenantInput,
					Message: "tenant id read from a request parameter; derive the tenant from the context",
				})
			}
		}
		return true
	})
	return findings
}

func isTenantIDName(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tenantid", "tenant_id", "tenant-id":
		return true
	}
	return false
}

// checkBareOrConditions flags AddOrCondition calls that are not inside a
// function literal passed to AddGroupedConditions. A bare OR next to the
// tenant predicate can widen a query across tenants.
func checkBareOrConditions(fset *token.FileSet, file *ast.File, rel string) []Finding {
	var findings []Finding
	var groupedDepth int

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		if n == nil {
			return
		}
		call, isCall := n.(*ast.CallExpr)
		if isCall {
			if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
				switch sel.Sel.Name {
				case "AddOrCondition":
					if groupedDepth == 0 {
						findings = append(findings, Finding{
							File:    rel,
							Line:    fset.Position(call.Pos()).Line,
							Rule:    RuleBareOrCondition,
							Message: "AddOrCondition outside AddGroupedConditions; wrap the disjunction in a group",
						})
					}
				case "AddGroupedConditions":
					// The receiver chain is outside the group; only the
					// grouping closure argument is inside.
					ast.Inspect(sel.X, func(inner ast.Node) bool {
						if inner != nil {
							walk(inner)
						}
						return false
					})
					groupedDepth++
					for _, arg := range call.Args {
						walk(arg)
					}
					groupedDepth--
					return
				}
			}
		}

		ast.Inspect(n, func(child ast.Node) bool {
			if child == nil || child == n {
				return child == n
			}
			walk(child)
			return false
		})
	}
	walk(file)
	return findings
}

var mutationMethods = map[string]bool{
	"Post":   true,
	"Put":    true,
	"Patch":  true,
	"Delete": true,
}

// checkPublicMutations flags state-changing route registrations that are not
// under an auth guard and not allowlisted. The guard is detected lexically:
// some enclosing function literal must register AuthenticateMiddleware.
func checkPublicMutations(fset *token.FileSet, file *ast.File, rel string, allowlist map[string]string) []Finding {
	var findings []Finding

	// funcLit ancestry stack; each entry records whether that literal (or one
	// above it) installs the auth middleware.
	var guarded []bool

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		if n == nil {
			return
		}

		if lit, ok := n.(*ast.FuncLit); ok {
			inherited := len(guarded) > 0 && guarded[len(guarded)-1]
			guarded = append(guarded, inherited || installsAuthMiddleware(lit.Body))
			ast.Inspect(lit.Body, func(child ast.Node) bool {
				if child == nil || child == lit.Body {
					return child == lit.Body
				}
				walk(child)
				return false
			})
			guarded = guarded[:len(guarded)-1]
			return
		}

		if call, ok := n.(*ast.CallExpr); ok {
			if sel, selOK := call.Fun.(*ast.SelectorExpr); selOK && mutationMethods[sel.Sel.Name] && len(call.Args) >= 2 {
				if lit, litOK := call.Args[0].(*ast.BasicLit); litOK && lit.Kind == token.STRING {
					path := strings.Trim(lit.Value, `"`)
					isGuarded := len(guarded) > 0 && guarded[len(guarded)-1]
					if !isGuarded {
						if _, allowed := allowlist[path]; !allowed {
							findings = append(findings, Finding{
								File:    rel,
								Line:    fset.Position(call.Pos()).Line,
								Rule:    RulePublicMutation,
								Message: fmt.Sprintf("state-changing route %q has no auth guard and no allowlist entry", path),
							})
						}
					}
				}
			}
		}

		ast.Inspect(n, func(child ast.Node) bool {
			if child == nil || child == n {
				return child == n
			}
			walk(child)
			return false
		})
	}
	walk(file)
	return findings
}

// installsAuthMiddleware reports whether the block directly calls
// Use(...AuthenticateMiddleware...).
func installsAuthMiddleware(block *ast.BlockStmt) bool {
	found := false
	ast.Inspect(block, func(n ast.Node) bool {
		// Do not descend into nested route groups; they guard themselves.
		if _, isLit := n.(*ast.FuncLit); isLit {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Use" {
			return true
		}
		for _, arg := range call.Args {
			if mentionsAuthenticateMiddleware(arg) {
				found = true
			}
		}
		return true
	})
	return found
}

func mentionsAuthenticateMiddleware(expr ast.Expr) bool {
	mentioned := false
	ast.Inspect(expr, func(n ast.Node) bool {
		if ident, ok := n.(*ast.Ident); ok && ident.Name == "AuthenticateMiddleware" {
			mentioned = true
		}
		return true
	})
	return mentioned
}
