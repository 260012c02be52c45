package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Import path of the house errors package.
const errorsImportPath = "github.com/gear6io/slate/pkg/errors"

// Directories whose non-test files must route every error through the
// house errors package so failures keep machine-readable codes. The
// errors package itself is exempt: it bootstraps with the stdlib.
var codedDirs = []string{"server", "pkg"}

const errorsPkgDir = "pkg/errors"

// Mirrors the runtime validation in pkg/errors.NewCode. The checker
// exists to catch MustNewCode panics before the binary does.
var codeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

type Violation struct {
	File    string
	Line    int
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d: %s", v.File, v.Line, v.Message)
}

type Checker struct {
	verbose    bool
	fset       *token.FileSet
	violations []Violation

	// code literal -> first declaration site, for uniqueness
	seen map[string]string
}

func NewChecker(verbose bool) *Checker {
	return &Checker{
		verbose: verbose,
		fset:    token.NewFileSet(),
		seen:    make(map[string]string),
	}
}

func (c *Checker) Violations() []Violation { return c.violations }

func (c *Checker) report(pos token.Pos, format string, args ...interface{}) {
	p := c.fset.Position(pos)
	c.violations = append(c.violations, Violation{
		File:    p.Filename,
		Line:    p.Line,
		Message: fmt.Sprintf(format, args...),
	})
}

// CheckDirectory walks root and checks every Go file outside vendored
// or hidden trees.
func (c *Checker) CheckDirectory(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		return c.CheckFile(root, path)
	})
}

// CheckFile parses and checks a single Go file.
func (c *Checker) CheckFile(root, path string) error {
	if c.verbose {
		fmt.Printf("checking %s\n", path)
	}

	file, err := parser.ParseFile(c.fset, path, nil, 0)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	c.checkFileAST(file, rel, strings.HasSuffix(rel, "_test.go"))
	return nil
}

func (c *Checker) checkFileAST(file *ast.File, rel string, isTest bool) {
	houseErrors := localName(file, errorsImportPath)
	importsStdErrors := localName(file, "errors") != "" && houseErrors != localName(file, "errors")

	coded := inCodedDir(rel) && !isTest && !strings.HasPrefix(rel, errorsPkgDir+"/")

	if coded && importsStdErrors {
		c.report(file.Pos(), "imports stdlib errors; use %s", errorsImportPath)
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}

		if coded && recv.Name == "fmt" && sel.Sel.Name == "Errorf" {
			c.report(call.Pos(), "fmt.Errorf produces an uncoded error; use %s.New", errorsImportPath)
		}

		if houseErrors == "" || recv.Name != houseErrors {
			return true
		}

		switch sel.Sel.Name {
		case "MustNewCode", "NewCode":
			c.checkCodeLiteral(call, rel)
		case "New", "Newf":
			if len(call.Args) > 0 {
				if _, isLit := call.Args[0].(*ast.BasicLit); isLit {
					c.report(call.Pos(), "first argument to errors.%s must be a declared Code, not a literal", sel.Sel.Name)
				}
			}
		}
		return true
	})
}

// checkCodeLiteral validates a MustNewCode/NewCode argument without
// running it: format, the no-err-substring rule, namespace prefix and
// global uniqueness.
func (c *Checker) checkCodeLiteral(call *ast.CallExpr, rel string) {
	if len(call.Args) != 1 {
		return
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		// Dynamic code construction defeats static checking.
		c.report(call.Pos(), "code must be a string literal")
		return
	}
	code, err := strconv.Unquote(lit.Value)
	if err != nil {
		return
	}

	if !codeRegex.MatchString(code) {
		c.report(lit.Pos(), "code %q does not match package.name format", code)
		return
	}
	if strings.Contains(code, "err") {
		c.report(lit.Pos(), "code %q must not contain 'err'; name the condition instead", code)
	}

	if prev, dup := c.seen[code]; dup {
		c.report(lit.Pos(), "code %q already declared at %s", code, prev)
	} else {
		p := c.fset.Position(lit.Pos())
		c.seen[code] = fmt.Sprintf("%s:%d", p.Filename, p.Line)
	}

	// The namespace (all segments but the last) must mirror the tail of
	// the declaring directory, e.g. "store.sqlite.*" under
	// server/store/sqlite. "common.*" is the shared base registry.
	namespace := code[:strings.LastIndex(code, ".")]
	if namespace == "common" {
		return
	}
	dir := filepath.ToSlash(filepath.Dir(rel))
	dotted := strings.ReplaceAll(dir, "/", ".")
	if dotted != namespace && !strings.HasSuffix(dotted, "."+namespace) {
		c.report(lit.Pos(), "code %q namespace %q does not match its directory %q", code, namespace, dir)
	}
}

// localName returns the name the file uses for an import path, or ""
// when the file does not import it.
func localName(file *ast.File, importPath string) string {
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil || path != importPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return path[strings.LastIndex(path, "/")+1:]
	}
	return ""
}

func inCodedDir(rel string) bool {
	for _, dir := range codedDirs {
		if strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}
