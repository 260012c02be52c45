package main

import (
	"go/parser"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkSource(t *testing.T, c *Checker, rel, src string) []Violation {
	t.Helper()

	file, err := parser.ParseFile(c.fset, rel, src, 0)
	require.NoError(t, err)
	c.checkFileAST(file, rel, strings.HasSuffix(rel, "_test.go"))
	return c.Violations()
}

func TestCodeLiterals(t *testing.T) {
	t.Run("ValidDeclaration", func(t *testing.T) {
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

var ErrScanFailed = errors.MustNewCode("gc.scan_failed")
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		assert.Empty(t, violations)
	})

	t.Run("NestedNamespace", func(t *testing.T) {
		src := `package sqlite

import "github.com/gear6io/slate/pkg/errors"

var ErrOpenFailed = errors.MustNewCode("store.sqlite.open_failed")
`
		violations := checkSource(t, NewChecker(false), "server/store/sqlite/sqlite.go", src)
		assert.Empty(t, violations)
	})

	t.Run("CommonIsSharedEverywhere", func(t *testing.T) {
		src := `package errors

var CommonInternal = MustNewCode("common.internal")
`
		// No house import in the package itself; MustNewCode is local,
		// so the call is not attributed and nothing is reported.
		violations := checkSource(t, NewChecker(false), "pkg/errors/code.go", src)
		assert.Empty(t, violations)
	})

	t.Run("BadFormat", func(t *testing.T) {
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

var ErrBad = errors.MustNewCode("ScanFailed")
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "package.name format")
	})

	t.Run("ErrSubstringRejected", func(t *testing.T) {
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

var ErrBad = errors.MustNewCode("gc.scan_error")
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "'err'")
	})

	t.Run("NamespaceMustMatchDirectory", func(t *testing.T) {
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

var ErrBad = errors.MustNewCode("replication.scan_failed")
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "does not match its directory")
	})

	t.Run("DuplicateAcrossFiles", func(t *testing.T) {
		c := NewChecker(false)
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

var ErrScanFailed = errors.MustNewCode("gc.scan_failed")
`
		checkSource(t, c, "server/gc/reaper.go", src)
		violations := checkSource(t, c, "server/gc/cleaner.go", src)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "already declared")
	})
}

func TestErrorConstruction(t *testing.T) {
	t.Run("LiteralCodeRejected", func(t *testing.T) {
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

func f() error {
	return errors.New("oops", "scan failed", nil)
}
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "declared Code")
	})

	t.Run("DeclaredCodeAccepted", func(t *testing.T) {
		src := `package gc

import "github.com/gear6io/slate/pkg/errors"

var ErrScanFailed = errors.MustNewCode("gc.scan_failed")

func f(cause error) error {
	return errors.New(ErrScanFailed, "scan failed", cause)
}
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		assert.Empty(t, violations)
	})
}

func TestForbiddenPatterns(t *testing.T) {
	t.Run("FmtErrorfInServer", func(t *testing.T) {
		src := `package gc

import "fmt"

func f() error {
	return fmt.Errorf("boom")
}
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "uncoded")
	})

	t.Run("FmtErrorfAllowedInTests", func(t *testing.T) {
		src := `package gc

import "fmt"

func f() error {
	return fmt.Errorf("boom")
}
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper_test.go", src)
		assert.Empty(t, violations)
	})

	t.Run("FmtErrorfAllowedOutsideCore", func(t *testing.T) {
		src := `package cli

import "fmt"

func f() error {
	return fmt.Errorf("bad flag")
}
`
		violations := checkSource(t, NewChecker(false), "cli/seed.go", src)
		assert.Empty(t, violations)
	})

	t.Run("StdlibErrorsImportInServer", func(t *testing.T) {
		src := `package gc

import "errors"

var sentinel = errors.New("x")
`
		violations := checkSource(t, NewChecker(false), "server/gc/reaper.go", src)
		require.NotEmpty(t, violations)
		assert.Contains(t, violations[0].Message, "stdlib errors")
	})

	t.Run("ErrorsPackageBootstrapsItself", func(t *testing.T) {
		src := `package errors

import (
	"errors"
	"fmt"
)

func wrap(err error) error {
	if errors.Is(err, nil) {
		return nil
	}
	return fmt.Errorf("wrapped: %w", err)
}
`
		violations := checkSource(t, NewChecker(false), "pkg/errors/utils.go", src)
		assert.Empty(t, violations)
	})
}
