//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
// They keep the codebase on its own conventions: enhanced errors carry a
// category, loggers get typed fields, and goroutines use wg.Go.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the Add/Done dance that wg.Go replaces.
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    run()
//	}()
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... })").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()")
}

// ErrorCategory flags enhanced errors built without a category. Uncategorized
// errors fall back to message sniffing, which reports them under the wrong
// component.
func ErrorCategory(m dsl.Matcher) {
	m.Import("github.com/rsamf/mink/internal/errors")

	m.Match(`errors.New($err).Build()`, `errors.Newf($*_).Build()`).
		Report("set .Category(...) before Build()")

	m.Match(`errors.New($err).Context($*_).Build()`, `errors.Newf($*_).Context($*_).Build()`).
		Report("set .Category(...) before Build()")
}

// TypedLogFields flags conversions that drop precision or hide type in log
// fields.
func TypedLogFields(m dsl.Matcher) {
	m.Import("github.com/rsamf/mink/internal/logger")

	m.Match(`logger.Int($key, int($x))`).
		Where(m["x"].Type.Is("int64")).
		Report("use logger.Int64($key, $x)").
		Suggest("logger.Int64($key, $x)")

	m.Match(`logger.String($key, $err.Error())`).
		Where(m["err"].Type.Implements("error")).
		Report("use logger.Error($err)").
		Suggest("logger.Error($err)")

	m.Match(`logger.String($key, fmt.Sprint($x))`, `logger.String($key, fmt.Sprintf("%v", $x))`).
		Report("use a typed field or logger.Any($key, $x)")
}

// TestContext prefers t.Context() in tests; it is cancelled when the test
// ends, so leaked goroutines surface in goleak instead of hanging.
func TestContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests")
}

// AnyAlias prefers any over interface{}.
func AnyAlias(m dsl.Matcher) {
	m.Match(`interface{}`).
		Report("use any").
		Suggest("any")
}
