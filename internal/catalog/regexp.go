package catalog

import (
	"database/sql/driver"
	"regexp"

	"github.com/puzpuzpuz/xsync/v3"
	"modernc.org/sqlite"
)

// maxCachedPatterns bounds the compiled-pattern cache; it is reset when exceeded.
const maxCachedPatterns = 4096

var patternCache = xsync.NewMapOf[string, *regexp.Regexp]()

func init() {
	// X REGEXP Y is evaluated by SQLite as regexp(Y, X).
	if err := sqlite.RegisterDeterministicScalarFunction("regexp", 2, regexpFunc); err != nil {
		panic("catalog: register regexp: " + err.Error())
	}
}

func regexpFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	pattern, ok := asText(args[0])
	if !ok || pattern == "" {
		return int64(0), nil
	}
	text, ok := asText(args[1])
	if !ok || text == "" {
		return int64(0), nil
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return int64(0), nil
	}
	if re.MatchString(text) {
		return int64(1), nil
	}
	return int64(0), nil
}

func asText(v driver.Value) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if patternCache.Size() >= maxCachedPatterns {
		patternCache.Clear()
	}
	re, _ = patternCache.LoadOrStore(pattern, re)
	return re, nil
}
