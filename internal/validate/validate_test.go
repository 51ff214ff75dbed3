package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BucketCatalog/internal/domain"
)

func code(t *testing.T, err error) string {
	t.Helper()
	var verr *Error
	require.True(t, errors.As(err, &verr), "expected *validate.Error, got %v", err)
	return verr.Code
}

func TestRegexMistakes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"*.exe": "Pattern cannot start with a quantifier (*+?{})",
		"+abc":  "Pattern cannot start with a quantifier (*+?{})",
		"{2}a":  "Pattern cannot start with a quantifier (*+?{})",
		"a**b":  "Cannot have consecutive quantifiers",
		"a+?b":  "Cannot have consecutive quantifiers",
		"(abc":  "Unmatched parentheses in pattern.",
		"[z-a]": "Invalid character range in brackets. Use [a-z] format.",
		"abc[":  "Unmatched brackets in pattern.",
		`\q`:    `Invalid escape sequence. Use \\ for literal backslash.`,
	}
	for pattern, want := range cases {
		err := Regex(pattern)
		require.Error(t, err, pattern)
		assert.Equal(t, want, err.Error(), pattern)
		assert.Equal(t, CodeInvalidRegex, code(t, err))
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	assert.NoError(t, Regex(""))
	assert.NoError(t, Regex(`^pub/.*\.exe$`))
	assert.NoError(t, Regex(`.*`))
}

func TestPatternsLabelsOffender(t *testing.T) {
	t.Parallel()

	err := Patterns("Filter", []string{"ok", "", "*bad"})
	require.Error(t, err)
	assert.Equal(t, "Filter 3: Pattern cannot start with a quantifier (*+?{})", err.Error())
}

func TestDate(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]time.Time{
		"2025-01-02":                time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		"2025-01-02T03:04":          time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
		"2025-01-02T03:04:05":       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		"2025-01-02T03:04:05Z":      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		"2025-01-02T03:04:05+02:00": time.Date(2025, 1, 2, 1, 4, 5, 0, time.UTC),
	} {
		got, err := Date(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), raw)
	}

	_, err := Date("02/01/2025")
	assert.Equal(t, CodeInvalidDate, code(t, err))
}

func TestPresence(t *testing.T) {
	t.Parallel()

	p, err := Presence("YES")
	require.NoError(t, err)
	assert.Equal(t, domain.PresencePresent, p)

	p, err = Presence("false")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceAbsent, p)

	p, err = Presence("")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceAny, p)

	_, err = Presence("maybe")
	assert.Equal(t, CodeInvalidBoolean, code(t, err))
}

func TestRunID(t *testing.T) {
	t.Parallel()

	assert.NoError(t, RunID("2025-01-02T03-04-05Z"))
	assert.NoError(t, RunID("2025-01-02T03-04-05Z-1"))
	for _, bad := range []string{"", ".", "..", "../x", "a/b", `a\b`, "a\x00b"} {
		assert.Equal(t, CodeInvalidRunID, code(t, RunID(bad)), bad)
	}
}

func TestManifestURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ManifestURL("https://example.test/m.yml"))
	assert.Equal(t, CodeMissingURL, code(t, ManifestURL("  ")))
	assert.Equal(t, CodeInvalidURL, code(t, ManifestURL("file:///etc/passwd")))
	assert.Equal(t, CodeInvalidURL, code(t, ManifestURL("https://")))
}

func TestFilterQuery(t *testing.T) {
	t.Parallel()

	f, err := FilterQuery(`^a`, []string{"", `b$`}, []string{`^c`}, "2025-01-01", "no", "linked")
	require.NoError(t, err)
	assert.Equal(t, []string{`^a`, `b$`, `^c`}, f.Patterns)
	require.NotNil(t, f.CreatedBefore)
	assert.Equal(t, domain.PresenceAbsent, f.CustomTime)
	assert.Equal(t, domain.ManifestLinked, f.Manifest)

	_, err = FilterQuery("*x", nil, nil, "", "", "")
	assert.Equal(t, "Single regex: Pattern cannot start with a quantifier (*+?{})", err.Error())

	_, err = FilterQuery("", nil, []string{"ok", "a**"}, "", "", "")
	assert.Equal(t, "Manifest pattern 2: Cannot have consecutive quantifiers", err.Error())

	_, err = FilterQuery("", nil, nil, "yesterday", "", "")
	assert.Equal(t, CodeInvalidDate, code(t, err))
}
