package manifest

import (
	"regexp"
	"strings"
)

// Candidate is one compiled destination pattern with its provenance.
type Candidate struct {
	GroupKey    string
	PrettyName  string
	Destination string
	Pattern     string
}

// Result is the output of a compilation.
type Result struct {
	Candidates    []Candidate
	ArtifactCount int
}

// Patterns returns the compiled pattern strings in candidate order.
func (r Result) Patterns() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Pattern
	}
	return out
}

// Placeholder tokens carry NUL bytes so they can never collide with path text
// and survive regexp.QuoteMeta untouched.
const modifierToken = "\x00modifier\x00"

var templateVars = []struct {
	name  string
	token string
	expr  string
}{
	{"build_number", "\x00build\x00", `\d+`},
	{"path_platform", "\x00platform\x00", `[A-Za-z0-9_-]+`},
	{"tools_platform", "\x00platform\x00", `[A-Za-z0-9_-]+`},
	{"locale", "\x00locale\x00", `[A-Za-z-]+`},
	{"previous_version", "\x00version\x00", `\d+\.\d+b?\d?`},
	{"version", "\x00version\x00", `\d+\.\d+b?\d?`},
}

const modifierExpr = `[A-Za-z0-9_-]*/?`

// Compile produces the deduplicated, anchored pattern set of a document.
// Candidates keep document order; the first candidate yielding a pattern wins.
func Compile(doc Document) Result {
	res := Result{ArtifactCount: len(doc.Mapping)}
	seen := make(map[string]struct{})

	bucketPaths := doc.bucketPaths()
	if len(bucketPaths) == 0 {
		bucketPaths = []string{""}
	}

	for _, art := range doc.Mapping {
		if !hasExpiry(art.Expiry) {
			continue
		}
		prettyName := strings.TrimLeft(art.PrettyName.First(), "/")
		if prettyName == "" {
			continue
		}
		destinations := art.Destinations
		if len(destinations) == 0 {
			destinations = doc.Default.Destinations
		}
		if len(destinations) == 0 {
			continue
		}

		for _, dest := range destinations {
			for _, bucketPath := range bucketPaths {
				pattern := CompilePath(bucketPath, dest, prettyName)
				if _, dup := seen[pattern]; dup {
					continue
				}
				seen[pattern] = struct{}{}
				res.Candidates = append(res.Candidates, Candidate{
					GroupKey:    art.Key,
					PrettyName:  prettyName,
					Destination: dest,
					Pattern:     pattern,
				})
			}
		}
	}
	return res
}

// CompileBytes parses and compiles a raw document.
func CompileBytes(raw []byte) (Result, error) {
	doc, err := Parse(raw)
	if err != nil {
		return Result{}, err
	}
	return Compile(doc), nil
}

// CompilePath builds the anchored pattern for {bucketPath}/{destination}/{modifier}{prettyName}.
func CompilePath(bucketPath, destination, prettyName string) string {
	var segments []string
	for _, s := range []string{bucketPath, destination} {
		if s = strings.Trim(s, "/"); s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments, modifierToken+prettyName)
	path := strings.Join(segments, "/")

	for _, v := range templateVars {
		path = strings.ReplaceAll(path, "${"+v.name+"}", v.token)
	}

	pattern := regexp.QuoteMeta(path)
	for _, v := range templateVars {
		pattern = strings.ReplaceAll(pattern, v.token, v.expr)
	}
	pattern = strings.ReplaceAll(pattern, modifierToken, modifierExpr)

	return "^" + pattern + "$"
}
