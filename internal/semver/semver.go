package semver

import (
	"fmt"
	"regexp"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a library version.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3. Maven style
// qualifiers that are not valid semver ("4.1.0.Final", "5.0.0.RELEASE") are
// kept as build metadata, so they do not take part in comparisons.
type Version struct {
	v   *mm.Version
	raw string
}

// Constraint is a version constraint.
//
// Examples:
// - ">=1.2.0 <2.0.0"
// - "^1.0.0"
// - "[3.1,4.0)"
type Constraint struct {
	c *mm.Constraints
}

var qualified = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})[.\-_]([0-9A-Za-z.\-_]+)$`)

func ParseVersion(raw string) (Version, error) {
	raw = strings.TrimSpace(raw)
	v, err := mm.NewVersion(raw)
	if err != nil {
		m := qualified.FindStringSubmatch(raw)
		if m == nil {
			return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
		}
		meta := strings.NewReplacer(".", "-", "_", "-").Replace(m[2])
		if v, err = mm.NewVersion(m[1] + "+" + meta); err != nil {
			return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
		}
	}
	return Version{v: v, raw: raw}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return v.raw
}

// canonical renders v as a full major.minor.patch[-pre] string, which is the
// form constraints are built from.
func (v Version) canonical() string {
	s := fmt.Sprintf("%d.%d.%d", v.v.Major(), v.v.Minor(), v.v.Patch())
	if pre := v.v.Prerelease(); pre != "" {
		s += "-" + pre
	}
	return s
}

func ParseConstraint(raw string) (Constraint, error) {
	c, err := mm.NewConstraint(raw)
	if err != nil {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, err)
	}
	return Constraint{c: c}, nil
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Constraint) String() string {
	if c.c == nil {
		return ""
	}
	return c.c.String()
}

// ParseRange parses a version range. Maven ranges are accepted alongside
// constraint syntax:
//
//	[1.0,2.0)      1.0 <= v < 2.0
//	(,3]           v <= 3
//	[4.1,)         v >= 4.1
//	[1.2]          v == 1.2
//	(,1.0],[1.2,)  either
//
// Input that contains no bracket is parsed by ParseConstraint.
func ParseRange(raw string) (Constraint, error) {
	raw = strings.TrimSpace(raw)
	if !strings.ContainsAny(raw, "[(") {
		return ParseConstraint(raw)
	}

	var alternatives []string
	rest := raw
	for rest != "" {
		if rest[0] != '[' && rest[0] != '(' {
			return Constraint{}, fmt.Errorf("semver: parse range %q: expected '[' or '(' at %q", raw, rest)
		}
		end := strings.IndexAny(rest, "])")
		if end < 0 {
			return Constraint{}, fmt.Errorf("semver: parse range %q: unterminated interval", raw)
		}
		alt, err := interval(rest[:end+1])
		if err != nil {
			return Constraint{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
		}
		alternatives = append(alternatives, alt)

		rest = strings.TrimSpace(rest[end+1:])
		if rest == "" {
			break
		}
		if rest[0] != ',' {
			return Constraint{}, fmt.Errorf("semver: parse range %q: expected ',' at %q", raw, rest)
		}
		rest = strings.TrimSpace(rest[1:])
		if rest == "" {
			return Constraint{}, fmt.Errorf("semver: parse range %q: trailing ','", raw)
		}
	}
	return ParseConstraint(strings.Join(alternatives, " || "))
}

// interval lowers one bracketed Maven interval to a constraint expression.
func interval(s string) (string, error) {
	lowerInclusive := s[0] == '['
	upperInclusive := s[len(s)-1] == ']'
	body := s[1 : len(s)-1]

	bounds := strings.Split(body, ",")
	switch len(bounds) {
	case 1:
		if !lowerInclusive || !upperInclusive {
			return "", fmt.Errorf("exact version %q must use [ ]", s)
		}
		v, err := ParseVersion(bounds[0])
		if err != nil {
			return "", err
		}
		return "=" + v.canonical(), nil
	case 2:
	default:
		return "", fmt.Errorf("interval %q has more than two bounds", s)
	}

	var parts []string
	if lower := strings.TrimSpace(bounds[0]); lower != "" {
		v, err := ParseVersion(lower)
		if err != nil {
			return "", err
		}
		op := ">"
		if lowerInclusive {
			op = ">="
		}
		parts = append(parts, op+v.canonical())
	}
	if upper := strings.TrimSpace(bounds[1]); upper != "" {
		v, err := ParseVersion(upper)
		if err != nil {
			return "", err
		}
		op := "<"
		if upperInclusive {
			op = "<="
		}
		parts = append(parts, op+v.canonical())
	}
	if len(parts) == 0 {
		return "*", nil
	}
	return strings.Join(parts, ", "), nil
}

func MustParseRange(raw string) Constraint {
	c, err := ParseRange(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// MaxSatisfying returns the highest version in candidates that satisfies c.
//
// If multiple versions are equal, the first encountered wins.
func MaxSatisfying(c Constraint, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Satisfies(candidate, c) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}
