package portfolio

import (
	"fmt"
	"strings"
)

// Field names a canonical record field.
type Field string

const (
	FieldName     Field = "name"
	FieldCourse   Field = "course"
	FieldSchool   Field = "school"
	FieldAbout    Field = "about"
	FieldLinkedIn Field = "linkedin"
	FieldGitHub   Field = "github"
	FieldSkills   Field = "skills"
)

// AliasTable maps each canonical field to the raw keys that may carry it,
// in priority order.
type AliasTable struct {
	Version int
	Aliases map[Field][]string
}

// DefaultAliases is the alias table for the portfolio Move struct and the
// payload shapes the client library has been seen to return.
var DefaultAliases = AliasTable{
	Version: 1,
	Aliases: map[Field][]string{
		FieldName:     {"name", "full_name", "fullName", "Name"},
		FieldCourse:   {"course", "degree", "Course"},
		FieldSchool:   {"school", "university", "School"},
		FieldAbout:    {"about", "bio", "About"},
		FieldLinkedIn: {"linkedin_url", "linkedin", "linkedinUrl", "LinkedIn"},
		FieldGitHub:   {"github_url", "github", "githubUrl", "GitHub"},
		FieldSkills:   {"skills", "Skills"},
	},
}

// Normalize rebuilds a record from a raw key/value mapping using the default
// alias table. Fields with no alias match keep their value from prior.
func Normalize(raw map[string]any, prior Record) Record {
	return DefaultAliases.Normalize(raw, prior)
}

// Normalize never fails: absent or null keys leave the prior value in place,
// and a skills value that is not a sequence falls back to the default skills.
func (t AliasTable) Normalize(raw map[string]any, prior Record) Record {
	out := prior.Clone()
	if len(raw) == 0 {
		return out
	}
	if v, ok := t.lookupString(raw, FieldName); ok {
		out.Name = v
	}
	if v, ok := t.lookupString(raw, FieldCourse); ok {
		out.Course = v
	}
	if v, ok := t.lookupString(raw, FieldSchool); ok {
		out.School = v
	}
	if v, ok := t.lookupString(raw, FieldAbout); ok {
		out.About = v
	}
	if v, ok := t.lookupString(raw, FieldLinkedIn); ok {
		out.LinkedInURL = v
	}
	if v, ok := t.lookupString(raw, FieldGitHub); ok {
		out.GitHubURL = v
	}
	if v, ok := t.lookup(raw, FieldSkills); ok {
		if skills, isSeq := toStrings(v); isSeq {
			out.Skills = skills
		} else {
			out.Skills = DefaultSkills()
		}
	}
	return out
}

// HasAny reports whether raw carries at least one aliased field.
func (t AliasTable) HasAny(raw map[string]any) bool {
	for field := range t.Aliases {
		if _, ok := t.lookup(raw, field); ok {
			return true
		}
	}
	return false
}

func (t AliasTable) lookup(raw map[string]any, field Field) (any, bool) {
	for _, key := range t.Aliases[field] {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (t AliasTable) lookupString(raw map[string]any, field Field) (string, bool) {
	v, ok := t.lookup(raw, field)
	if !ok {
		return "", false
	}
	return toString(v), true
}

func toString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	case fmt.Stringer:
		return value.String()
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func toStrings(v any) ([]string, bool) {
	switch value := v.(type) {
	case []string:
		out := make([]string, len(value))
		copy(out, value)
		return out, true
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if item == nil {
				out = append(out, "")
				continue
			}
			out = append(out, toString(item))
		}
		return out, true
	default:
		return nil, false
	}
}
