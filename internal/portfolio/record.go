// Package portfolio defines the canonical portfolio record and the helpers
// that validate it and rebuild it from loosely shaped remote payloads.
package portfolio

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SkillCount is the exact number of skills a saved record carries.
const SkillCount = 5

// Record is the canonical portfolio entity.
type Record struct {
	Name        string   `json:"name" yaml:"name"`
	Course      string   `json:"course" yaml:"course"`
	School      string   `json:"school" yaml:"school"`
	About       string   `json:"about" yaml:"about"`
	LinkedInURL string   `json:"linkedin" yaml:"linkedin"`
	GitHubURL   string   `json:"github" yaml:"github"`
	Skills      []string `json:"skills" yaml:"skills"`
}

var defaultSkills = []string{
	"Graphic Design",
	"UI / UX Design",
	"Project Management",
	"Full Stack Development",
	"Web & App Development",
}

// Default returns the hardcoded record shown before any cached or remote
// data is known.
func Default() Record {
	return Record{
		Name:        "LADY DIANE BAUZON CASILANG",
		Course:      "BS in Information Technology",
		School:      "FEU Institute of Technology",
		About:       "I am a fourth-year IT student and freelance designer who integrates technical troubleshooting with creative insight to deliver innovative, efficient solutions.",
		LinkedInURL: "https://www.linkedin.com/in/ldcasilang/",
		GitHubURL:   "https://github.com/ldcasilang",
		Skills:      DefaultSkills(),
	}
}

// DefaultSkills returns a fresh copy of the default skill list.
func DefaultSkills() []string {
	return slices.Clone(defaultSkills)
}

// Clone returns a deep copy so callers never share the skills slice.
func (r Record) Clone() Record {
	r.Skills = slices.Clone(r.Skills)
	return r
}

// Equal reports whether two records carry the same values.
func (r Record) Equal(other Record) bool {
	return r.Name == other.Name &&
		r.Course == other.Course &&
		r.School == other.School &&
		r.About == other.About &&
		r.LinkedInURL == other.LinkedInURL &&
		r.GitHubURL == other.GitHubURL &&
		slices.Equal(r.Skills, other.Skills)
}

// ValidationError lists every problem found in a record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ""
	}
	return strings.Join(e.Problems, "; ")
}

// ErrInvalidRecord is matched by errors.Is for any *ValidationError.
var ErrInvalidRecord = errors.New("invalid portfolio record")

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// Validate checks the invariants a record must hold before it is saved:
// non-blank name, course, school and about, and exactly five non-blank skills.
func (r Record) Validate() error {
	var problems []string
	required := []struct {
		field string
		value string
	}{
		{"name", r.Name},
		{"course", r.Course},
		{"school", r.School},
		{"about", r.About},
	}
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			problems = append(problems, item.field+" is required")
		}
	}
	if len(r.Skills) != SkillCount {
		problems = append(problems, fmt.Sprintf("exactly %d skills are required, got %d", SkillCount, len(r.Skills)))
	} else {
		for i, skill := range r.Skills {
			if strings.TrimSpace(skill) == "" {
				problems = append(problems, fmt.Sprintf("skill %d is empty", i+1))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Patch is a partial form edit. Nil fields are left untouched.
type Patch struct {
	Name        *string   `json:"name,omitempty" yaml:"name,omitempty"`
	Course      *string   `json:"course,omitempty" yaml:"course,omitempty"`
	School      *string   `json:"school,omitempty" yaml:"school,omitempty"`
	About       *string   `json:"about,omitempty" yaml:"about,omitempty"`
	LinkedInURL *string   `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	GitHubURL   *string   `json:"github,omitempty" yaml:"github,omitempty"`
	Skills      *[]string `json:"skills,omitempty" yaml:"skills,omitempty"`
}

// Apply returns a copy of r with the patch fields written over it.
func (p Patch) Apply(r Record) Record {
	out := r.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Course != nil {
		out.Course = *p.Course
	}
	if p.School != nil {
		out.School = *p.School
	}
	if p.About != nil {
		out.About = *p.About
	}
	if p.LinkedInURL != nil {
		out.LinkedInURL = *p.LinkedInURL
	}
	if p.GitHubURL != nil {
		out.GitHubURL = *p.GitHubURL
	}
	if p.Skills != nil {
		out.Skills = slices.Clone(*p.Skills)
	}
	return out
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Course == nil && p.School == nil && p.About == nil &&
		p.LinkedInURL == nil && p.GitHubURL == nil && p.Skills == nil
}
