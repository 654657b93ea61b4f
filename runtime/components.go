package runtime

import (
	"fmt"
	"regexp"
)

var stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Flow is an ordered list of steps executed against one isolated Context Store.
// A Flow is never mutated once loaded.
type Flow struct {
	ID            string                    `yaml:"id"`
	Description   string                    `yaml:"description"`
	TestData      map[string]any            `yaml:"test_data"`
	TestDataFiles []FragmentSource          `yaml:"test_data_files"`
	Fragments     map[string]map[string]any `yaml:"fragments"`
	Steps         []Step                    `yaml:"steps"`

	// BaseDir is the directory file fragments are resolved against.
	BaseDir string `yaml:"-"`
}

type Step struct {
	ID               string            `yaml:"step_id"`
	Description      string            `yaml:"description"`
	Function         string            `yaml:"function"`
	Condition        string            `yaml:"condition"`
	Parameters       []FragmentSource  `yaml:"parameters"`
	SaveFromRequest  map[string]string `yaml:"save_from_request"`
	SaveFromResponse map[string]string `yaml:"save_from_response"`
}

type FragmentKind string

const (
	FragmentFile   FragmentKind = "file"
	FragmentInline FragmentKind = "inline"
	FragmentRef    FragmentKind = "ref"
)

// FragmentSource names exactly one parameter fragment: a file on disk,
// an inline mapping, or a reference into the flow's fragment library.
type FragmentSource struct {
	File   string         `yaml:"file"`
	Inline map[string]any `yaml:"inline"`
	Ref    string         `yaml:"ref"`
}

func (s FragmentSource) Kind() FragmentKind {
	switch {
	case s.File != "":
		return FragmentFile
	case s.Ref != "":
		return FragmentRef
	default:
		return FragmentInline
	}
}

func (s FragmentSource) String() string {
	switch s.Kind() {
	case FragmentFile:
		return "file:" + s.File
	case FragmentRef:
		return "ref:" + s.Ref
	default:
		return "inline"
	}
}

func (s FragmentSource) validate(fragments map[string]map[string]any) error {
	set := 0
	if s.File != "" {
		set++
	}
	if s.Ref != "" {
		set++
	}
	if s.Inline != nil {
		set++
	}
	if set != 1 {
		return ErrAmbiguousFragment
	}
	if s.Ref != "" {
		if _, ok := fragments[s.Ref]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFragment, s.Ref)
		}
	}
	return nil
}

// Validate checks the structural rules a flow must satisfy before it can run.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return ErrEmptyFlowID
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("flow %s: %w", f.ID, ErrNoSteps)
	}

	for i, src := range f.TestDataFiles {
		if err := src.validate(f.Fragments); err != nil {
			return fmt.Errorf("flow %s: test_data_files[%d]: %w", f.ID, i, err)
		}
	}

	seen := make(map[string]struct{}, len(f.Steps))
	for i, s := range f.Steps {
		if s.ID == "" {
			return fmt.Errorf("flow %s: step #%d: %w", f.ID, i, ErrEmptyStepID)
		}
		if !stepIDPattern.MatchString(s.ID) {
			return fmt.Errorf("flow %s: step %q: %w", f.ID, s.ID, ErrInvalidStepID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("flow %s: %w: %s", f.ID, ErrDuplicateStepID, s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.Function == "" {
			return fmt.Errorf("flow %s: step %s: %w", f.ID, s.ID, ErrEmptyFunction)
		}
		for j, src := range s.Parameters {
			if err := src.validate(f.Fragments); err != nil {
				return fmt.Errorf("flow %s: step %s: parameters[%d]: %w", f.ID, s.ID, j, err)
			}
		}
	}
	return nil
}
