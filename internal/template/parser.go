// File: internal/template/parser.go
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/lablnet/stepwright/api/schemas"
)

// file is the on-disk shape: either a single template document or a list
// of templates under "templates".
type file struct {
	Tab          string                    `json:"tab" yaml:"tab"`
	InitSteps    []*schemas.Step           `json:"initSteps" yaml:"initSteps"`
	PerPageSteps []*schemas.Step           `json:"perPageSteps" yaml:"perPageSteps"`
	Steps        []*schemas.Step           `json:"steps" yaml:"steps"`
	Pagination   *schemas.PaginationConfig `json:"pagination" yaml:"pagination"`
	Templates    []*schemas.TabTemplate    `json:"templates" yaml:"templates"`
}

// Load reads one template file (YAML or JSON by extension) and returns the
// validated templates it contains.
func Load(path string) ([]*schemas.TabTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := jsoniter.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON template %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML template %s: %w", path, err)
		}
	}

	templates := f.Templates
	if len(templates) == 0 {
		templates = []*schemas.TabTemplate{{
			Tab:          f.Tab,
			InitSteps:    f.InitSteps,
			PerPageSteps: f.PerPageSteps,
			Steps:        f.Steps,
			Pagination:   f.Pagination,
		}}
	}

	for _, tmpl := range templates {
		if err := Validate(tmpl); err != nil {
			return nil, fmt.Errorf("template %q: %w", tmpl.Tab, err)
		}
	}
	return templates, nil
}

// Validate checks one template against the closed step model. All shape
// errors surface here, at load time, so the engine never re-validates
// during execution.
func Validate(tmpl *schemas.TabTemplate) error {
	if tmpl.Tab == "" {
		return fmt.Errorf("template requires a tab name")
	}
	if len(tmpl.Steps) == 0 && len(tmpl.PerPageSteps) == 0 && len(tmpl.InitSteps) == 0 {
		return fmt.Errorf("template has no steps")
	}
	if tmpl.Pagination != nil {
		if err := validatePagination(tmpl.Pagination); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{})
	for _, group := range [][]*schemas.Step{tmpl.InitSteps, tmpl.PerPageSteps, tmpl.Steps} {
		for _, step := range group {
			if err := validateStep(step, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePagination(p *schemas.PaginationConfig) error {
	switch p.Strategy {
	case schemas.PaginateNext:
		if p.NextButton == nil || p.NextButton.Object == "" {
			return fmt.Errorf("pagination strategy %q requires a nextButton selector", p.Strategy)
		}
	case schemas.PaginateScroll:
	default:
		return fmt.Errorf("unknown pagination strategy %q", p.Strategy)
	}
	if p.MaxPages < 0 {
		return fmt.Errorf("pagination maxPages must not be negative")
	}
	if p.PaginationFirst && p.PaginateAllFirst {
		return fmt.Errorf("paginationFirst and paginateAllFirst are mutually exclusive")
	}
	return nil
}

func validateStep(step *schemas.Step, seen map[string]struct{}) error {
	if step == nil {
		return fmt.Errorf("step must not be null")
	}
	if step.ID == "" {
		return fmt.Errorf("step requires an id")
	}
	if _, dup := seen[step.ID]; dup {
		return fmt.Errorf("duplicate step id %q", step.ID)
	}
	seen[step.ID] = struct{}{}

	if !step.Action.Valid() {
		return fmt.Errorf("step %q: unknown action %q", step.ID, step.Action)
	}
	if !step.ObjectType.Valid() {
		return fmt.Errorf("step %q: unknown selector type %q", step.ID, step.ObjectType)
	}
	if step.Action == schemas.ActionForEach || step.Action == schemas.ActionOpen {
		if len(step.SubSteps) == 0 {
			return fmt.Errorf("step %q: %s requires subSteps", step.ID, step.Action)
		}
		if step.Object == "" {
			return fmt.Errorf("step %q: %s requires a selector", step.ID, step.Action)
		}
	}
	if step.Retry < 0 {
		return fmt.Errorf("step %q: retry must not be negative", step.ID)
	}
	if step.Regex != "" {
		if _, err := regexp.Compile(step.Regex); err != nil {
			return fmt.Errorf("step %q: invalid regex: %w", step.ID, err)
		}
	}
	for _, sub := range step.SubSteps {
		if err := validateStep(sub, seen); err != nil {
			return err
		}
	}
	return nil
}
