// Package content imports curriculum and cases from YAML bundles.
package content

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/kiongozi/core/simulation"
)

type (
	Bundle struct {
		Programs []ProgramNode `yaml:"programs" validate:"dive"`
		Cases    []CaseNode    `yaml:"cases" validate:"dive"`
	}

	ProgramNode struct {
		Slug     string       `yaml:"slug" validate:"required,slug"`
		Title    string       `yaml:"title" validate:"notblank"`
		Summary  string       `yaml:"summary"`
		Level    string       `yaml:"level" validate:"required,oneof=foundation advanced executive"`
		Premium  bool         `yaml:"premium"`
		Featured bool         `yaml:"featured"`
		Position int          `yaml:"position"`
		Modules  []ModuleNode `yaml:"modules" validate:"dive"`
	}

	ModuleNode struct {
		Slug    string       `yaml:"slug" validate:"required,slug"`
		Title   string       `yaml:"title" validate:"notblank"`
		Lessons []LessonNode `yaml:"lessons" validate:"dive"`
	}

	LessonNode struct {
		Slug     string `yaml:"slug" validate:"required,slug"`
		Title    string `yaml:"title" validate:"notblank"`
		Kind     string `yaml:"kind" validate:"required,oneof=reading video case"`
		Body     string `yaml:"body"`
		VideoURL string `yaml:"video_url" validate:"omitempty,url"`
		Minutes  int    `yaml:"minutes" validate:"min=0"`
		Case     string `yaml:"case" validate:"omitempty,slug"`
	}

	CaseNode struct {
		Slug      string                     `yaml:"slug" validate:"required,slug"`
		Title     string                     `yaml:"title" validate:"notblank"`
		Brief     string                     `yaml:"brief" validate:"notblank"`
		Program   string                     `yaml:"program" validate:"omitempty,slug"`
		Metrics   []simulation.Metric        `yaml:"metrics" validate:"required,min=1,dive"`
		Decisions []simulation.DecisionPoint `yaml:"decisions" validate:"required,min=1,dive"`
	}
)

// Parse decodes a YAML bundle. Unknown fields are rejected.
func Parse(r io.Reader) (Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		if err == io.EOF {
			return Bundle{}, errors.New("empty bundle")
		}
		return Bundle{}, errors.Wrap(err, "decoding bundle")
	}
	return b, nil
}
