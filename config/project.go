package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/operations"
	"github.com/c360/netpublish/pipeline"
	"github.com/c360/netpublish/publish"
)

//go:embed schema/project.schema.json
var projectSchemaJSON []byte

var projectSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(projectSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("config: project schema: %v", err))
	}
	return s
}()

// Project lists the publish steps to place in the pipeline.
type Project struct {
	Steps []StepConfig `json:"steps" yaml:"steps" toml:"steps"`
}

// StepConfig is one publish step of a project.
//
//	operation: NTPublish Point
//	name: target
//	publish: {y: false}
//	value: {x: 3, y: 4}
type StepConfig struct {
	Operation string `json:"operation" yaml:"operation" toml:"operation"`
	Name      string `json:"name" yaml:"name" toml:"name"`
	// Publish overrides the key toggles. Keys not listed stay enabled.
	Publish map[string]bool `json:"publish,omitempty" yaml:"publish,omitempty" toml:"publish,omitempty"`
	// Value, when set, is decoded into the step's data socket.
	Value any `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
}

// LoadProject reads, schema-checks and decodes the project at path.
func LoadProject(path string) (*Project, error) {
	data, format, err := readFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Project", "LoadProject", "read "+path)
	}
	return ParseProject(data, format)
}

// ParseProject schema-checks and decodes a project document.
func ParseProject(data []byte, format string) (*Project, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Project", "ParseProject", "parse project")
	}
	if err := validateProject(raw); err != nil {
		return nil, errors.WrapInvalid(err, "Project", "ParseProject", "validate project")
	}
	var p Project
	if err := decodeStruct(raw, &p); err != nil {
		return nil, errors.WrapInvalid(err, "Project", "ParseProject", "decode project")
	}
	return &p, nil
}

func validateProject(raw map[string]any) error {
	result, err := projectSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Apply creates every step of the project from catalog and adds it to p. Either
// all steps are added or none are.
func (proj *Project) Apply(catalog *operations.Catalog, p *pipeline.Pipeline) ([]*pipeline.Handle, error) {
	handles := make([]*pipeline.Handle, 0, len(proj.Steps))
	rollback := func() {
		for _, h := range handles {
			_ = p.RemoveStep(h.ID)
		}
	}

	for i, sc := range proj.Steps {
		step, err := catalog.Create(sc.Operation)
		if err != nil {
			rollback()
			return nil, errors.Wrap(err, "Project", "Apply", fmt.Sprintf("create step %d", i))
		}
		h := p.AddStep(step)
		handles = append(handles, h)
		if err := configure(h, sc); err != nil {
			rollback()
			return nil, errors.WrapInvalid(err, "Project", "Apply",
				fmt.Sprintf("configure step %d (%s)", i, sc.Operation))
		}
	}
	return handles, nil
}

func configure(h *pipeline.Handle, sc StepConfig) error {
	if err := setInput(h, publish.NameLabel, sc.Name); err != nil {
		return err
	}
	if sc.Value != nil {
		if err := setInput(h, publish.DataLabel, sc.Value); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(sc.Publish))
	for k := range sc.Publish {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := setInput(h, publish.ToggleLabel(k), sc.Publish[k]); err != nil {
			return err
		}
	}
	return nil
}

func setInput(h *pipeline.Handle, label string, v any) error {
	in, ok := h.Input(label)
	if !ok {
		return fmt.Errorf("%w: step %s has no input %q", errors.ErrInvalidConfig, h.Step.Name(), label)
	}
	if err := in.SetValue(v); err != nil {
		return fmt.Errorf("%w: input %q: %v", errors.ErrInvalidConfig, label, err)
	}
	return nil
}
