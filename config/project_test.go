package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/errors"
	"github.com/c360/netpublish/operations"
	"github.com/c360/netpublish/pipeline"
	"github.com/c360/netpublish/publish"
	"github.com/c360/netpublish/publish/publishtest"
)

var tableProtocol = publish.Protocol{ID: "nt", Name: "NetworkTables", Acronym: "NT"}

const yamlProject = `
steps:
  - operation: NTPublish Point
    name: target
    value: {x: 3, y: 4}
    publish: {y: false}
  - operation: NTPublish Boolean
    name: found
    value: true
`

func TestParseProject_YAML(t *testing.T) {
	p, err := ParseProject([]byte(yamlProject), FormatYAML)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "NTPublish Point", p.Steps[0].Operation)
	assert.Equal(t, "target", p.Steps[0].Name)
	assert.Equal(t, map[string]bool{"y": false}, p.Steps[0].Publish)
	assert.Equal(t, true, p.Steps[1].Value)
}

func TestParseProject_TOML(t *testing.T) {
	doc := `
[[steps]]
operation = "NTPublish Number"
name = "speed"
value = 2.5
`
	p, err := ParseProject([]byte(doc), FormatTOML)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, 2.5, p.Steps[0].Value)
}

func TestParseProject_Schema(t *testing.T) {
	tests := map[string]string{
		"no steps":        `{}`,
		"missing name":    `{"steps": [{"operation": "NTPublish Point"}]}`,
		"empty name":      `{"steps": [{"operation": "NTPublish Point", "name": ""}]}`,
		"bad operation":   `{"steps": [{"operation": "publish point", "name": "a"}]}`,
		"unknown field":   `{"steps": [{"operation": "NTPublish Point", "name": "a", "rate": 3}]}`,
		"toggle not bool": `{"steps": [{"operation": "NTPublish Point", "name": "a", "publish": {"x": "yes"}}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProject([]byte(doc), FormatJSON)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoadProject(t *testing.T) {
	p, err := LoadProject(writeTemp(t, "project.yml", yamlProject))
	require.NoError(t, err)
	assert.Len(t, p.Steps, 2)
}

func newTableCatalog(t *testing.T) (*operations.Catalog, *publishtest.Manager) {
	t.Helper()
	m := publishtest.NewManagerFor(tableProtocol)
	c, err := operations.NewStandardCatalog(func(string) (publish.Manager, error) { return m, nil }, tableProtocol)
	require.NoError(t, err)
	return c, m
}

func TestProject_Apply(t *testing.T) {
	catalog, m := newTableCatalog(t)
	proj, err := ParseProject([]byte(yamlProject), FormatYAML)
	require.NoError(t, err)

	p := pipeline.New()
	defer p.Close()
	handles, err := proj.Apply(catalog, p)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Len(t, p.Steps(), 2)

	toggle, ok := handles[0].Input(publish.ToggleLabel("y"))
	require.True(t, ok)
	assert.Equal(t, false, toggle.Value())

	p.Tick(context.Background())
	for _, h := range handles {
		require.NoError(t, h.Witness.Err())
	}

	var point, found bool
	for _, rec := range m.Recorders() {
		if call, ok := rec.Last(publishtest.OpMap); ok && call.Name == "target" {
			point = true
			assert.Equal(t, map[string]publish.Value{"x": 3.0}, call.Values)
		}
		if call, ok := rec.Last(publishtest.OpValue); ok && call.Name == "found" {
			found = true
			assert.Equal(t, true, call.Value)
		}
	}
	assert.True(t, point, "point published")
	assert.True(t, found, "boolean published")
}

func TestProject_ApplyRollsBack(t *testing.T) {
	catalog, _ := newTableCatalog(t)
	p := pipeline.New()
	defer p.Close()

	proj := &Project{Steps: []StepConfig{
		{Operation: "NTPublish Point", Name: "ok"},
		{Operation: "NTPublish Point", Name: "bad", Publish: map[string]bool{"z": true}},
	}}
	_, err := proj.Apply(catalog, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Empty(t, p.Steps())

	proj = &Project{Steps: []StepConfig{{Operation: "NTPublish Mat", Name: "m"}}}
	_, err = proj.Apply(catalog, p)
	assert.ErrorIs(t, err, errors.ErrUnknownOperation)

	proj = &Project{Steps: []StepConfig{{Operation: "NTPublish Point", Name: "p", Value: "not a point"}}}
	_, err = proj.Apply(catalog, p)
	require.Error(t, err)
	assert.Empty(t, p.Steps())
}
