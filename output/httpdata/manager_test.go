package httpdata

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/netpublish/metric"
	"github.com/c360/netpublish/publish"
	"github.com/c360/netpublish/publishable"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewDataHandler(nil), nil, metric.NewMetricsRegistry())
}

func TestManager_NumberStep(t *testing.T) {
	m := newManager(t)
	step, err := publish.NewStep(m, publishable.FromNumber)
	require.NoError(t, err)
	defer step.CleanUp()
	assert.Equal(t, "HTTPPublish publishable.NumberPublishable", step.Name())

	step.PublishName().Set("foo")
	step.Data().Set(1.0)
	require.NoError(t, step.Perform(context.Background()))

	assert.Equal(t, "{\n  \"foo\": 1\n}", get(t, m.Handler(), DataPath).Body.String())
	assert.Equal(t, "{}", get(t, m.Handler(), DataPath+"?no_data_here").Body.String())
}

func TestManager_PointStep(t *testing.T) {
	m := newManager(t)
	step, err := publish.NewStep(m, publishable.FromPoint)
	require.NoError(t, err)
	defer step.CleanUp()

	step.PublishName().Set("target")
	step.Data().Set(image.Point{X: 3, Y: 4})
	require.NoError(t, step.Perform(context.Background()))
	assert.JSONEq(t, `{"target": {"x": 3, "y": 4}}`, get(t, m.Handler(), DataPath).Body.String())

	toggle, ok := step.Toggle("y")
	require.True(t, ok)
	toggle.Set(false)
	require.NoError(t, step.Perform(context.Background()))
	assert.JSONEq(t, `{"target": {"x": 3}}`, get(t, m.Handler(), DataPath).Body.String())
}

func TestManager_RenameMovesSupplier(t *testing.T) {
	m := newManager(t)
	pub, err := m.CreatePublisher("publishable.NumberPublishable", nil)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.SetName("a"))
	assert.Empty(t, m.Handler().Names(), "nothing is served before the first publish")

	require.NoError(t, pub.Publish(map[string]publish.Value{"": 2.0}))
	assert.JSONEq(t, `{"a": 2}`, get(t, m.Handler(), DataPath).Body.String())

	require.NoError(t, pub.SetName("b"))
	assert.JSONEq(t, `{"b": 2}`, get(t, m.Handler(), DataPath).Body.String())
}

func TestManager_NothingAndClose(t *testing.T) {
	m := newManager(t)
	pub, err := m.CreatePublisher("publishable.Vector2D", publish.NewKeys("x", "y"))
	require.NoError(t, err)

	require.NoError(t, pub.SetName("v"))
	require.NoError(t, pub.Publish(map[string]publish.Value{"x": 1.0, "y": 2.0}))
	assert.Equal(t, []string{"v"}, m.Handler().Names())

	require.NoError(t, pub.Publish(map[string]publish.Value{}))
	assert.Empty(t, m.Handler().Names())

	require.NoError(t, pub.Publish(map[string]publish.Value{"x": 5.0}))
	assert.JSONEq(t, `{"v": {"x": 5}}`, get(t, m.Handler(), DataPath).Body.String())

	pub.Close()
	pub.Close()
	assert.Empty(t, m.Handler().Names())
}

func TestManager_SupplierReturnsCopy(t *testing.T) {
	m := newManager(t)
	pub, err := m.CreatePublisher("publishable.Vector2D", publish.NewKeys("x", "y"))
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.SetName("v"))
	require.NoError(t, pub.Publish(map[string]publish.Value{"x": 1.0}))

	snap := m.Handler().Snapshot(nil)
	values, ok := snap["v"].(map[string]any)
	require.True(t, ok)
	values["x"] = 99.0

	assert.JSONEq(t, `{"v": {"x": 1}}`, get(t, m.Handler(), DataPath).Body.String())
}

func TestNewFactory(t *testing.T) {
	registry := publish.NewManagerRegistry()
	handler := NewDataHandler(nil)
	require.NoError(t, registry.Register(Protocol.ID, NewFactory(handler)))

	mgr, err := registry.Manager(Protocol.ID, publish.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, Protocol, mgr.Protocol())
	assert.Same(t, handler, mgr.(*Manager).Handler())
}

func TestManager_SharedNameSurvivesOtherClose(t *testing.T) {
	m := newManager(t)
	a, err := m.CreatePublisher("publishable.NumberPublishable", nil)
	require.NoError(t, err)
	b, err := m.CreatePublisher("publishable.NumberPublishable", nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.SetName("shared"))
	require.NoError(t, b.SetName("shared"))
	require.NoError(t, a.Publish(map[string]publish.Value{"": 1.0}))
	require.NoError(t, b.Publish(map[string]publish.Value{"": 2.0}))
	assert.JSONEq(t, `{"shared": 2}`, get(t, m.Handler(), DataPath).Body.String())

	a.Close()
	assert.JSONEq(t, `{"shared": 2}`, get(t, m.Handler(), DataPath).Body.String(),
		"closing a publisher leaves a supplier it no longer holds")

	c, err := m.CreatePublisher("publishable.NumberPublishable", nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetName("shared"))
	require.NoError(t, c.Publish(map[string]publish.Value{"": 3.0}))
	require.NoError(t, b.SetName("moved"))
	assert.JSONEq(t, `{"shared": 3, "moved": 2}`, get(t, m.Handler(), DataPath).Body.String(),
		"renaming away does not drop the new holder of the old name")

	require.NoError(t, b.Publish(map[string]publish.Value{"": 4.0}))
	require.NoError(t, c.Publish(map[string]publish.Value{"": 5.0}))
	c.Close()
	assert.JSONEq(t, `{"moved": 4}`, get(t, m.Handler(), DataPath).Body.String())
}
