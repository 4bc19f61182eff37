package plugin

import (
	"context"
	"testing"

	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct {
	id      string
	initErr error
	events  *[]string
	api     API
}

func (p *testPlugin) ID() string      { return p.id }
func (p *testPlugin) Name() string    { return "Plugin " + p.id }
func (p *testPlugin) Version() string { return "1.0" }

func (p *testPlugin) Init(_ context.Context, api API) error {
	*p.events = append(*p.events, "init "+p.id)
	p.api = api
	return p.initErr
}

func (p *testPlugin) Close() error {
	*p.events = append(*p.events, "close "+p.id)
	return nil
}

func testRegistry() *Registry {
	log := logging.Nop()
	return NewRegistry(hooks.NewManager(log), nil, log)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	var events []string
	reg := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "a", events: &events}))

	err := reg.Register(&testPlugin{id: "a", events: &events})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_Lifecycle(t *testing.T) {
	var events []string
	reg := testRegistry()
	a := &testPlugin{id: "a", events: &events}
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(&testPlugin{id: "b", events: &events}))

	require.NoError(t, reg.InitAll(context.Background()))
	require.NotNil(t, a.api.Hooks)
	require.NotNil(t, a.api.Log)

	reg.CloseAll()
	assert.Equal(t, []string{"init a", "init b", "close b", "close a"}, events)

	reg.CloseAll()
	assert.Len(t, events, 4, "plugins are closed once")
}

func TestRegistry_InitFailureClosesEarlierPlugins(t *testing.T) {
	var events []string
	reg := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "a", events: &events}))
	require.NoError(t, reg.Register(&testPlugin{id: "bad", initErr: assert.AnError, events: &events}))
	require.NoError(t, reg.Register(&testPlugin{id: "c", events: &events}))

	err := reg.InitAll(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"init a", "init bad", "close a"}, events)
}

func TestRegistry_List(t *testing.T) {
	var events []string
	reg := testRegistry()
	reg.Register(&testPlugin{id: "x", events: &events})
	reg.Register(&testPlugin{id: "y", events: &events})

	assert.Equal(t, []Info{
		{ID: "x", Name: "Plugin x", Version: "1.0"},
		{ID: "y", Name: "Plugin y", Version: "1.0"},
	}, reg.List())
}
