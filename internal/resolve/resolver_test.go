package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangofs/tangofs/internal/caseless"
	"github.com/tangofs/tangofs/pkg/errors"
)

// mapLister serves enumerations from a static tree and counts how often
// each directory was listed.
type mapLister struct {
	children map[string][]string
	calls    map[string]int
}

func newMapLister() *mapLister {
	servers := Coordinate{Kind: KindServersRoot}
	server := Coordinate{Kind: KindServer, Server: "TangoTest"}
	instance := Coordinate{Kind: KindInstance, Server: "TangoTest", Instance: "1"}
	class := Coordinate{Kind: KindClass, Server: "TangoTest", Instance: "1", Class: "TangoTest"}
	device := Coordinate{Kind: KindDevice, Domain: "sys", Family: "tg_test", Member: "1"}
	propDir := device
	propDir.Kind = KindPropertiesDir
	attrDir := device
	attrDir.Kind = KindAttributesDir
	attr := attrDir
	attr.Kind = KindAttribute
	attr.Name = "ampli"
	cmdDir := device
	cmdDir.Kind = KindCommandsDir

	return &mapLister{
		calls: map[string]int{},
		children: map[string][]string{
			servers.Key():  {"TangoTest", "Starter"},
			server.Key():   {"1"},
			instance.Key(): {"TangoTest"},
			class.Key():    {"sys/tg_test/1"},
			device.Key():   {"properties", "attributes", "commands"},
			propDir.Key():  {"someProperty"},
			attrDir.Key():  {"ampli", "wave"},
			attr.Key():     {"value", "unit", "writable"},
			cmdDir.Key():   {"SwitchStates"},

			Coordinate{Kind: KindDevicesRoot}.Key():                             {"sys", "dserver"},
			Coordinate{Kind: KindDomain, Domain: "sys"}.Key():                   {"tg_test"},
			Coordinate{Kind: KindFamily, Domain: "sys", Family: "tg_test"}.Key(): {"1"},
		},
	}
}

func (l *mapLister) Index(ctx context.Context, dir Coordinate) (caseless.Index, error) {
	l.calls[dir.Key()]++
	names, ok := l.children[dir.Key()]
	if !ok {
		return caseless.Index{}, errors.E(errors.KindNotFound, "enumerate", dir.String())
	}
	return caseless.Build(names), nil
}

func TestResolveServersTree(t *testing.T) {
	r := NewResolver(newMapLister(), nil)

	coord, err := r.Resolve(context.Background(), "servers/TangoTest/1/TangoTest/sys%tg_test%1/properties/someProperty")
	require.NoError(t, err)

	assert.Equal(t, KindProperty, coord.Kind)
	assert.Equal(t, "sys/tg_test/1", coord.Device())
	assert.Equal(t, "someProperty", coord.Name)
}

// Any case spelling of any segment must land on the same coordinate.
func TestResolveCaseInsensitive(t *testing.T) {
	r := NewResolver(newMapLister(), nil)

	a, err := r.Resolve(context.Background(), "SERVERS/tangotest/1/TangoTest/SYS%TG_TEST%1/PROPERTIES/SOMEPROPERTY")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "servers/TangoTest/1/tangotest/sys%tg_test%1/properties/someproperty")
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "case variants must resolve to the same coordinate")
	assert.Equal(t, a.Key(), b.Key())
	// Canonical case comes from the enumeration, not the query.
	assert.Equal(t, "someProperty", a.Name)
}

func TestResolveDepths(t *testing.T) {
	r := NewResolver(newMapLister(), nil)

	tests := []struct {
		path string
		kind Kind
	}{
		{"", KindRoot},
		{"/", KindRoot},
		{"servers", KindServersRoot},
		{"servers/TangoTest", KindServer},
		{"servers/TangoTest/1", KindInstance},
		{"servers/TangoTest/1/TangoTest", KindClass},
		{"servers/TangoTest/1/TangoTest/sys%tg_test%1", KindDevice},
		{"servers/TangoTest/1/TangoTest/sys%tg_test%1/attributes", KindAttributesDir},
		{"servers/TangoTest/1/TangoTest/sys%tg_test%1/attributes/ampli", KindAttribute},
		{"servers/TangoTest/1/TangoTest/sys%tg_test%1/attributes/ampli/value", KindAttributeField},
		{"servers/TangoTest/1/TangoTest/sys%tg_test%1/commands/SwitchStates", KindCommand},
		{"devices", KindDevicesRoot},
		{"devices/sys", KindDomain},
		{"devices/sys/tg_test", KindFamily},
		{"devices/sys/tg_test/1", KindDevice},
		{"devices/sys/tg_test/1/properties/someProperty", KindProperty},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			coord, err := r.Resolve(context.Background(), tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, coord.Kind, "kind for %s", tt.path)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver(newMapLister(), nil)

	paths := []string{
		"bogus",
		"servers/NoSuchServer",
		"servers/TangoTest/2",
		"servers/TangoTest/1/TangoTest/sys%tg_test%1/gadgets",
		"servers/TangoTest/1/TangoTest/sys%tg_test%1/properties/missing",
		"servers/TangoTest/1/TangoTest/sys%tg_test%1/properties/someProperty/below",
		"devices/sys/tg_test/1/attributes",
	}
	for _, path := range paths {
		_, err := r.Resolve(context.Background(), path)
		assert.True(t, errors.NotFound(err), "expected not found for %s, got %v", path, err)
	}
}

// The logical and physical views address the same device; the device
// coordinate must cache-key identically below device level.
func TestResolveViewsConverge(t *testing.T) {
	r := NewResolver(newMapLister(), nil)

	phys, err := r.Resolve(context.Background(), "servers/TangoTest/1/TangoTest/sys%tg_test%1/properties/someProperty")
	require.NoError(t, err)
	logi, err := r.Resolve(context.Background(), "devices/sys/tg_test/1/properties/someProperty")
	require.NoError(t, err)

	assert.True(t, phys.Equal(logi), "both views must yield one coordinate for the device's property")
	assert.Equal(t, "sys/tg_test/1", logi.Device())
}

func TestResolveCollision(t *testing.T) {
	l := newMapLister()
	l.children[Coordinate{Kind: KindServersRoot}.Key()] = []string{"TangoTest", "tangotest"}
	r := NewResolver(l, nil)

	_, err := r.Resolve(context.Background(), "servers/TangoTest")
	require.Error(t, err)
	assert.Equal(t, errors.KindNameCollision, errors.KindOf(err))
}

func TestResolverDoesNotCacheItself(t *testing.T) {
	l := newMapLister()
	r := NewResolver(l, nil)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "servers/TangoTest")
		require.NoError(t, err)
	}
	// One enumeration per resolution: memoization belongs to the lister,
	// not the resolver.
	assert.Equal(t, 3, l.calls[Coordinate{Kind: KindServersRoot}.Key()])
}
