package namespace

import (
	"context"
	"testing"

	"github.com/tangofs/tangofs/internal/resolve"
	"github.com/tangofs/tangofs/pkg/errors"
)

// TestEndToEndResolution walks the full stack: paths through the
// resolver, content through the tree, remote state behind the fake
// client, every lookup spelled in the wrong case on purpose.
func TestEndToEndResolution(t *testing.T) {
	tree, _, _ := newTestTree(t)
	resolver := resolve.NewResolver(tree, nil)
	ctx := context.Background()

	coord, err := resolver.Resolve(ctx,
		"/servers/tangotest/1/TANGOTEST/SYS%tg_test%1/properties/someproperty")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if coord.Kind != resolve.KindProperty || coord.Name != "someProperty" {
		t.Fatalf("coord = %v, canonical name %q", coord, coord.Name)
	}

	content, err := tree.ReadFile(ctx, coord)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "abc\n" {
		t.Errorf("content = %q, want %q", content, "abc\n")
	}

	// The same property through the logical view is the same
	// coordinate, so both paths share one cache entry.
	logical, err := resolver.Resolve(ctx, "/devices/sys/tg_test/1/properties/someProperty")
	if err != nil {
		t.Fatalf("Resolve logical view: %v", err)
	}
	if !logical.Equal(coord) {
		t.Errorf("views diverge: %v vs %v", logical, coord)
	}

	// Attribute value through the expert dotfile spelling.
	val, err := resolver.Resolve(ctx, "/devices/sys/tg_test/1/attributes/.hidden/value")
	if err != nil {
		t.Fatalf("Resolve dotted attribute: %v", err)
	}
	if val.Name != "Hidden" {
		t.Errorf("attribute canonical name = %q, want Hidden", val.Name)
	}

	// Unknown segments fail with not-found, not a transport error.
	if _, err := resolver.Resolve(ctx, "/servers/tangotest/1/TangoTest/nope"); !errors.NotFound(err) {
		t.Errorf("unknown device: err = %v, want not-found", err)
	}
}

func TestEndToEndCommandValue(t *testing.T) {
	tree, _, _ := newTestTree(t)
	resolver := resolve.NewResolver(tree, nil)
	ctx := context.Background()

	coord, err := resolver.Resolve(ctx, "/devices/sys/tg_test/1/attributes/a/value")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	content, err := tree.ReadFile(ctx, coord)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "45.6\n" {
		t.Errorf("attribute value = %q, want %q", content, "45.6\n")
	}

	cmd, err := resolver.Resolve(ctx, "/devices/sys/tg_test/1/commands/status")
	if err != nil {
		t.Fatalf("Resolve command: %v", err)
	}
	out, err := tree.Invoke(ctx, cmd)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "The device is in ON state." {
		t.Errorf("command output = %q", out)
	}
}
