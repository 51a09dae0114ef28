package fuse

import (
	"context"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/tangofs/tangofs/internal/cache"
	"github.com/tangofs/tangofs/internal/namespace"
	"github.com/tangofs/tangofs/internal/resolve"
	"github.com/tangofs/tangofs/internal/tango"
	"github.com/tangofs/tangofs/pkg/errors"
)

func newTestFS(t *testing.T) (*FileSystem, *tango.FakeClient) {
	t.Helper()

	client := tango.NewFakeClient()
	dev := client.AddDevice("TangoTest", "1", "TangoTest", "sys/tg_test/1")
	dev.Properties["someProperty"] = []string{"abc"}

	tree := namespace.NewTree(client, cache.New(10*time.Second))
	resolver := resolve.NewResolver(tree, nil)
	return NewFileSystem(resolver, tree, &Config{MountPoint: "/mnt/test"}, nil), client
}

func propCoord(name string) resolve.Coordinate {
	return resolve.Coordinate{
		Kind: resolve.KindProperty,
		Domain: "sys", Family: "tg_test", Member: "1",
		Name: name,
	}
}

func TestHandleReadWindow(t *testing.T) {
	h := &handle{data: []byte("hello\n")}

	buf := make([]byte, 4)
	res, errno := h.Read(context.Background(), buf, 0)
	if errno != 0 {
		t.Fatalf("Read: errno %v", errno)
	}
	got, _ := res.Bytes(buf)
	if string(got) != "hell" {
		t.Errorf("Read(0) = %q, want %q", got, "hell")
	}

	res, _ = h.Read(context.Background(), buf, 4)
	got, _ = res.Bytes(buf)
	if string(got) != "o\n" {
		t.Errorf("Read(4) = %q, want %q", got, "o\n")
	}

	res, _ = h.Read(context.Background(), buf, 100)
	got, _ = res.Bytes(buf)
	if len(got) != 0 {
		t.Errorf("Read past end = %q, want empty", got)
	}
}

func TestHandleWriteFlush(t *testing.T) {
	fsys, client := newTestFS(t)
	h := &handle{ofs: fsys, coord: propCoord("someProperty"), dirty: true}

	if _, errno := h.Write(context.Background(), []byte("one\ntwo\n"), 0); errno != 0 {
		t.Fatalf("Write: errno %v", errno)
	}
	if errno := h.Flush(context.Background()); errno != 0 {
		t.Fatalf("Flush: errno %v", errno)
	}

	lines := client.Devs["sys/tg_test/1"].Properties["someProperty"]
	if strings.Join(lines, "|") != "one|two" {
		t.Errorf("remote property = %v, want [one two]", lines)
	}

	// A clean handle must not rewrite on release.
	writes := client.CallCount("SetProperty")
	if errno := h.Release(context.Background()); errno != 0 {
		t.Fatalf("Release: errno %v", errno)
	}
	if n := client.CallCount("SetProperty"); n != writes {
		t.Errorf("Release rewrote: SetProperty calls %d, want %d", n, writes)
	}
}

func TestHandleWriteNonPropertyRejected(t *testing.T) {
	fsys, _ := newTestFS(t)

	coord := propCoord("x")
	coord.Kind = resolve.KindAttributeField
	coord.Name = "A"
	coord.Field = "value"
	h := &handle{ofs: fsys, coord: coord}

	if _, errno := h.Write(context.Background(), []byte("1"), 0); errno != syscall.EPERM {
		t.Errorf("attribute write errno = %v, want EPERM", errno)
	}
}

func TestHandleTruncate(t *testing.T) {
	h := &handle{data: []byte("abcdef")}
	h.truncate(3)
	if string(h.data) != "abc" || !h.dirty {
		t.Errorf("after truncate: data=%q dirty=%v", h.data, h.dirty)
	}
	h.truncate(5)
	if string(h.data) != "abc\x00\x00" {
		t.Errorf("after grow: data=%q", h.data)
	}
}

func TestEncodeSegment(t *testing.T) {
	if got := encodeSegment("sys/tg_test/1"); got != "sys%tg_test%1" {
		t.Errorf("encodeSegment = %q", got)
	}
	if got := encodeSegment("plain"); got != "plain" {
		t.Errorf("encodeSegment = %q", got)
	}
}

func TestErrnoTranslation(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{errors.E(errors.KindNotFound, "x"), syscall.ENOENT},
		{errors.E(errors.KindUnsupported, "x"), syscall.EPERM},
		{errors.E(errors.KindRemoteUnavailable, "x"), syscall.EIO},
	}
	for _, tc := range cases {
		if got := errno(tc.err); got != tc.want {
			t.Errorf("errno(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
