/*
Package fuse exposes the control-system namespace as a mounted
filesystem.

Two kernel bindings are provided behind build constraints. The default
build uses github.com/hanwen/go-fuse/v2, the inode-based binding for
Linux and macOS. Building with -tags cgofuse selects the path-based
github.com/winfsp/cgofuse binding for hosts without a native FUSE
module, Windows included. Both translate the same way:

  - Lookup and Getattr resolve the path to a coordinate and stat it.
    Device names keep their slashes encoded as "%" in path segments.
  - Readdir materializes the directory through the namespace tree, so
    listings ride the TTL cache.
  - Open snapshots file content into the handle. Reads serve the
    snapshot; writes collect in the handle and reach the database on
    flush. Only property files accept writes.
  - Unlink deletes a property. Everything else is immutable through
    the mount.

Errors surface as errnos via pkg/errors: an unknown entity is ENOENT, a
rejected or unsupported operation is EPERM, transport failures are EIO.

CreatePlatformMountManager hides the binding choice; callers hold a
PlatformFileSystem and never see which binding was compiled in.
*/
package fuse
