/*
Package fuse mounts an adapter tree as a local filesystem using go-fuse.

	┌─────────────────────────────────────────────┐
	│              User Applications              │
	│            (ls, cat, cp, editors)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Kernel VFS / FUSE driver          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│   DirectoryNode / FileNode  (this package)  │
	└─────────────────────────────────────────────┘
	                      │ Operations
	┌─────────────────────────────────────────────┐
	│                  adapter                    │
	└─────────────────────────────────────────────┘

# Operation mapping

	Lookup   → Stat            Readdir → List
	Mkdir    → CreateDirectory Create  → Write
	Unlink   → Delete          Rmdir   → Delete "<dir>/"
	Open(ro) → Read            Flush   → WriteHandle.Commit

A read-only open downloads the object once into a scratch file and serves
reads from it until release. A writable open stages the file locally and
uploads it on the first flush; without O_TRUNC the existing content is copied
in first so partial writes keep the rest of the file.

Adapter errors become errnos through ToErrno. Rmdir reports a non-empty
directory as ENOTEMPTY.

# Usage

	filesystem := fuse.NewFileSystem(a, &fuse.Config{Root: "/my-bucket"}, logger)
	manager := fuse.NewMountManager(filesystem, &fuse.MountConfig{MountPoint: "/mnt/s3"}, logger)
	if err := manager.Mount(ctx); err != nil {
		return err
	}
	manager.Wait()
*/
package fuse
