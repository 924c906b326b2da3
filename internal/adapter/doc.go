/*
Package adapter implements the filesystem operations hosts call.

# Overview

An Adapter serves one mode. In object storage mode the root lists buckets and
keys below a bucket form a directory tree through delimiter listings. In
catalog mode the tree has exactly three levels: table buckets, namespaces and
tables. Tables appear as files named "<table>.s3table" whose content is a JSON
description of the table.

	┌──────────────┐
	│   Adapter    │  List Stat Read Write Delete CreateDirectory ComputeSize
	└──────┬───────┘
	       │ connection.Resolver (defaults or @conn profile)
	   ┌───┴──────────────┬────────────────────┐
	┌──▼──────────┐ ┌─────▼────────┐ ┌─────────▼──────┐
	│ storage/s3  │ │storage/tables│ │ sizewalk       │
	│ RegionCache │ │IdentityCache │ │ (object mode)  │
	└─────────────┘ └──────────────┘ └────────────────┘

# Paths

Paths are normalized first, so "\bucket\key", "//bucket/key" and
"/bucket//key" all name the same object. A path may start with a connection
reference, "/@conn:name/..." or "//@conn/name/...", which selects a stored
connection profile instead of the configured defaults.

# Reads and writes

Read stages the whole object in a scratch file and returns a seekable reader;
closing it deletes the file. Write returns a handle immediately and talks to
the backend only in Commit, which refuses to replace an existing file or a
directory of the same name unless overwrite was requested.

# Usage

	a, err := adapter.New(cfg, types.ModeObjectStorage, profiles, collector, logger)
	if err != nil {
		return err
	}
	buf, err := a.List(ctx, "/my-bucket/logs/")
	if err != nil {
		return err
	}
	for i := 0; i < buf.GetCount(); i++ {
		entry, _ := buf.Get(i)
		fmt.Println(entry.Name)
	}

Every error returned is a *errors.VFSError.
*/
package adapter
