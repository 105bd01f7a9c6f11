// Package storage manages the per-task image cache.
//
// Downloaded images land in a cache directory before they are zipped. Writes
// go through a temporary file and a rename so a crashed run never leaves a
// truncated image behind, and a rerun with the cache kept skips images that
// are already present.
package storage
