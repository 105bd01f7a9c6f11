// Package checkpoint records which tasks of a batch have finished so an
// interrupted batch can be resumed without re-crawling completed galleries.
//
// A checkpoint is a JSON file under the user data directory
// (XDG_DATA_HOME/galleryzip/checkpoints on Linux), keyed by a hash of the
// batch's task URLs. Writes are atomic.
package checkpoint
