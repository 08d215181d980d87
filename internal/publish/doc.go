// Package publish moves validated artifacts into their destination
// directory atomically.
//
// Publication uses the write-temp-then-rename pattern: bytes are staged in
// a temporary file on the same filesystem as the destination, synced, and
// promoted with a single rename, so a reader of the destination never
// observes a partially written file under the final name. A directory
// guard refuses filesystem roots and home directories; the companion
// [Clean] helper relies on that guard when deleting stale artifacts by
// glob.
package publish
