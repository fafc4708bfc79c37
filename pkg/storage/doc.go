// Package storage writes fetched documents to their destination.
//
// The destination is a gocloud blob bucket. Local directories are opened with
// fileblob, writing through a temporary file in the same directory so a
// document only appears once it is complete. Tests use mem:// buckets.
package storage
