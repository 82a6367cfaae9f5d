// Package storage writes downloaded media to disk.
//
// Files are grouped into one subdirectory per student under a download
// root. Writes go through a temporary file with an atomic rename, and an
// in-memory index of existing files lets repeat runs skip media that is
// already on disk.
package storage
