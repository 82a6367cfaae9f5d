// Package exif writes capture timestamps and GPS coordinates into media
// files by invoking the exiftool binary.
package exif
