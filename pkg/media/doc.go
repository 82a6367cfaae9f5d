// Package media turns stored feed records into files on disk.
//
// The processor scans records not yet flagged processed, downloads their
// photo or video, names the file from the event timestamp plus the CDN
// file id, and writes capture metadata with exiftool. Records whose media
// fails stay unprocessed and are retried on the next run; records with no
// media are flagged processed so they never block the queue.
package media
