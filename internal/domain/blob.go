package domain

import "time"

// PathSeparator delimits directory levels in storage keys.
const PathSeparator = "/"

// DirRef is an immediate child directory returned by a storage listing.
type DirRef struct {
	// Prefix is the full storage prefix including the trailing separator.
	Prefix string
	// Name is the last path segment as stored (still percent-encoded).
	Name string
}

// FileRef is an immediate child blob returned by a storage listing.
type FileRef struct {
	Key          string
	Name         string
	LastModified time.Time
}
