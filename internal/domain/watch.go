package domain

import "strings"

// Role tags a watched directory by what the engine writes into it.
type Role string

const (
	RoleInput  Role = "input"
	RoleOutput Role = "output"
)

// WatchedRoot pairs a monitored engine directory with the public directory its
// images are replicated into and the URL prefix they are served under.
type WatchedRoot struct {
	Role        Role
	Dir         string
	Destination string
	Prefix      string
}

// PublicPath returns the client-facing path of a replicated file.
func (w WatchedRoot) PublicPath(name string) string {
	prefix := w.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}

// FileEvent is a single create event observed in a watched directory.
type FileEvent struct {
	Path  string
	IsDir bool
}

// Notification announces a replicated image to push subscribers.
type Notification struct {
	ImagePath string `json:"image_path"`
}

// imageExtensions lists the lower-case extensions treated as images.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".bmp":  {},
	".gif":  {},
}

// IsImageExt reports whether ext (with leading dot, any case) is a recognized
// image extension.
func IsImageExt(ext string) bool {
	_, ok := imageExtensions[strings.ToLower(ext)]
	return ok
}
