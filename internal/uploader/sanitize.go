package uploader

import (
	"path"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[\x00-\x1f\\/:*?"<>|]`)

// SanitizeFileName strips path components and characters that are unsafe in
// object keys, so a client-supplied name can never escape its prefix.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "-")

	for strings.HasPrefix(name, ".") || strings.HasPrefix(name, "-") {
		name = name[1:]
	}
	if name == "" {
		name = "untitled"
	}
	return name
}
