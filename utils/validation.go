package utils

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._\s-]`)

// SanitizeFilename cleans filename for safe storage by removing dangerous characters
// and limiting length. It trims spaces and dots, removes parent directory references,
// and filters out non-alphanumeric characters except for safe punctuation.
// Names that lose every character of their stem fall back to "dataset".
func SanitizeFilename(filename string) string {
	sanitized := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	sanitized = strings.Trim(sanitized, " .")
	sanitized = strings.ReplaceAll(sanitized, "..", "")
	sanitized = unsafeFilenameChars.ReplaceAllString(sanitized, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")

	ext := filepath.Ext(sanitized)
	stem := strings.Trim(strings.TrimSuffix(sanitized, ext), "._-")
	if stem == "" {
		stem = "dataset"
	}
	if len(stem)+len(ext) > 255 {
		stem = stem[:255-len(ext)]
	}
	return stem + ext
}

// IsCSVFile reports whether filename has a .csv extension.
func IsCSVFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".csv")
}

// VerifyFileExists checks if file exists at the given path and is not a directory.
// Returns true if the file exists and is a regular file, false otherwise.
func VerifyFileExists(workspaceDir, filename string) bool {
	safePath := filepath.Join(workspaceDir, filename)
	info, err := os.Stat(safePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsValidSessionID reports whether id is a UUID, the only form session
// cookies and workspace directories use.
func IsValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GenerateMessageID creates a unique message identifier using UUID v4.
func GenerateMessageID() string {
	return uuid.New().String()
}

// WorkspaceWebPath is the URL under which a workspace file is served.
func WorkspaceWebPath(sessionID, filename string) string {
	return path.Join("/workspaces", sessionID, filename)
}
