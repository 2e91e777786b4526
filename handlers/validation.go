package handlers

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Validation constants
const (
	FolderNameMaxLength = 255
	FilenameMaxLength   = 255
)

// Regex patterns for validation
var (
	// E.164-style phone number: optional +, no leading zero, 2-15 digits total.
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	otpRegex   = regexp.MustCompile(`^\d{6}$`)
)

// Characters that are never allowed in folder or file names
const invalidNameChars = `/\:*?"<>|`

// Reserved names that collide with OS special files
var reservedNames = []string{
	".", "..", "CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// Allowed file extensions for uploads (whitelist approach)
var allowedExtensions = map[string]bool{
	// Documents
	".txt": true, ".md": true, ".pdf": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true, ".odt": true,
	".ods": true, ".odp": true, ".rtf": true, ".csv": true, ".json": true,
	".xml": true, ".html": true, ".htm": true,
	// Images
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".webp": true, ".svg": true, ".ico": true, ".tiff": true, ".tif": true,
	// Audio
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true, ".aac": true,
	".m4a": true,
	// Video
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true, ".wmv": true,
	".webm": true, ".m4v": true, ".mpeg": true, ".mpg": true,
	// Archives
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".bz2": true, ".xz": true,
	// Code
	".js": true, ".ts": true, ".py": true, ".go": true, ".java": true,
	".c": true, ".cpp": true, ".h": true, ".css": true, ".sql": true,
	".sh": true, ".yml": true, ".yaml": true, ".toml": true, ".ini": true,
	".conf": true, ".log": true,
}

// Dangerous MIME types that should be blocked on upload
var dangerousMimeTypes = map[string]bool{
	"application/x-executable":    true,
	"application/x-msdos-program": true,
	"application/x-msdownload":    true,
	"application/x-sh":            true,
	"application/x-shellscript":   true,
	"application/x-php":           true,
	"application/x-httpd-php":     true,
	"application/java-archive":    true,
	"application/x-dosexec":       true,
	"application/vnd.microsoft.portable-executable": true,
}

// ValidatePhoneNumber validates an E.164-style phone number
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone number format")
	}
	return nil
}

// ValidateOTPCode validates a one-time code (exactly 6 digits)
func ValidateOTPCode(code string) error {
	if !otpRegex.MatchString(code) {
		return fmt.Errorf("code must be exactly 6 digits")
	}
	return nil
}

// ValidateFolderName validates a folder name
func ValidateFolderName(name string) error {
	if name == "" {
		return fmt.Errorf("folder name is required")
	}
	if len(name) > FolderNameMaxLength {
		return fmt.Errorf("folder name must be at most %d characters", FolderNameMaxLength)
	}
	if strings.ContainsAny(name, invalidNameChars) {
		return fmt.Errorf("folder name contains invalid characters")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("folder name cannot be only whitespace")
	}
	upper := strings.ToUpper(name)
	for _, r := range reservedNames {
		if upper == r {
			return fmt.Errorf("folder name '%s' is reserved", name)
		}
	}
	return nil
}

// ValidateUploadFilename validates an uploaded file name against the
// whitelist and reserved names
func ValidateUploadFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if len(name) > FilenameMaxLength {
		return fmt.Errorf("filename must be at most %d characters", FilenameMaxLength)
	}
	if strings.ContainsAny(name, invalidNameChars) {
		return fmt.Errorf("filename contains invalid characters")
	}
	upper := strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
	for _, r := range reservedNames {
		if upper == r {
			return fmt.Errorf("filename '%s' is reserved", name)
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || !allowedExtensions[ext] {
		return fmt.Errorf("file type '%s' is not allowed", ext)
	}
	return nil
}

// ValidateUploadMimeType blocks executable content types
func ValidateUploadMimeType(mimeType string) error {
	base := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if dangerousMimeTypes[base] {
		return fmt.Errorf("content type '%s' is not allowed", base)
	}
	return nil
}
