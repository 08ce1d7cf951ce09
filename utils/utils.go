package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FormatBytes converts bytes to human readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatETA formats a non-negative duration as "Ns", "Mm Ss", or "Hh Mm",
// the three ETA shapes the Throughput Estimator (C11) reports. Callers are
// responsible for substituting "--" when no estimate is available.
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// SanitizeFilename removes invalid characters from filename
func SanitizeFilename(filename string) string {
	// Replace invalid characters with underscore
	invalid := regexp.MustCompile(`[<>:"/\\|?*]`)
	filename = invalid.ReplaceAllString(filename, "_")

	// Remove leading/trailing spaces and dots
	filename = strings.Trim(filename, " .")

	// Limit length to 255 characters (common filesystem limit)
	if len(filename) > 255 {
		filename = filename[:255]
	}

	return filename
}

// IsValidURL checks if the string is a valid URL
func IsValidURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
