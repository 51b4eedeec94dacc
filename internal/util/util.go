package util

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// MiB is the number of bytes in one mebibyte.
const MiB = 1024 * 1024

// ParseSize converts a size string like "10G", "512M", "2048K" into bytes.
var ParseSize = func(sizeStr string) (int64, error) {
	var value int64
	var unit string

	// Try to parse with unit (e.g., "10G", "512M")
	n, err := fmt.Sscanf(sizeStr, "%d%s", &value, &unit)
	if err != nil || n != 2 {
		// If parsing with unit fails, try to parse as just a number (bytes)
		n, err = fmt.Sscanf(sizeStr, "%d", &value)
		if err != nil || n != 1 {
			return 0, fmt.Errorf("invalid size format '%s'. Expected format like '10G', '512M', or '2048'", sizeStr)
		}
		unit = "B" // Default to bytes if no unit is specified
	}

	if value < 0 {
		return 0, fmt.Errorf("size '%s' must not be negative", sizeStr)
	}

	var factor int64
	switch strings.ToUpper(unit) {
	case "K", "KB", "KIB":
		factor = 1024
	case "M", "MB", "MIB":
		factor = MiB
	case "G", "GB", "GIB":
		factor = 1024 * MiB
	case "T", "TB", "TIB":
		factor = 1024 * 1024 * MiB
	case "", "B":
		factor = 1
	default:
		return 0, fmt.Errorf("unknown size unit '%s' in '%s'", unit, sizeStr)
	}

	if value > math.MaxInt64/factor {
		return 0, fmt.Errorf("size '%s' is too large", sizeStr)
	}
	return value * factor, nil
}

// ParseMiB converts a size string into whole MiB. A bare integer is taken
// to be MiB already.
func ParseMiB(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if isDigits(sizeStr) {
		sizeStr += "M"
	}
	bytes, err := ParseSize(sizeStr)
	if err != nil {
		return 0, err
	}
	if bytes%MiB != 0 {
		return 0, fmt.Errorf("size '%s' is not a whole number of MiB", sizeStr)
	}
	return bytes / MiB, nil
}

// BytesToMiB truncates a byte count to whole MiB.
func BytesToMiB(b int64) int64 {
	return b / MiB
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DirExists checks if a path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsBlockDevice checks if a path exists and is a block device node.
func IsBlockDevice(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	mode := info.Mode()
	return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0, nil
}
