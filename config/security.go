package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/netpublish/errors"
)

const (
	maxFileSize  = 4 << 20 // configuration and project files
	maxJSONDepth = 64
	maxEnvVarLen = 4096
	maxPathLen   = 4096
)

// checkPath rejects paths that escape the working directory or have no known
// format.
func checkPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", errors.ErrMissingConfig)
	}
	if len(path) > maxPathLen {
		return "", fmt.Errorf("%w: path too long: %d > %d", errors.ErrInvalidConfig, len(path), maxPathLen)
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("working directory: %w", err)
		}
		rel, err := filepath.Rel(cwd, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s resolves outside the working directory", errors.ErrInvalidConfig, path)
		}
	}
	return formatOf(path)
}

// readFile reads a configuration or project file after checking its path,
// size and type. It returns the content and the format.
func readFile(path string) ([]byte, string, error) {
	format, err := checkPath(path)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path)
		}
		return nil, "", err
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("%w: %s is not a regular file", errors.ErrInvalidConfig, path)
	}
	if info.Size() > maxFileSize {
		return nil, "", fmt.Errorf("%w: %s is %d bytes, limit %d", errors.ErrInvalidConfig, path, info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, format, nil
}

func writeFile(path string, data []byte) error {
	if _, err := checkPath(path); err != nil {
		return err
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrInvalidConfig, len(data), maxFileSize)
	}
	return os.WriteFile(path, data, 0o600)
}

func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%w: %s too long: %d > %d", errors.ErrInvalidConfig, key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: null byte in %s", errors.ErrInvalidConfig, key)
	}
	return nil
}

// validateJSONDepth bounds nesting before the document reaches the decoder.
func validateJSONDepth(data []byte) error {
	depth := 0
	inString, escaped := false, false

	for _, b := range data {
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("%w: JSON nesting deeper than %d", errors.ErrParsingFailed, maxJSONDepth)
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced brackets", errors.ErrParsingFailed)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unclosed brackets", errors.ErrParsingFailed)
	}
	return nil
}
