// Package envfile loads and inspects dotenv files.
// Variables already set in the process environment always win.
package envfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load sets every variable from the dotenv file at path that is not already
// present in the environment. A missing file is not an error.
func Load(path string) error {
	values, err := Read(path)
	if err != nil {
		return err
	}
	for key, value := range values {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

// Read parses the dotenv file at path without touching the environment.
// A missing file yields an empty map.
func Read(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return values, nil
}

// Missing returns the keys from required that the dotenv file at path does
// not define with a non-empty value. A missing file reports every key.
func Missing(path string, required []string) ([]string, error) {
	values, err := Read(path)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, key := range required {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	return missing, nil
}
