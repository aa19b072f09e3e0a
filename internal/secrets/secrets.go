// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file is one secret: the filename is the key and the trimmed contents
// are the value.
//
// Recognised keys are listed in ConfigKeys; other files are loaded but not
// mapped onto configuration.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ConfigKeys maps secret file names to the configuration keys they supply.
var ConfigKeys = map[string]string{
	"fastgpt-api-key": "dataset.api_key",
	"s3-access-key":   "fetch.object_store.access_key",
	"s3-secret-key":   "fetch.object_store.secret_key",
	"database-dsn":    "server.database_dsn",
	"redis-addr":      "ledger.redis_addr",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	loaded := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logrus.WithError(err).WithField("secret", name).Warn("skipping unreadable secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			loaded[name] = value
		}
	}
	return loaded, nil
}

// Settings translates loaded secrets into configuration key/value pairs.
func Settings(s map[string]string) map[string]string {
	out := make(map[string]string)
	for name, value := range s {
		if key, ok := ConfigKeys[name]; ok {
			out[key] = value
		}
	}
	return out
}
