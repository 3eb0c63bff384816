package remote

import (
	"encoding/json"
	"fmt"
	"os"
)

// serversFile is the on-disk shape of a server configuration file.
type serversFile struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// LoadServers merges server configurations from multiple JSON file paths.
// Each file holds {"servers": {"<id>": {...}}}; later paths override
// earlier ones per server id. Missing files are silently skipped, so a
// fixed search list (user config, then project config) works without
// stat-ing first.
func LoadServers(paths ...string) (map[string]ServerConfig, error) {
	merged := make(map[string]ServerConfig)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("remote: read %s: %w", path, err)
		}

		var f serversFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("remote: parse %s: %w", path, err)
		}
		for id, cfg := range f.Servers {
			merged[id] = cfg
		}
	}

	return merged, nil
}
