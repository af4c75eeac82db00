package configs

import (
	"flag"
	"os"

	"github.com/curalink/portal-core/internal/infrastructure/env"
)

// DeterminePath resolves the config file location: --config flag first, then
// the PORTAL_CONFIG env var, then a few conventional candidates. An empty
// result means "defaults only", which is a valid way to run.
func DeterminePath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("PORTAL_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"/etc/portal/config.yaml",
			"/app/config.yaml", // common in Docker
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
