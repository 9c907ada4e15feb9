package config

import (
	"os"
	"path/filepath"
	"time"
)

// CompanionConfig はコンパニオンCLIの設定。
type CompanionConfig struct {
	ServerURL    string
	SessionFile  string
	PollInterval time.Duration
}

// LoadCompanion は環境変数からCompanionConfigを読み込む。必須項目はない。
func LoadCompanion() CompanionConfig {
	env := newEnvReader()

	sessionFile := env.getString("LINKDIST_SESSION_FILE", "")
	if sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		sessionFile = filepath.Join(dir, "linkdist", "companion.json")
	}

	return CompanionConfig{
		ServerURL:    env.getString("LINKDIST_SERVER", "http://localhost:8080"),
		SessionFile:  sessionFile,
		PollInterval: env.getDuration("LINKDIST_POLL_INTERVAL", 3*time.Second),
	}
}
