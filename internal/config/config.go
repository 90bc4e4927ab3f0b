package config

import "os"

type Config struct {
	Port               string
	DBConnectionString string
	WebhookSecret      string
	AuthSecret         string
	WorkerBaseURL      string
	PublicBaseURL      string
	Sync               *SyncConfig
}

func Load() (*Config, error) {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		AuthSecret:         getEnv("AUTH_SECRET", ""),
		WorkerBaseURL:      getEnv("WORKER_BASE_URL", "http://localhost:9090"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		Sync:               DefaultSyncConfig(),
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
