package settings

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var Settings *AppSettings

func NewSettings() *AppSettings {
	settings := AppSettings{
		SQLiteDatabase:     getEnvOrDefault("PIPEWATCH_DB_PATH", "file:.///pipewatch.sqlite"),
		WorkspaceRoot:      getEnvOrDefault("PIPEWATCH_WORKSPACE_ROOT", ".pipewatch/workspaces"),
		ArtifactsDir:       getEnvOrDefault("PIPEWATCH_ARTIFACTS_DIR", "artifacts"),
		MetricsAddr:        getEnvOrDefault("PIPEWATCH_METRICS_ADDR", ""),
		GitUsername:        getEnvOrDefault("PIPEWATCH_GIT_USERNAME", ""),
		GitToken:           getEnvOrDefault("PIPEWATCH_GIT_TOKEN", ""),
		AgentHost:          getEnvOrDefault("PIPEWATCH_AGENT_HOST", ""),
		AgentUser:          getEnvOrDefault("PIPEWATCH_AGENT_USER", ""),
		AgentKeyPath:       getEnvOrDefault("PIPEWATCH_AGENT_KEY_PATH", ""),
		DefaultStepTimeout: getEnvDuration("PIPEWATCH_STEP_TIMEOUT_SECONDS", 600),
		QueueSize:          getEnvInt64("PIPEWATCH_QUEUE_SIZE", 3),
	}
	return &settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultSeconds int64) time.Duration {
	return time.Duration(getEnvInt64(key, defaultSeconds)) * time.Second
}

type AppSettings struct {
	SQLiteDatabase     string
	WorkspaceRoot      string
	ArtifactsDir       string
	MetricsAddr        string
	GitUsername        string
	GitToken           string
	AgentHost          string
	AgentUser          string
	AgentKeyPath       string
	DefaultStepTimeout time.Duration
	QueueSize          int64
}

func (as *AppSettings) SQLiteDbString(readonly bool) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_cache_size", "-20000")
	params.Add("_foreign_keys", "ON")
	if readonly {
		params.Add("mode", "ro")
	} else {
		params.Add("_txlock", "IMMEDIATE")
		params.Add("mode", "rwc")
	}

	return as.SQLiteDatabase + "?" + params.Encode()
}

// ReadDotenv loads environment variables from path, if it exists. A missing
// dotenv file is not an error: the environment may carry everything.
func ReadDotenv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("err loading dotenv", "path", path, "error", err)
	}
}
