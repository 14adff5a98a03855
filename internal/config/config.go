package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultDataDir       = "/home/masa"
	defaultListenAddress = ":8080"
	defaultUpstreamURL   = "http://127.0.0.1:8081"
)

// Backends accepted by JOB_STORE and ARTIFACT_STORE.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreMongo  = "mongo"
)

// TODO: Replace the map with a typed struct once every consumer goes through the Get*Config helpers
type JobConfiguration map[string]any

// ReadConfig builds the configuration from the environment, after loading
// DATA_DIR/.env if one exists.
func ReadConfig() JobConfiguration {
	jc := JobConfiguration{}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	jc["data_dir"] = dataDir

	envErr := godotenv.Load(filepath.Join(dataDir, ".env"))

	// LOG_LEVEL may come from the env file.
	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	jc["log_level"] = level.String()
	SetLogLevel(level)
	if envErr != nil {
		logrus.Infof("No env file in %s, reading from environment variables only", dataDir)
	}

	jc["listen_address"] = envString("LISTEN_ADDRESS", defaultListenAddress)
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		jc["api_key"] = apiKey
	}
	jc["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	jc["stats_buf_size"] = uint(envInt("STATS_BUF_SIZE", 128))
	jc["max_jobs"] = envInt("MAX_JOBS", 10)
	jc["job_queue_size"] = envInt("JOB_QUEUE_SIZE", 100)

	jc["upstream_base_url"] = envString("UPSTREAM_BASE_URL", defaultUpstreamURL)
	jc["upstream_timeout"] = time.Duration(envInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second
	jc["upstream_retries"] = envInt("UPSTREAM_RETRIES", 3)
	jc["upstream_retry_backoff"] = time.Duration(envInt("UPSTREAM_RETRY_BACKOFF_MS", 1000)) * time.Millisecond
	jc["upstream_requests_per_second"] = envFloat("UPSTREAM_REQUESTS_PER_SECOND", 0)
	if key := os.Getenv("UPSTREAM_API_KEY"); key != "" {
		logrus.Info("Upstream API key found")
		jc["upstream_api_key"] = key
	}

	jc["max_pages"] = envInt("MAX_PAGES", 0)
	jc["max_same_cursor"] = envInt("MAX_SAME_CURSOR", 3)
	jc["pause_poll_interval"] = time.Duration(envInt("PAUSE_POLL_MS", 500)) * time.Millisecond
	jc["stats_flush_every"] = envInt("STATS_FLUSH_EVERY", 25)

	jc["job_store"] = strings.ToLower(envString("JOB_STORE", StoreMemory))
	jc["job_store_max_size"] = envInt("JOB_STORE_MAX_SIZE", 1000)
	jc["job_store_max_age"] = time.Duration(envInt("JOB_STORE_MAX_AGE_SECONDS", 3600)) * time.Second
	jc["artifact_store"] = strings.ToLower(envString("ARTIFACT_STORE", StoreFile))
	jc["mongo_uri"] = envString("MONGO_URI", "mongodb://127.0.0.1:27017")
	jc["mongo_database"] = envString("MONGO_DATABASE", "timeline_worker")

	return jc
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		logrus.Errorf("Error parsing %s=%q. Setting to default %d.", key, s, def)
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		logrus.Errorf("Error parsing %s=%q. Setting to default %v.", key, s, def)
		return def
	}
	return v
}

// Unmarshal unmarshals the job configuration into the supplied interface.
func (jc JobConfiguration) Unmarshal(v any) error {
	data, err := json.Marshal(jc)
	if err != nil {
		return fmt.Errorf("error marshalling job configuration: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshalling job configuration: %w", err)
	}

	return nil
}

func (jc JobConfiguration) DataDir() string {
	return jc.GetString("data_dir", defaultDataDir)
}

func (jc JobConfiguration) ListenAddress() string {
	return jc.GetString("listen_address", defaultListenAddress)
}

// GetInt safely extracts an int from JobConfiguration, with a default fallback
func (jc JobConfiguration) GetInt(key string, def int) int {
	if v, ok := jc[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case uint:
			return int(val)
		case float64:
			return int(val)
		default:
			logrus.Warnf("Value %v for key %q cannot be converted to int, using %d", val, key, def)
		}
	}
	return def
}

func (jc JobConfiguration) GetFloat(key string, def float64) float64 {
	if v, ok := jc[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		}
	}
	return def
}

// GetDuration returns a time.Duration stored under key, or def.
func (jc JobConfiguration) GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := jc[key]; ok {
		if val, ok := v.(time.Duration); ok {
			return val
		}
	}
	return def
}

func (jc JobConfiguration) GetString(key string, def string) string {
	if v, ok := jc[key]; ok {
		if val, ok := v.(string); ok {
			return val
		}
	}
	return def
}

// GetBool safely extracts a bool from JobConfiguration, with a default fallback
func (jc JobConfiguration) GetBool(key string, def bool) bool {
	if v, ok := jc[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// UpstreamConfig is what the paginator needs to reach the timeline API.
type UpstreamConfig struct {
	BaseURL           string
	Timeout           time.Duration
	Retries           int
	RetryBackoff      time.Duration
	RequestsPerSecond float64
	// APIKey is the credential used when a request does not carry its own.
	APIKey string
}

func (jc JobConfiguration) GetUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:           jc.GetString("upstream_base_url", defaultUpstreamURL),
		Timeout:           jc.GetDuration("upstream_timeout", 30*time.Second),
		Retries:           jc.GetInt("upstream_retries", 3),
		RetryBackoff:      jc.GetDuration("upstream_retry_backoff", time.Second),
		RequestsPerSecond: jc.GetFloat("upstream_requests_per_second", 0),
		APIKey:            jc.GetString("upstream_api_key", ""),
	}
}

// RunConfig holds the acquisition loop limits shared by every run.
type RunConfig struct {
	MaxPages      int
	MaxSameCursor int
	PollInterval  time.Duration
	FlushEvery    int
}

func (jc JobConfiguration) GetRunConfig() RunConfig {
	return RunConfig{
		MaxPages:      jc.GetInt("max_pages", 0),
		MaxSameCursor: jc.GetInt("max_same_cursor", 3),
		PollInterval:  jc.GetDuration("pause_poll_interval", 500*time.Millisecond),
		FlushEvery:    jc.GetInt("stats_flush_every", 25),
	}
}

// StoreConfig selects and sizes the job and artifact backends.
type StoreConfig struct {
	JobStore      string
	MaxSize       int
	MaxAge        time.Duration
	ArtifactStore string
	DataDir       string
	MongoURI      string
	MongoDatabase string
}

func (jc JobConfiguration) GetStoreConfig() StoreConfig {
	return StoreConfig{
		JobStore:      jc.GetString("job_store", StoreMemory),
		MaxSize:       jc.GetInt("job_store_max_size", 1000),
		MaxAge:        jc.GetDuration("job_store_max_age", time.Hour),
		ArtifactStore: jc.GetString("artifact_store", StoreFile),
		DataDir:       jc.DataDir(),
		MongoURI:      jc.GetString("mongo_uri", "mongodb://127.0.0.1:27017"),
		MongoDatabase: jc.GetString("mongo_database", "timeline_worker"),
	}
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		logrus.Error("Invalid log level", "level", logLevel, "setting_to", logrus.InfoLevel.String())
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
