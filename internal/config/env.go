package config

import (
    "errors"
    "io/fs"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// SourceConfig selects and configures where pages are downloaded from.
type SourceConfig struct {
    Kind string // "drive"|"http"|"s3"

    DriveCredentialsFile string
    DriveRootFolderID    string

    HTTPBaseURL   string
    HTTPUserAgent string

    S3Bucket          string
    S3Prefix          string
    S3Region          string
    S3Endpoint        string
    S3AccessKeyID     string
    S3SecretAccessKey string
}

// FetchConfig controls downloads and the local layout.
type FetchConfig struct {
    OutputDir          string
    CatalogFile        string
    RequestTimeout     time.Duration
    MaxAttempts        int
    RetryBaseDelay     time.Duration
    MinInterval        time.Duration
    CooldownBase       time.Duration
    CooldownMax        time.Duration
    StopOnFirstFailure bool
}

// ResultConfig configures optional publishing of the merged PDF.
type ResultConfig struct {
    S3Bucket string
    S3Prefix string
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency     int
    ShutdownTimeout time.Duration
    CancelPoll      time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
    StatusTTL    time.Duration
}

// ServerConfig configures the HTTP job API.
type ServerConfig struct {
    Port string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    Source  SourceConfig
    Fetch   FetchConfig
    Result  ResultConfig
    Worker  WorkerConfig
    Queue   QueueConfig
    Server  ServerConfig
}

// Load reads .env files (missing ones are ignored) and then the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
    if len(files) == 0 { files = []string{".env"} }
    for _, f := range files {
        if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return Config{}, err
        }
    }
    return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/shasdl.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }
    if strings.EqualFold(cfg.Logging.File, "off") || cfg.Logging.File == "-" { cfg.Logging.File = "" }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_shasdl",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Source = SourceConfig{
        Kind:                 strings.ToLower(getEnv("SOURCE", "http")),
        DriveCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", "credentials.json"),
        DriveRootFolderID:    getEnv("DRIVE_ROOT_FOLDER_ID", ""),
        HTTPBaseURL:          getEnv("HTTP_BASE_URL", ""),
        HTTPUserAgent:        getEnv("HTTP_USER_AGENT", "Mozilla/5.0"),
        S3Bucket:             getEnv("S3_BUCKET", ""),
        S3Prefix:             getEnv("S3_PREFIX", ""),
        S3Region:             getEnv("AWS_REGION", "us-east-1"),
        S3Endpoint:           getEnv("S3_ENDPOINT", ""),
        S3AccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
        S3SecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
    }

    cfg.Fetch = FetchConfig{
        OutputDir:          getEnv("OUTPUT_DIR", "downloads"),
        CatalogFile:        getEnv("CATALOG_FILE", ""),
        RequestTimeout:     parseDuration(getEnv("FETCH_REQUEST_TIMEOUT", "15s"), 15*time.Second),
        MaxAttempts:        parseInt(getEnv("RETRY_MAX_ATTEMPTS", "5"), 5),
        RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "1s"), time.Second),
        MinInterval:        parseDuration(getEnv("FETCH_INTERVAL", "200ms"), 200*time.Millisecond),
        CooldownBase:       parseDuration(getEnv("COOLDOWN_BASE", "2s"), 2*time.Second),
        CooldownMax:        parseDuration(getEnv("COOLDOWN_MAX", "1m"), time.Minute),
        StopOnFirstFailure: parseBool(getEnv("STOP_ON_FIRST_FAILURE", "false")),
    }

    cfg.Result = ResultConfig{
        S3Bucket: getEnv("RESULT_S3_BUCKET", ""),
        S3Prefix: getEnv("RESULT_S3_PREFIX", "merged/"),
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        Concurrency:     parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
        ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
        CancelPoll:      parseDuration(getEnv("CANCEL_POLL_INTERVAL", "1s"), time.Second),
    }

    // Queue defaults
    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:shas:downloads"),
        Group:        getEnv("QUEUE_GROUP", "workers:shasdl"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "2s"), 2*time.Second),
        StatusTTL:    parseDuration(getEnv("JOB_STATUS_TTL", "168h"), 7*24*time.Hour),
    }

    cfg.Server = ServerConfig{Port: getEnv("PORT", "8080")}

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
