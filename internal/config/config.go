package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	HTTPAddr           string
	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	LogLevel           logging.Level

	APNSKeyPath    string
	APNSKeyID      string
	APNSTeamID     string
	APNSTopic      string
	APNSUseSandbox bool
	APNSTimeout    time.Duration

	SleeperBaseURL               string
	SleeperTimeout               time.Duration
	SleeperCircuitEnabled        bool
	SleeperCircuitFailureCount   int
	SleeperCircuitOpenTimeout    time.Duration
	SleeperCircuitHalfOpenMaxReq int

	ESPNBaseURL               string
	ESPNTimeout               time.Duration
	ESPNCircuitEnabled        bool
	ESPNCircuitFailureCount   int
	ESPNCircuitOpenTimeout    time.Duration
	ESPNCircuitHalfOpenMaxReq int

	PollInterval        time.Duration
	StartCheckInterval  time.Duration
	EndingCheckInterval time.Duration
	RefreshInterval     time.Duration
	StartLeadWindow     time.Duration
	AggregationWorkers  int

	MaxSessionSunday  time.Duration
	MaxSessionGameDay time.Duration
	MaxSessionDefault time.Duration

	DispatchQueueSize   int
	DispatchSendTimeout time.Duration
	DispatchMaxAttempts int
	DispatchRetryBase   time.Duration

	RostersTTL     time.Duration
	UsersTTL       time.Duration
	LeagueTTL      time.Duration
	MatchupsTTL    time.Duration
	SeasonStateTTL time.Duration
	CatalogTTL     time.Duration
	GamesTTL       time.Duration

	PprofEnabled               bool
	PprofAddr                  string
	UptraceEnabled             bool
	UptraceDSN                 string
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             appEnv,
		ServiceName:        getEnv("APP_SERVICE_NAME", "liveactivity-api"),
		ServiceVersion:     getEnv("APP_SERVICE_VERSION", "dev"),
		HTTPAddr:           getEnv("APP_HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
		SleeperBaseURL:     strings.TrimSpace(getEnv("SLEEPER_BASE_URL", "https://api.sleeper.app/v1")),
		ESPNBaseURL:        strings.TrimSpace(getEnv("ESPN_BASE_URL", "https://site.api.espn.com/apis/site/v2/sports/football/nfl")),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}

	if cfg.ReadTimeout, err = getEnvAsDuration("APP_READ_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = getEnvAsDuration("APP_WRITE_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}

	cfg.APNSKeyPath = strings.TrimSpace(getEnv("APNS_KEY_PATH", ""))
	cfg.APNSKeyID = strings.TrimSpace(getEnv("APNS_KEY_ID", ""))
	cfg.APNSTeamID = strings.TrimSpace(getEnv("APNS_TEAM_ID", ""))
	cfg.APNSTopic = strings.TrimSpace(getEnv("APNS_TOPIC", ""))
	if cfg.APNSUseSandbox, err = getEnvAsBool("APNS_USE_SANDBOX", "true"); err != nil {
		return Config{}, err
	}
	if cfg.APNSTimeout, err = getEnvAsDuration("APNS_TIMEOUT", "30s"); err != nil {
		return Config{}, err
	}
	if cfg.APNSKeyPath == "" || cfg.APNSKeyID == "" || cfg.APNSTeamID == "" || cfg.APNSTopic == "" {
		return Config{}, fmt.Errorf("APNS_KEY_PATH, APNS_KEY_ID, APNS_TEAM_ID and APNS_TOPIC are required")
	}

	if cfg.SleeperTimeout, err = getEnvAsDuration("SLEEPER_TIMEOUT", "30s"); err != nil {
		return Config{}, err
	}
	if cfg.SleeperCircuitEnabled, err = getEnvAsBool("SLEEPER_CIRCUIT_ENABLED", "true"); err != nil {
		return Config{}, err
	}
	if cfg.SleeperCircuitFailureCount, err = getEnvAsInt("SLEEPER_CIRCUIT_FAILURE_COUNT", 5); err != nil {
		return Config{}, err
	}
	if cfg.SleeperCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("SLEEPER_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	if cfg.SleeperCircuitOpenTimeout, err = getEnvAsDuration("SLEEPER_CIRCUIT_OPEN_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}
	if cfg.SleeperCircuitHalfOpenMaxReq, err = getEnvAsInt("SLEEPER_CIRCUIT_HALF_OPEN_MAX_REQ", 2); err != nil {
		return Config{}, err
	}
	if cfg.SleeperCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("SLEEPER_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	if cfg.ESPNTimeout, err = getEnvAsDuration("ESPN_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}
	if cfg.ESPNCircuitEnabled, err = getEnvAsBool("ESPN_CIRCUIT_ENABLED", "true"); err != nil {
		return Config{}, err
	}
	if cfg.ESPNCircuitFailureCount, err = getEnvAsInt("ESPN_CIRCUIT_FAILURE_COUNT", 5); err != nil {
		return Config{}, err
	}
	if cfg.ESPNCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("ESPN_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	if cfg.ESPNCircuitOpenTimeout, err = getEnvAsDuration("ESPN_CIRCUIT_OPEN_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}
	if cfg.ESPNCircuitHalfOpenMaxReq, err = getEnvAsInt("ESPN_CIRCUIT_HALF_OPEN_MAX_REQ", 2); err != nil {
		return Config{}, err
	}
	if cfg.ESPNCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("ESPN_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	if cfg.PollInterval, err = getEnvAsDuration("POLL_INTERVAL", "30s"); err != nil {
		return Config{}, err
	}
	if cfg.StartCheckInterval, err = getEnvAsDuration("START_CHECK_INTERVAL", "5m"); err != nil {
		return Config{}, err
	}
	if cfg.EndingCheckInterval, err = getEnvAsDuration("ENDING_CHECK_INTERVAL", "1m"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshInterval, err = getEnvAsDuration("REFRESH_INTERVAL", "24h"); err != nil {
		return Config{}, err
	}
	if cfg.StartLeadWindow, err = getEnvAsDuration("START_LEAD_WINDOW", "5m"); err != nil {
		return Config{}, err
	}
	if cfg.AggregationWorkers, err = getEnvAsInt("AGGREGATION_WORKERS", 8); err != nil {
		return Config{}, err
	}
	if cfg.AggregationWorkers < 1 {
		return Config{}, fmt.Errorf("AGGREGATION_WORKERS must be >= 1")
	}

	if cfg.MaxSessionSunday, err = getEnvAsDuration("MAX_SESSION_SUNDAY", "16h"); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessionGameDay, err = getEnvAsDuration("MAX_SESSION_GAME_DAY", "8h"); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessionDefault, err = getEnvAsDuration("MAX_SESSION_DEFAULT", "6h"); err != nil {
		return Config{}, err
	}

	if cfg.DispatchQueueSize, err = getEnvAsInt("DISPATCH_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if cfg.DispatchQueueSize < 1 {
		return Config{}, fmt.Errorf("DISPATCH_QUEUE_SIZE must be >= 1")
	}
	if cfg.DispatchSendTimeout, err = getEnvAsDuration("DISPATCH_SEND_TIMEOUT", "30s"); err != nil {
		return Config{}, err
	}
	if cfg.DispatchMaxAttempts, err = getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.DispatchMaxAttempts < 1 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.DispatchRetryBase, err = getEnvAsDuration("DISPATCH_RETRY_BASE", "1s"); err != nil {
		return Config{}, err
	}

	if cfg.RostersTTL, err = getEnvAsDuration("CACHE_ROSTERS_TTL", "10m"); err != nil {
		return Config{}, err
	}
	if cfg.UsersTTL, err = getEnvAsDuration("CACHE_USERS_TTL", "30m"); err != nil {
		return Config{}, err
	}
	if cfg.LeagueTTL, err = getEnvAsDuration("CACHE_LEAGUE_TTL", "24h"); err != nil {
		return Config{}, err
	}
	if cfg.MatchupsTTL, err = getEnvAsDuration("CACHE_MATCHUPS_TTL", "10m"); err != nil {
		return Config{}, err
	}
	if cfg.SeasonStateTTL, err = getEnvAsDuration("CACHE_SEASON_STATE_TTL", "24h"); err != nil {
		return Config{}, err
	}
	if cfg.CatalogTTL, err = getEnvAsDuration("CACHE_CATALOG_TTL", "24h"); err != nil {
		return Config{}, err
	}
	if cfg.GamesTTL, err = getEnvAsDuration("CACHE_GAMES_TTL", "24h"); err != nil {
		return Config{}, err
	}

	if cfg.PprofEnabled, err = getEnvAsBool("PPROF_ENABLED", "false"); err != nil {
		return Config{}, err
	}
	cfg.PprofAddr = strings.TrimSpace(getEnv("PPROF_ADDR", ":6060"))
	if cfg.PprofEnabled && cfg.PprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	if cfg.UptraceEnabled, err = getEnvAsBool("UPTRACE_ENABLED", "false"); err != nil {
		return Config{}, err
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	if cfg.PyroscopeEnabled, err = getEnvAsBool("PYROSCOPE_ENABLED", "false"); err != nil {
		return Config{}, err
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	if cfg.PyroscopeUploadRate, err = getEnvAsDuration("PYROSCOPE_UPLOAD_RATE", "15s"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsBool(key, fallback string) (bool, error) {
	out, err := strconv.ParseBool(getEnv(key, fallback))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return out, nil
}

func getEnvAsDuration(key, fallback string) (time.Duration, error) {
	out, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}
