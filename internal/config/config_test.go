package config

import (
	"testing"
	"time"
)

func setRequiredAPNSEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APNS_KEY_PATH", "/etc/apns/AuthKey.p8")
	t.Setenv("APNS_KEY_ID", "ABC123DEFG")
	t.Setenv("APNS_TEAM_ID", "TEAM123456")
	t.Setenv("APNS_TOPIC", "com.example.fantasy")
}

func TestLoad_AppEnvValidation(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_APNSCredentialsRequired(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APNS_KEY_PATH", "")
	t.Setenv("APNS_KEY_ID", "")
	t.Setenv("APNS_TEAM_ID", "")
	t.Setenv("APNS_TOPIC", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when APNS credentials are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppEnv != EnvDev {
		t.Fatalf("unexpected default APP_ENV: %q", cfg.AppEnv)
	}
	if cfg.ServiceName != "liveactivity-api" {
		t.Fatalf("unexpected default service name: %q", cfg.ServiceName)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected default http addr: %q", cfg.HTTPAddr)
	}
	if !cfg.APNSUseSandbox {
		t.Fatalf("expected sandbox push environment by default")
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("unexpected default poll interval: %s", cfg.PollInterval)
	}
	if cfg.StartCheckInterval != 5*time.Minute {
		t.Fatalf("unexpected default start check interval: %s", cfg.StartCheckInterval)
	}
	if cfg.EndingCheckInterval != time.Minute {
		t.Fatalf("unexpected default ending check interval: %s", cfg.EndingCheckInterval)
	}
	if cfg.MaxSessionSunday != 16*time.Hour {
		t.Fatalf("unexpected default sunday ceiling: %s", cfg.MaxSessionSunday)
	}
	if cfg.MaxSessionGameDay != 8*time.Hour {
		t.Fatalf("unexpected default game day ceiling: %s", cfg.MaxSessionGameDay)
	}
	if cfg.DispatchQueueSize != 256 {
		t.Fatalf("unexpected default dispatch queue size: %d", cfg.DispatchQueueSize)
	}
	if cfg.DispatchMaxAttempts != 3 {
		t.Fatalf("unexpected default dispatch max attempts: %d", cfg.DispatchMaxAttempts)
	}
	if cfg.RostersTTL != 10*time.Minute {
		t.Fatalf("unexpected default rosters ttl: %s", cfg.RostersTTL)
	}
	if cfg.CatalogTTL != 24*time.Hour {
		t.Fatalf("unexpected default catalog ttl: %s", cfg.CatalogTTL)
	}
}

func TestLoad_CacheTTLParsing(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", EnvDev)

	t.Run("override", func(t *testing.T) {
		t.Setenv("CACHE_ROSTERS_TTL", "2m")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.RostersTTL != 2*time.Minute {
			t.Fatalf("unexpected rosters ttl: %s", cfg.RostersTTL)
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("CACHE_ROSTERS_TTL", "bad")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid CACHE_ROSTERS_TTL")
		}
	})

	t.Run("non positive", func(t *testing.T) {
		t.Setenv("CACHE_ROSTERS_TTL", "-1m")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for negative CACHE_ROSTERS_TTL")
		}
	})
}

func TestLoad_DispatchValidation(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", EnvDev)

	t.Run("queue size must be positive", func(t *testing.T) {
		t.Setenv("DISPATCH_QUEUE_SIZE", "0")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for DISPATCH_QUEUE_SIZE=0")
		}
	})

	t.Run("max attempts must be positive", func(t *testing.T) {
		t.Setenv("DISPATCH_MAX_ATTEMPTS", "0")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for DISPATCH_MAX_ATTEMPTS=0")
		}
	})
}

func TestLoad_CircuitBreakerValidation(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", EnvDev)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if !cfg.SleeperCircuitEnabled {
			t.Fatalf("expected sleeper circuit enabled by default")
		}
		if cfg.SleeperCircuitFailureCount != 5 {
			t.Fatalf("unexpected sleeper failure count: %d", cfg.SleeperCircuitFailureCount)
		}
		if cfg.ESPNCircuitOpenTimeout != 15*time.Second {
			t.Fatalf("unexpected espn open timeout: %s", cfg.ESPNCircuitOpenTimeout)
		}
	})

	t.Run("failure count must be positive", func(t *testing.T) {
		t.Setenv("SLEEPER_CIRCUIT_FAILURE_COUNT", "0")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for SLEEPER_CIRCUIT_FAILURE_COUNT=0")
		}
	})
}

func TestLoad_CORSOriginsParsing(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", EnvDev)

	t.Run("default wildcard", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
			t.Fatalf("unexpected default CORS origins: %+v", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("comma separated parsing", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, http://localhost:5173 ")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if len(cfg.CORSAllowedOrigins) != 2 {
			t.Fatalf("unexpected CORS origins length: %d", len(cfg.CORSAllowedOrigins))
		}
		if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
			t.Fatalf("unexpected first CORS origin: %s", cfg.CORSAllowedOrigins[0])
		}
	})
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_PyroscopeAppNameDefaultsToServiceName(t *testing.T) {
	setRequiredAPNSEnv(t)
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_SERVICE_NAME", "liveactivity-api-test")
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040")
	t.Setenv("PYROSCOPE_APP_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PyroscopeAppName != "liveactivity-api-test" {
		t.Fatalf("unexpected pyroscope app name: %q", cfg.PyroscopeAppName)
	}
}
