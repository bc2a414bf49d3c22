package config

import "testing"

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 9000},
		Storage: StorageConfig{Backend: "filesystem", DataDir: "./data"},
		Rescache: RescacheConfig{
			MaxSize:         1024,
			SyncPeriod:      5,
			SyncBatch:       10,
			CacheExpiration: 60,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a valid config to pass, got %v", err)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}

	cfg = validConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "gcs"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown storage backend")
	}
}

func TestValidateRequiresDataDirForFilesystem(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing data_dir")
	}
}

func TestValidateRequiresBucketForS3(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "s3"
	cfg.Storage.S3.Bucket = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing s3 bucket")
	}

	cfg.Storage.S3.Bucket = "my-bucket"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid s3 config to pass, got %v", err)
	}
}

func TestValidateRejectsNonPositiveRescacheTuning(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Rescache.MaxSize = 0 },
		func(c *Config) { c.Rescache.SyncPeriod = 0 },
		func(c *Config) { c.Rescache.SyncBatch = 0 },
		func(c *Config) { c.Rescache.CacheExpiration = 0 },
	}
	for _, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for non-positive rescache tuning, config: %+v", cfg)
		}
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestValidateIsCaseInsensitiveForLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "DEBUG"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected uppercase log level to be accepted, got %v", err)
	}
}

func TestRedisConfigAddr(t *testing.T) {
	r := RedisConfig{Host: "localhost", Port: 6379}
	if addr := r.Addr(); addr != "localhost:6379" {
		t.Fatalf("expected 'localhost:6379', got %q", addr)
	}
}

func TestLoadErrorsOnExplicitMissingConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/does-not-exist.yaml")
	if err == nil {
		t.Fatalf("expected an explicit missing file path to error")
	}
	_ = cfg
}
