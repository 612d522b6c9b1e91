package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/entscheid/data/db/entscheid.db"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheBackendSQL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "entscheid:"
	}
	if cfg.Cache.SearchTTL == 0 {
		cfg.Cache.SearchTTL = time.Hour
	}
	if cfg.Cache.PartialTTL == 0 {
		cfg.Cache.PartialTTL = 5 * time.Minute
	}
	if cfg.Cache.DecisionTTL == 0 {
		cfg.Cache.DecisionTTL = 24 * time.Hour
	}
	if cfg.Cache.RelatedTTL == 0 {
		cfg.Cache.RelatedTTL = 24 * time.Hour
	}
	if cfg.Cache.AnalyticsTTL == 0 {
		cfg.Cache.AnalyticsTTL = time.Hour
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = 15 * time.Minute
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.MaxConcurrency == 0 {
		cfg.Search.MaxConcurrency = 8
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 30 * time.Second
	}
	if cfg.Search.QueryLogRetention == 0 {
		cfg.Search.QueryLogRetention = 90 * 24 * time.Hour
	}
	if cfg.Analytics.SampleLimit == 0 {
		cfg.Analytics.SampleLimit = 100
	}
	if cfg.Analytics.CandidateLimit == 0 {
		cfg.Analytics.CandidateLimit = 500
	}
	if cfg.Analytics.MinSimilarity == 0 {
		cfg.Analytics.MinSimilarity = 0.25
	}
	applySourceDefaults(&cfg.Sources.Federal)
	for code, src := range cfg.Sources.Cantons {
		applySourceDefaults(&src)
		cfg.Sources.Cantons[code] = src
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "entscheid"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
	if cfg.MCP.Name == "" {
		cfg.MCP.Name = "entscheid"
	}
	if cfg.MCP.Version == "" {
		cfg.MCP.Version = "dev"
	}
}

func applySourceDefaults(s *SourceConfig) {
	if s.Timeout == 0 {
		s.Timeout = 15 * time.Second
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.InitialBackoff == 0 {
		s.InitialBackoff = 500 * time.Millisecond
	}
	if s.MaxBackoff == 0 {
		s.MaxBackoff = 10 * time.Second
	}
}
