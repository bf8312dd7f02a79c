package services

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStorageDriver = "storage.driver"
	keyStoragePath   = "storage.path"
	keyStorageDSN    = "storage.dsn"

	keyCatalogBaseURL    = "catalog.base_url"
	keyCatalogAPIKey     = "catalog.api_key"
	keyCatalogAccessName = "catalog.access_name"
	keyCatalogChanges    = "catalog.changes_interval"
	keyCatalogOffers     = "catalog.offers_interval"
	keyCatalogTimeout    = "catalog.timeout"

	keyProvider     = "translation.provider"
	keySourceLang   = "translation.source_language"
	keyTargetLang   = "translation.target_language"
	keyDeepLAPIKey  = "translation.deepl_api_key"
	keyYandexAPIKey = "translation.yandex_api_key"
	keyYandexFolder = "translation.yandex_folder_id"
	keyOpenAIAPIKey = "translation.openai_api_key"
	keyOpenAIModel  = "translation.openai_model"

	keyRetryMaxAttempts  = "retry.max_attempts"
	keyRetryInterval     = "retry.interval"
	keyRetryMultiplier   = "retry.multiplier"
	keyRetryMaxInterval  = "retry.max_interval"
	keyRetryTotalTimeout = "retry.total_timeout"
	keyTestMode          = "retry.test_mode"

	keyNormBatch    = "batch.normalization_size"
	keyMaxSkips     = "normalization.max_skips"
	keyMaxIter      = "enrichment.max_iterations"
	keyEnrichBatch  = "enrichment.batch_size"
	keyLeaseTTL     = "lease.ttl"
	keyServerAddr   = "server.addr"
	keySchedEnabled = "scheduler.enabled"

	keySchedInterval     = "scheduler.interval"
	keySchedFailureDelay = "scheduler.failure_delay"
)

// Environment variables that overlay file values.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	envDBDriver          = "DB_DRIVER"
	envDBPath            = "DB_PATH"
	envDBDSN             = "DB_DSN"
	envDBHost            = "DB_HOST"
	envDBPort            = "DB_PORT"
	envDBUser            = "DB_USER"
	envDBPassword        = "DB_PASSWORD"
	envDBName            = "DB_NAME"
	envCatalogBaseURL    = "CATALOG_BASE_URL"
	envCatalogAPIKey     = "CATALOG_API_KEY"
	envCatalogAccessName = "CATALOG_ACCESS_NAME"
	envProvider          = "TRANSLATION_PROVIDER"
	envDeepLAPIKey       = "DEEPL_TRANSLATE_API_KEY"
	envYandexAPIKey      = "YANDEX_TRANSLATE_API_KEY"
	envYandexFolder      = "YANDEX_FOLDER_ID"
	envOpenAIAPIKey      = "OPENAI_API_KEY"
	envRetryMaxAttempts  = "RETRY_MAX_ATTEMPTS"
	envRetryInterval     = "RETRY_INTERVAL_SECONDS"
	envRetryTotalTimeout = "RETRY_TOTAL_TIMEOUT_SECONDS"
	envTestMode          = "TEST_MODE"
)

// SettingsService resolves typed settings from the config store and the
// environment. Precedence is defaults, then the config file, then environment.
type SettingsService struct {
	configStore driven.ConfigStore
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a settings service reading the process environment.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		lookupEnv:   os.LookupEnv,
	}
}

// LoadSettings resolves settings from configStore and the process environment.
func LoadSettings(configStore driven.ConfigStore) (domain.Settings, error) {
	s, err := NewSettingsService(configStore).Get()
	if err != nil {
		return domain.Settings{}, err
	}
	return *s, nil
}

// Get retrieves current settings with defaults applied.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	settings.TestMode = s.getBool(keyTestMode, envTestMode, false)
	if settings.TestMode {
		settings.Retry = domain.TestRetryPolicy()
	}

	settings.Storage.Driver = strings.ToLower(s.getString(keyStorageDriver, envDBDriver, settings.Storage.Driver))
	settings.Storage.Path = s.getString(keyStoragePath, envDBPath, "")
	settings.Storage.DSN = s.getString(keyStorageDSN, envDBDSN, "")
	if settings.Storage.DSN == "" {
		settings.Storage.DSN = s.dsnFromParts()
	}
	switch settings.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return nil, fmt.Errorf("%w: storage driver %q", domain.ErrUnsupportedType, settings.Storage.Driver)
	}

	c := &settings.Catalog
	c.BaseURL = strings.TrimRight(s.getString(keyCatalogBaseURL, envCatalogBaseURL, c.BaseURL), "/")
	c.APIKey = s.getString(keyCatalogAPIKey, envCatalogAPIKey, "")
	c.AccessName = s.getString(keyCatalogAccessName, envCatalogAccessName, "")
	c.ChangesInterval = s.getDuration(keyCatalogChanges, c.ChangesInterval)
	c.OffersInterval = s.getDuration(keyCatalogOffers, c.OffersInterval)
	c.Timeout = s.getDuration(keyCatalogTimeout, c.Timeout)

	tr := &settings.Translation
	if raw := s.getString(keyProvider, envProvider, ""); raw != "" {
		p, ok := domain.ParseProviderName(raw)
		if !ok {
			return nil, fmt.Errorf("%w: translation provider %q", domain.ErrUnsupportedType, raw)
		}
		tr.Provider = p
	}
	tr.SourceLanguage = s.getString(keySourceLang, "", tr.SourceLanguage)
	tr.TargetLanguage = s.getString(keyTargetLang, "", tr.TargetLanguage)
	tr.DeepLAPIKey = s.getString(keyDeepLAPIKey, envDeepLAPIKey, "")
	tr.YandexAPIKey = s.getString(keyYandexAPIKey, envYandexAPIKey, "")
	tr.YandexFolder = s.getString(keyYandexFolder, envYandexFolder, "")
	tr.OpenAIAPIKey = s.getString(keyOpenAIAPIKey, envOpenAIAPIKey, "")
	tr.OpenAIModel = s.getString(keyOpenAIModel, "", tr.OpenAIModel)

	r := &settings.Retry
	r.MaxAttempts = s.getInt(keyRetryMaxAttempts, envRetryMaxAttempts, r.MaxAttempts)
	if interval, ok := s.getSeconds(keyRetryInterval, envRetryInterval); ok {
		r.Backoff = interval
		r.RateLimitBackoff = interval
	}
	r.Multiplier = s.getFloat(keyRetryMultiplier, r.Multiplier)
	r.MaxBackoff = s.getDuration(keyRetryMaxInterval, r.MaxBackoff)
	if total, ok := s.getSeconds(keyRetryTotalTimeout, envRetryTotalTimeout); ok {
		r.TotalTimeout = total
	}

	settings.Normalization.BatchSize = s.getInt(keyNormBatch, "", settings.Normalization.BatchSize)
	settings.Normalization.MaxSkips = s.getInt(keyMaxSkips, "", settings.Normalization.MaxSkips)
	settings.Enrichment.MaxIterations = s.getInt(keyMaxIter, "", settings.Enrichment.MaxIterations)
	settings.Enrichment.BatchSize = s.getInt(keyEnrichBatch, "", settings.Enrichment.BatchSize)
	settings.Lease.TTL = s.getDuration(keyLeaseTTL, settings.Lease.TTL)
	settings.Server.Addr = s.getString(keyServerAddr, "", settings.Server.Addr)

	return &settings, nil
}

// GetScheduleConfig returns the serve-mode schedule.
func (s *SettingsService) GetScheduleConfig() domain.ScheduleConfig {
	cfg := domain.DefaultScheduleConfig()
	if _, exists := s.configStore.Get(keySchedEnabled); exists {
		cfg.Enabled = s.configStore.GetBool(keySchedEnabled)
	}
	cfg.Interval = s.getDuration(keySchedInterval, cfg.Interval)
	cfg.FailureDelay = s.getDuration(keySchedFailureDelay, cfg.FailureDelay)
	return cfg
}

// dsnFromParts builds a postgres DSN from DB_HOST and friends.
func (s *SettingsService) dsnFromParts() string {
	host := s.env(envDBHost)
	if host == "" {
		return ""
	}
	port := s.env(envDBPort)
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + s.env(envDBName),
	}
	if user := s.env(envDBUser); user != "" {
		if pw := s.env(envDBPassword); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

// Helper methods for reading config with defaults. An empty env name
// means the key has no environment override.

func (s *SettingsService) env(name string) string {
	if name == "" {
		return ""
	}
	v, ok := s.lookupEnv(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (s *SettingsService) getString(key, envName, defaultVal string) string {
	if v := s.env(envName); v != "" {
		return v
	}
	if val := s.configStore.GetString(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getInt(key, envName string, defaultVal int) int {
	if v := s.env(envName); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		logger.Warn("Ignoring %s=%q: not a positive integer", envName, v)
	}
	if val := s.configStore.GetInt(key); val > 0 {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getBool(key, envName string, defaultVal bool) bool {
	if v := s.env(envName); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

// getFloat accepts TOML floats and integers.
func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		if v >= 1 {
			return v
		}
	case int64:
		if v >= 1 {
			return float64(v)
		}
	case int:
		if v >= 1 {
			return float64(v)
		}
	}
	logger.Warn("Ignoring %s = %v: multiplier must be at least 1", key, val)
	return defaultVal
}

// getDuration reads a duration string such as "30s" or "2h".
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	str := s.configStore.GetString(key)
	if str == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(str)
	if err != nil || d <= 0 {
		logger.Warn("Ignoring %s = %q: not a positive duration", key, str)
		return defaultVal
	}
	return d
}

// getSeconds reads a duration given as whole seconds in the environment,
// or as a duration string in the config file.
func (s *SettingsService) getSeconds(key, envName string) (time.Duration, bool) {
	if v := s.env(envName); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second, true
		}
		logger.Warn("Ignoring %s=%q: not a positive number of seconds", envName, v)
	}
	if d := s.getDuration(key, 0); d > 0 {
		return d, true
	}
	return 0, false
}
