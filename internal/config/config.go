package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// AllOffices disables office filtering in VTEC_OFFICE_FILTER.
const AllOffices = "*"

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// VTEC decoding and storage.
	SiteID               string
	RecordsFile          string
	OfficeFilter         []string
	FilterDisabled       bool
	BackupsEnabled       bool
	BackupRetention      time.Duration
	PartnerNotifications bool
	LocalZones           []string

	// Localization.
	LocalizationRoot string
	ConfigCacheSize  int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	retention, err := time.ParseDuration(sharedcfg.EnvOrDefault("VTEC_BACKUP_RETENTION", "672h"))
	if err != nil || retention <= 0 {
		return nil, errors.New("invalid VTEC_BACKUP_RETENTION")
	}

	backups, err := parseBool("VTEC_BACKUPS_ENABLED", true)
	if err != nil {
		return nil, err
	}
	notify, err := parseBool("VTEC_PARTNER_NOTIFICATIONS", false)
	if err != nil {
		return nil, err
	}

	cacheSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("CONFIG_CACHE_SIZE", "128"))
	if err != nil || cacheSize < 0 {
		return nil, errors.New("invalid CONFIG_CACHE_SIZE")
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-nws-products"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "vtec-changes"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-data-vtec"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SiteID:               strings.ToUpper(sharedcfg.EnvOrDefault("VTEC_SITE_ID", "KOAX")),
		RecordsFile:          sharedcfg.EnvOrDefault("VTEC_RECORDS_FILE", "data/vtec/vtecRecords.json"),
		BackupsEnabled:       backups,
		BackupRetention:      retention,
		PartnerNotifications: notify,

		LocalizationRoot: sharedcfg.EnvOrDefault("LOCALIZATION_ROOT", "localization"),
		ConfigCacheSize:  cacheSize,
	}
	cfg.OfficeFilter, cfg.FilterDisabled = ParseOffices(os.Getenv("VTEC_OFFICE_FILTER"))
	cfg.LocalZones = ParseList(os.Getenv("VTEC_LOCAL_ZONES"))

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if len(cfg.SiteID) != 4 {
		return nil, fmt.Errorf("VTEC_SITE_ID must be a 4-letter office, got %q", cfg.SiteID)
	}
	if cfg.RecordsFile == "" {
		return nil, errors.New("VTEC_RECORDS_FILE is required")
	}

	return cfg, nil
}

func parseBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

// ParseOffices splits a VTEC_OFFICE_FILTER value. "*" turns filtering off.
func ParseOffices(s string) ([]string, bool) {
	if strings.TrimSpace(s) == AllOffices {
		return nil, true
	}
	return ParseList(s), false
}

// ParseList splits a comma-separated list of office or zone ids, upper-casing
// each and dropping blanks.
func ParseList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.ToUpper(strings.TrimSpace(o)); o != "" {
			out = append(out, o)
		}
	}
	return out
}
