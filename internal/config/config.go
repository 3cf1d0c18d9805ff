package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

const defaultVariables = "MSLPRESSURE=MSLP,CLSWIND_DIREC=WDIR10,CLSWIND_SPEED=WSPD10," +
	"CLSU_RAF_MOD_XFU=URAF,CLSV_RAF_MOD_XFU=VRAF,CLSTEMPERATURE=T2m"

// Config holds all service settings, populated from environment variables.
type Config struct {
	BaseURL       string
	RunDirs       []string
	ArchivePrefix string
	Variables     []domain.Variable

	WorkDir        string
	OutputDir      string
	OutputPrefix   string
	OutputExt      string
	RetentionCount int

	BBox domain.BBox
	DX   float64
	DY   float64

	Wgrib2Bin         string
	Bzip2Bin          string
	WorkerConcurrency int

	ConnectTimeout  time.Duration
	TransferTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RefreshInterval time.Duration

	// Kafka publish notifications; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Object-store mirror; disabled when MinioEndpoint is empty.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

// Grid returns the configured target grid.
func (c *Config) Grid() domain.Grid {
	return domain.Grid{BBox: c.BBox, DX: c.DX, DY: c.DY}
}

// KafkaEnabled reports whether publish notifications are configured.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// MinioEnabled reports whether the object-store mirror is configured.
func (c *Config) MinioEnabled() bool { return c.MinioEndpoint != "" }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	connectTimeout, err := parseDuration("HTTP_CONNECT_TIMEOUT", "30s", false)
	if err != nil {
		return nil, err
	}
	transferTimeout, err := parseDuration("HTTP_TRANSFER_TIMEOUT", "60s", false)
	if err != nil {
		return nil, err
	}
	refresh, err := parseDuration("REFRESH_INTERVAL", "0s", true)
	if err != nil {
		return nil, err
	}

	bbox, err := parseBBox()
	if err != nil {
		return nil, err
	}
	dx, err := parsePositiveFloat("GRID_DX", "0.02")
	if err != nil {
		return nil, err
	}
	dy, err := parsePositiveFloat("GRID_DY", "0.02")
	if err != nil {
		return nil, err
	}

	retention, err := parsePositiveInt("RETENTION_COUNT", 3)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("WORKER_CONCURRENCY", 2)
	if err != nil {
		return nil, err
	}

	variables, err := loadVariables()
	if err != nil {
		return nil, err
	}

	minioSSL := false
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		minioSSL, err = strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("invalid MINIO_USE_SSL")
		}
	}

	// Notifications stay disabled unless brokers are given.
	var kafkaBrokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		kafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":" + sharedcfg.EnvOrDefault("PORT", "8080")
	}

	cfg := &Config{
		BaseURL:       strings.TrimRight(sharedcfg.EnvOrDefault("BASE_URL", "https://opendata.chmi.cz/meteorology/weather/nwp_aladin/Lambert_2.3km"), "/"),
		RunDirs:       splitList(sharedcfg.EnvOrDefault("RUN_DIRS", "00,06,12,18")),
		ArchivePrefix: sharedcfg.EnvOrDefault("ARCHIVE_PREFIX", "ALADLAMB4opendata"),
		Variables:     variables,

		WorkDir:        sharedcfg.EnvOrDefault("WORK_DIR", "./tmp/aladin"),
		OutputDir:      sharedcfg.EnvOrDefault("OUTDIR", "./data"),
		OutputPrefix:   sharedcfg.EnvOrDefault("OUTPUT_PREFIX", "aladin_adriacenter"),
		OutputExt:      strings.TrimPrefix(sharedcfg.EnvOrDefault("OUTPUT_EXT", "grb2"), "."),
		RetentionCount: retention,

		BBox: bbox,
		DX:   dx,
		DY:   dy,

		Wgrib2Bin:         sharedcfg.EnvOrDefault("WGRIB2_BIN", "wgrib2"),
		Bzip2Bin:          sharedcfg.EnvOrDefault("BZIP2_BIN", "bzip2"),
		WorkerConcurrency: concurrency,

		ConnectTimeout:  connectTimeout,
		TransferTimeout: transferTimeout,

		HTTPAddr:        httpAddr,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RefreshInterval: refresh,

		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "aladin-runs"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "aladin"),
		MinioRegion:    sharedcfg.EnvOrDefault("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    minioSSL,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("BASE_URL is required")
	}
	if len(c.RunDirs) == 0 {
		return errors.New("RUN_DIRS is required")
	}
	if c.ArchivePrefix == "" {
		return errors.New("ARCHIVE_PREFIX is required")
	}
	if c.OutputPrefix == "" || c.OutputExt == "" {
		return errors.New("OUTPUT_PREFIX and OUTPUT_EXT are required")
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}
	if c.MinioEnabled() {
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return errors.New("MINIO_ENDPOINT is set but MINIO_ACCESS_KEY or MINIO_SECRET_KEY is not")
		}
		if strings.Contains(c.MinioEndpoint, "://") {
			return fmt.Errorf("MINIO_ENDPOINT must not include scheme: %q", c.MinioEndpoint)
		}
	}
	return nil
}

func parseBBox() (domain.BBox, error) {
	var vals [4]float64
	keys := [4]string{"BBOX_WEST", "BBOX_EAST", "BBOX_SOUTH", "BBOX_NORTH"}
	defaults := [4]string{"13.0", "17.5", "42.5", "44.5"}
	for i, key := range keys {
		v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, defaults[i]), 64)
		if err != nil {
			return domain.BBox{}, fmt.Errorf("invalid %s", key)
		}
		vals[i] = v
	}
	bbox := domain.BBox{West: vals[0], East: vals[1], South: vals[2], North: vals[3]}
	if err := bbox.Validate(); err != nil {
		return domain.BBox{}, fmt.Errorf("invalid BBOX: %w", err)
	}
	return bbox, nil
}

// loadVariables reads the variable table from VARIABLES_FILE (YAML) when set,
// otherwise from the VARIABLES list of code=name pairs.
func loadVariables() ([]domain.Variable, error) {
	var vars []domain.Variable
	if path := os.Getenv("VARIABLES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read VARIABLES_FILE: %w", err)
		}
		var doc struct {
			Variables []domain.Variable `yaml:"variables"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse VARIABLES_FILE: %w", err)
		}
		vars = doc.Variables
	} else {
		for _, pair := range splitList(sharedcfg.EnvOrDefault("VARIABLES", defaultVariables)) {
			code, name, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid VARIABLES entry %q: want CODE=NAME", pair)
			}
			vars = append(vars, domain.Variable{Code: strings.TrimSpace(code), Name: strings.TrimSpace(name)})
		}
	}

	if len(vars) == 0 {
		return nil, errors.New("VARIABLES is required")
	}
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if v.Code == "" || v.Name == "" {
			return nil, fmt.Errorf("invalid VARIABLES entry %q=%q", v.Code, v.Name)
		}
		if seen[v.Code] {
			return nil, fmt.Errorf("duplicate VARIABLES code %q", v.Code)
		}
		seen[v.Code] = true
	}
	return vars, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
