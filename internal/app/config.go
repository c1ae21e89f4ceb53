package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/raysh454/thumbscan/internal/catalog"
	"github.com/raysh454/thumbscan/internal/deadletter"
	"github.com/raysh454/thumbscan/internal/utils"
	"github.com/raysh454/thumbscan/internal/validator"
	"github.com/raysh454/thumbscan/internal/webclient"
)

const envPrefix = "THUMBSCAN_"

// ErrorPolicy decides what a failed metadata fetch means for the scan.
type ErrorPolicy string

const (
	// PolicySkip logs the failure, queues the id for a retry and treats the
	// video as healthy.
	PolicySkip ErrorPolicy = "skip"
	// PolicyDefect reports the video as defective.
	PolicyDefect ErrorPolicy = "defect"
	// PolicyAbort stops the scan with the error.
	PolicyAbort ErrorPolicy = "abort"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyDefect, PolicyAbort:
		return p, nil
	case "":
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want skip|defect|abort)", s)
	}
}

// Config is the runtime configuration of the scanner and its collaborators.
// It is built once at startup and passed to constructors.
type Config struct {
	// SecretKey signs listing requests. The account id lives in CatalogCfg.
	SecretKey string

	WebClientCfg webclient.Config
	CatalogCfg   catalog.Config
	ValidatorCfg validator.Config

	// Filter is the listing filter used when a scan does not bring its own.
	Filter catalog.Filter

	// Concurrency bounds parallel validations. 1 checks videos one by one.
	Concurrency int
	ErrorPolicy ErrorPolicy

	// StorageRoot holds the report database. Empty disables report history.
	StorageRoot string

	// RedisAddr enables the dead letter queue when set.
	RedisAddr       string
	DeadLetterQueue string

	// ServerAddr is the listen address of the API server.
	ServerAddr string

	LogLevel string
}

// DefaultConfig returns a Config populated with production defaults.
func DefaultConfig() *Config {
	return &Config{
		WebClientCfg:    webclient.DefaultConfig(),
		CatalogCfg:      catalog.DefaultConfig(),
		ValidatorCfg:    validator.DefaultConfig(),
		Filter:          catalog.DefaultFilter(),
		Concurrency:     1,
		ErrorPolicy:     PolicySkip,
		StorageRoot:     "~/.config/thumbscan",
		DeadLetterQueue: deadletter.DefaultQueueName,
		ServerAddr:      ":8080",
		LogLevel:        "info",
	}
}

// LoadFromEnv overlays THUMBSCAN_* variables onto cfg. Unset variables keep
// the current value.
func LoadFromEnv(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	env := func(name string) string { return envPrefix + name }

	cfg.CatalogCfg.UserID = utils.GetEnv(env("USER_ID"), cfg.CatalogCfg.UserID)
	cfg.SecretKey = utils.GetEnv(env("SECRET_KEY"), cfg.SecretKey)

	cfg.CatalogCfg.ListURL = utils.GetEnv(env("LIST_URL"), cfg.CatalogCfg.ListURL)
	cfg.CatalogCfg.PageSize = utils.EnvInt(env("PAGE_SIZE"), cfg.CatalogCfg.PageSize)
	cfg.CatalogCfg.PageDelay = utils.EnvDuration(env("PAGE_DELAY"), cfg.CatalogCfg.PageDelay)
	cfg.CatalogCfg.MaxPages = utils.EnvInt(env("MAX_PAGES"), cfg.CatalogCfg.MaxPages)
	cfg.ValidatorCfg.MetadataURL = utils.GetEnv(env("METADATA_URL"), cfg.ValidatorCfg.MetadataURL)

	cfg.WebClientCfg.Timeout = utils.EnvDuration(env("HTTP_TIMEOUT"), cfg.WebClientCfg.Timeout)
	cfg.WebClientCfg.Encoding = utils.GetEnv(env("ENCODING"), cfg.WebClientCfg.Encoding)
	cfg.WebClientCfg.UserAgent = utils.GetEnv(env("USER_AGENT"), cfg.WebClientCfg.UserAgent)

	cfg.Filter.Status = utils.GetEnv(env("STATUS"), cfg.Filter.Status)
	if cat := utils.GetEnv(env("CATEGORY_ID"), ""); cat != "" {
		cfg.Filter.CategoryID = &cat
	}
	cfg.Filter.ContainSubCate = utils.EnvBool(env("CONTAIN_SUB_CATE"), cfg.Filter.ContainSubCate)

	cfg.Concurrency = utils.EnvInt(env("CONCURRENCY"), cfg.Concurrency)
	if v := utils.GetEnv(env("ERROR_POLICY"), ""); v != "" {
		p, err := ParseErrorPolicy(v)
		if err != nil {
			return err
		}
		cfg.ErrorPolicy = p
	}

	cfg.StorageRoot = utils.GetEnv(env("STORAGE_ROOT"), cfg.StorageRoot)
	cfg.RedisAddr = utils.GetEnv(env("REDIS_ADDR"), cfg.RedisAddr)
	cfg.DeadLetterQueue = utils.GetEnv(env("DLQ_NAME"), cfg.DeadLetterQueue)
	cfg.ServerAddr = utils.GetEnv(env("ADDR"), cfg.ServerAddr)
	cfg.LogLevel = utils.GetEnv(env("LOG_LEVEL"), cfg.LogLevel)
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.CatalogCfg.UserID == "" {
		return errors.New("missing user id (THUMBSCAN_USER_ID)")
	}
	if c.SecretKey == "" {
		return errors.New("missing secret key (THUMBSCAN_SECRET_KEY)")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := ParseErrorPolicy(string(c.ErrorPolicy)); err != nil {
		return err
	}
	return nil
}

// ReportDBPath is where the report store lives, or "" when disabled.
func (c *Config) ReportDBPath() string {
	if strings.TrimSpace(c.StorageRoot) == "" {
		return ""
	}
	return filepath.Join(utils.ExpandHome(c.StorageRoot), "thumbscan.db")
}
