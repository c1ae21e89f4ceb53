package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/raysh454/thumbscan/internal/catalog"
	"github.com/raysh454/thumbscan/internal/deadletter"
	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/store"
	"github.com/raysh454/thumbscan/internal/validator"
	"github.com/raysh454/thumbscan/internal/webclient"
)

// Application is the runtime state container: config plus the components
// built from it. Pass it to the CLI and the API server rather than using
// package-level variables.
type Application struct {
	Config *Config
	Logger logging.Logger

	Transport   *webclient.Transport
	Pager       *catalog.Pager
	Validator   *validator.Validator
	Scanner     *Scanner
	Store       *store.Store
	DeadLetters *deadletter.Queue
	Orch        *Orchestrator
}

// NewApplication builds every component from cfg. httpClient may be nil.
func NewApplication(ctx context.Context, cfg *Config, logger logging.Logger, httpClient *http.Client) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("application: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("thumbscan")
	}

	a := &Application{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.Transport = webclient.NewTransport(cfg.WebClientCfg, logger, httpClient)

	var err error
	a.Pager, err = catalog.NewPager(cfg.CatalogCfg, a.Transport, catalog.NewHashSigner(cfg.SecretKey), logger)
	if err != nil {
		return nil, err
	}
	a.Validator, err = validator.New(cfg.ValidatorCfg, a.Transport, logger)
	if err != nil {
		return nil, err
	}

	a.DeadLetters, err = deadletter.Dial(ctx, cfg.RedisAddr, cfg.DeadLetterQueue, logger)
	if err != nil {
		return nil, err
	}

	if path := cfg.ReportDBPath(); path != "" {
		a.Store, err = store.Open(path, logger)
		if err != nil {
			return nil, err
		}
	}

	var sink deadletter.Sink
	if a.DeadLetters.Enabled() {
		sink = a.DeadLetters
	}
	a.Scanner, err = NewScanner(a.Pager, a.Validator, ScannerOptions{
		Concurrency: cfg.Concurrency,
		ErrorPolicy: cfg.ErrorPolicy,
		DeadLetters: sink,
	}, logger)
	if err != nil {
		return nil, err
	}

	var reports ReportStore
	if a.Store != nil {
		reports = a.Store
	}
	a.Orch = NewOrchestrator(cfg, a.Scanner, reports, a.DeadLetters, logger)

	logger.Info("application initialized",
		logging.Field{Key: "list_url", Value: cfg.CatalogCfg.ListURL},
		logging.Field{Key: "concurrency", Value: cfg.Concurrency},
		logging.Field{Key: "error_policy", Value: string(cfg.ErrorPolicy)},
		logging.Field{Key: "history", Value: a.Store != nil},
		logging.Field{Key: "dead_letters", Value: a.DeadLetters.Enabled()})
	ok = true
	return a, nil
}

// Close stops running jobs and releases every component.
func (a *Application) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Orch != nil {
		errs = append(errs, a.Orch.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.DeadLetters != nil {
		errs = append(errs, a.DeadLetters.Close())
	}
	if a.Transport != nil {
		errs = append(errs, a.Transport.Close())
	}
	return errors.Join(errs...)
}
