package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/raysh454/thumbscan/internal/app"
)

const (
	CommandScan    = "scan"
	CommandServe   = "serve"
	CommandRedrive = "redrive"
)

// CLIArgs are the command-line arguments of one invocation. Zero values mean
// "keep what the environment configured"; only flags given explicitly are
// applied.
type CLIArgs struct {
	// Command is scan, serve or redrive. Defaults to scan.
	Command string

	Concurrency int
	ErrorPolicy string
	PageSize    int
	MaxPages    int

	Status     string
	CategoryID string
	NoSubCate  bool

	// OutFile receives the comma-joined defect list after a scan.
	OutFile string

	StorageRoot string
	RedisAddr   string
	Addr        string
	LogLevel    string

	// RawArgs is the args slice as given.
	RawArgs []string

	set map[string]bool
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	out := &CLIArgs{Command: CommandScan, RawArgs: args, set: make(map[string]bool)}

	rest := args
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		out.Command = rest[0]
		rest = rest[1:]
	}
	switch out.Command {
	case CommandScan, CommandServe, CommandRedrive:
	default:
		return nil, fmt.Errorf("unknown command %q (want scan|serve|redrive)", out.Command)
	}

	fs := flag.NewFlagSet("thumbscan "+out.Command, flag.ContinueOnError)
	fs.IntVar(&out.Concurrency, "concurrency", 0, "Parallel thumbnail checks (0=use config)")
	fs.StringVar(&out.ErrorPolicy, "error-policy", "", "What a failed metadata fetch means: skip|defect|abort")
	fs.IntVar(&out.PageSize, "page-size", 0, "Listing page size (0=use config)")
	fs.IntVar(&out.MaxPages, "max-pages", 0, "Stop listing after this many pages (0=no limit)")
	fs.StringVar(&out.Status, "status", "", "Listing status filter")
	fs.StringVar(&out.CategoryID, "category", "", "Only list this category id")
	fs.BoolVar(&out.NoSubCate, "no-subcategories", false, "Exclude subcategories of -category")
	fs.StringVar(&out.OutFile, "out", "", "Write the defect list to this file")
	fs.StringVar(&out.StorageRoot, "storage", "", "Report history directory")
	fs.StringVar(&out.RedisAddr, "redis", "", "Redis address for the dead letter queue")
	fs.StringVar(&out.Addr, "addr", "", "Listen address for serve")
	fs.StringVar(&out.LogLevel, "log-level", "", "debug|info|warn|error")

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(rest); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { out.set[f.Name] = true })

	if out.set["concurrency"] && out.Concurrency < 1 {
		return nil, fmt.Errorf("-concurrency must be at least 1")
	}
	if out.set["error-policy"] {
		if _, err := app.ParseErrorPolicy(out.ErrorPolicy); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// IsSet reports whether the named flag was given.
func (a *CLIArgs) IsSet(name string) bool { return a.set[name] }

// Apply overlays the explicitly given flags onto cfg.
func (a *CLIArgs) Apply(cfg *app.Config) error {
	if a.IsSet("concurrency") {
		cfg.Concurrency = a.Concurrency
	}
	if a.IsSet("error-policy") {
		p, err := app.ParseErrorPolicy(a.ErrorPolicy)
		if err != nil {
			return err
		}
		cfg.ErrorPolicy = p
	}
	if a.IsSet("page-size") {
		cfg.CatalogCfg.PageSize = a.PageSize
	}
	if a.IsSet("max-pages") {
		cfg.CatalogCfg.MaxPages = a.MaxPages
	}
	if a.IsSet("status") {
		cfg.Filter.Status = a.Status
	}
	if a.IsSet("category") {
		id := a.CategoryID
		cfg.Filter.CategoryID = &id
	}
	if a.IsSet("no-subcategories") {
		cfg.Filter.ContainSubCate = !a.NoSubCate
	}
	if a.IsSet("storage") {
		cfg.StorageRoot = a.StorageRoot
	}
	if a.IsSet("redis") {
		cfg.RedisAddr = a.RedisAddr
	}
	if a.IsSet("addr") {
		cfg.ServerAddr = a.Addr
	}
	if a.IsSet("log-level") {
		cfg.LogLevel = a.LogLevel
	}
	return nil
}
