package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/webclient"
)

const (
	DefaultStatusFilter = "60,61"
	DefaultFilters      = "basicInfo"
)

var ErrMalformedPage = errors.New("catalog: malformed listing page")

// Filter selects which catalog entries are listed.
type Filter struct {
	Status string `json:"status,omitempty"`

	// CategoryID is omitted from the request when nil.
	CategoryID     *string `json:"categoryId,omitempty"`
	ContainSubCate bool    `json:"containSubCate"`
	Filters        string  `json:"filters,omitempty"`
}

// DefaultFilter lists published videos of every category.
func DefaultFilter() Filter {
	return Filter{
		Status:         DefaultStatusFilter,
		ContainSubCate: true,
		Filters:        DefaultFilters,
	}
}

// Page is one decoded listing response.
type Page struct {
	Items       []string
	CurrentPage int
	TotalPage   int
	TotalItems  int
}

type listEnvelope struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		PageSize    int  `json:"pageSize"`
		CurrentPage *int `json:"currentPage"`
		TotalPage   *int `json:"totalPage"`
		TotalItems  int  `json:"totalItems"`
		Contents    []struct {
			VID string `json:"vid"`
		} `json:"contents"`
	} `json:"data"`
}

// Pager walks the listing endpoint one page at a time.
type Pager struct {
	cfg    Config
	client webclient.WebClient
	signer Signer
	logger logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPager(cfg Config, client webclient.WebClient, signer Signer, logger logging.Logger) (*Pager, error) {
	if client == nil {
		return nil, errors.New("catalog: web client is required")
	}
	def := DefaultConfig()
	if cfg.ListURL == "" {
		cfg.ListURL = def.ListURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	if signer == nil {
		signer = NopSigner{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pager{
		cfg:    cfg,
		client: client,
		signer: signer,
		logger: logger.With(logging.Field{Key: "component", Value: "pager"}),
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

// ListAll returns every identifier matching f, first-seen order, without
// duplicates.
//
// A server-signalled failure aborts the listing and discards what was
// collected. Any other failure ends the walk early and returns the partial
// result with a nil error. Cancelling ctx returns ctx.Err().
func (p *Pager) ListAll(ctx context.Context, f Filter) ([]string, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	maxPage := 0

	for page := 1; ; page++ {
		if page > 1 {
			if err := p.sleep(ctx, p.cfg.PageDelay); err != nil {
				return nil, err
			}
		}

		pg, err := p.FetchPage(ctx, f, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if se, ok := webclient.AsServerError(err); ok {
				p.logger.Error("listing rejected by server",
					logging.Field{Key: "page", Value: page},
					logging.Field{Key: "code", Value: se.Code},
					logging.Field{Key: "message", Value: se.Message})
				return nil, err
			}
			p.logger.Error("listing interrupted, returning partial result",
				logging.Field{Key: "page", Value: page},
				logging.Field{Key: "collected", Value: len(ids)},
				logging.Field{Key: "error", Value: err})
			return ids, nil
		}

		for _, id := range pg.Items {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		p.logger.Debug("fetched listing page",
			logging.Field{Key: "page", Value: pg.CurrentPage},
			logging.Field{Key: "total_pages", Value: pg.TotalPage},
			logging.Field{Key: "items", Value: len(pg.Items)})

		if pg.CurrentPage == 0 || pg.TotalPage == 0 || pg.CurrentPage >= pg.TotalPage {
			break
		}
		// Pinned to the first reported page count.
		if maxPage == 0 {
			maxPage = pg.TotalPage
		}
		if page >= maxPage {
			break
		}
		if len(pg.Items) == 0 {
			p.logger.Warn("empty listing page before the last page",
				logging.Field{Key: "page", Value: page},
				logging.Field{Key: "total_pages", Value: maxPage})
		}
		if p.cfg.MaxPages > 0 && page >= p.cfg.MaxPages {
			p.logger.Warn("page cap reached", logging.Field{Key: "max_pages", Value: p.cfg.MaxPages})
			break
		}
	}

	p.logger.Info("listing complete", logging.Field{Key: "total", Value: len(ids)})
	return ids, nil
}

// FetchPage signs and fetches a single page.
func (p *Pager) FetchPage(ctx context.Context, f Filter, page int) (*Page, error) {
	params := p.params(f, page)
	headers, err := p.signer.Sign(params)
	if err != nil {
		return nil, fmt.Errorf("sign listing request: %w", err)
	}

	body, err := p.client.Get(ctx, p.cfg.ListURL, params, headers, p.cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return p.decode(body)
}

func (p *Pager) params(f Filter, page int) url.Values {
	status := f.Status
	if status == "" {
		status = DefaultStatusFilter
	}
	filters := f.Filters
	if filters == "" {
		filters = DefaultFilters
	}

	v := url.Values{}
	v.Set("userid", p.cfg.UserID)
	v.Set("ptime", strconv.FormatInt(p.now().UnixMilli(), 10))
	v.Set("filters", filters)
	if f.CategoryID != nil {
		v.Set("categoryId", *f.CategoryID)
	}
	v.Set("containSubCate", strconv.FormatBool(f.ContainSubCate))
	v.Set("status", status)
	v.Set("pageSize", strconv.Itoa(p.cfg.PageSize))
	v.Set("page", strconv.Itoa(page))
	return v
}

func (p *Pager) decode(body string) (*Page, error) {
	var env listEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}
	if env.Code != 200 {
		return nil, &webclient.ServerError{
			Code:       env.Code,
			Message:    env.Message,
			StatusCode: 200,
			URL:        p.cfg.ListURL,
		}
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPage)
	}

	pg := &Page{TotalItems: env.Data.TotalItems}
	if env.Data.CurrentPage != nil {
		pg.CurrentPage = *env.Data.CurrentPage
	}
	if env.Data.TotalPage != nil {
		pg.TotalPage = *env.Data.TotalPage
	}
	for _, c := range env.Data.Contents {
		if c.VID != "" {
			pg.Items = append(pg.Items, c.VID)
		}
	}
	return pg, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
