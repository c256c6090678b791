package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultContentfulBaseURL = "https://cdn.contentful.com"

	maxEntriesBody = 10 << 20
)

// SourceItem is one product as published by the content source. Absent
// fields are nil.
type SourceItem struct {
	ExternalID string
	SKU        *string
	Name       string
	Brand      *string
	Model      *string
	Category   *string
	Color      *string
	Price      *decimal.Decimal
	Currency   *string
	Stock      *int

	// Err is set when the entry could not be decoded. ToProduct rejects
	// such items.
	Err error
}

type ProductSource interface {
	FetchProducts(ctx context.Context) ([]SourceItem, error)
}

type ContentfulOptions struct {
	BaseURL     string
	SpaceID     string
	Environment string
	AccessToken string
	ContentType string
	Limit       int
	Timeout     time.Duration

	// RateLimit is the maximum number of requests per second. Zero disables it.
	RateLimit float64

	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

type ContentfulClient struct {
	entriesURL string
	token      string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]SourceItem]
}

func NewContentfulClient(o ContentfulOptions) *ContentfulClient {
	if o.BaseURL == "" {
		o.BaseURL = DefaultContentfulBaseURL
	}
	if o.Environment == "" {
		o.Environment = "master"
	}
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}

	q := url.Values{}
	q.Set("content_type", o.ContentType)
	q.Set("limit", strconv.Itoa(o.Limit))

	entriesURL := fmt.Sprintf("%s/spaces/%s/environments/%s/entries?%s",
		strings.TrimRight(o.BaseURL, "/"),
		url.PathEscape(o.SpaceID),
		url.PathEscape(o.Environment),
		q.Encode(),
	)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.RateLimit), 1)
	}

	failures := o.BreakerFailures
	return &ContentfulClient{
		entriesURL: entriesURL,
		token:      o.AccessToken,
		client:     &http.Client{Timeout: o.Timeout},
		limiter:    limiter,
		breaker: gobreaker.NewCircuitBreaker[[]SourceItem](gobreaker.Settings{
			Name:        "contentful",
			MaxRequests: 1,
			Timeout:     o.BreakerOpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				// the caller giving up says nothing about the source
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (c *ContentfulClient) FetchProducts(ctx context.Context) ([]SourceItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", ErrExternalSourceUnavailable, err)
	}

	items, err := c.breaker.Execute(func() ([]SourceItem, error) {
		return c.fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrExternalSourceUnavailable, err)
	}
	return items, err
}

func (c *ContentfulClient) fetch(ctx context.Context) ([]SourceItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.entriesURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status=%d", ErrExternalSourceUnavailable, resp.StatusCode)
	}

	var body entriesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEntriesBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode entries: %w", ErrExternalSourceUnavailable, err)
	}

	out := make([]SourceItem, 0, len(body.Items))
	for _, raw := range body.Items {
		out = append(out, decodeEntry(raw))
	}
	return out, nil
}

// entriesResponse keeps entries raw so one malformed entry cannot fail the page.
type entriesResponse struct {
	Items []json.RawMessage `json:"items"`
}

type entryIDs struct {
	Sys struct {
		ID string `json:"id"`
	} `json:"sys"`
	ID string `json:"id"`
}

func (e entryIDs) externalID() string {
	if e.Sys.ID != "" {
		return e.Sys.ID
	}
	return e.ID
}

type entry struct {
	entryIDs
	Fields entryFields `json:"fields"`
}

func decodeEntry(raw json.RawMessage) SourceItem {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		var ids entryIDs
		_ = json.Unmarshal(raw, &ids)
		return SourceItem{ExternalID: ids.externalID(), Err: fmt.Errorf("decode entry: %w", err)}
	}
	return e.sourceItem()
}

type entryFields struct {
	SKU      *looseString     `json:"sku"`
	Name     string           `json:"name"`
	Brand    *string          `json:"brand"`
	Model    *string          `json:"model"`
	Category *string          `json:"category"`
	Color    *string          `json:"color"`
	Price    *decimal.Decimal `json:"price"`
	Currency *string          `json:"currency"`
	Stock    *int             `json:"stock"`
}

func (e entry) sourceItem() SourceItem {
	f := e.Fields
	return SourceItem{
		ExternalID: e.externalID(),
		SKU:        f.SKU.ptr(),
		Name:       f.Name,
		Brand:      f.Brand,
		Model:      f.Model,
		Category:   f.Category,
		Color:      f.Color,
		Price:      f.Price,
		Currency:   f.Currency,
		Stock:      f.Stock,
	}
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("sku: want string or number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

func (s *looseString) ptr() *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// ToProduct maps a source item onto a new product. Undecodable items and
// items without an external id or a name are rejected.
func ToProduct(it SourceItem) (Product, error) {
	if it.Err != nil {
		return Product{}, invalid("fields", it.Err.Error())
	}
	if strings.TrimSpace(it.ExternalID) == "" {
		return Product{}, invalid("externalId", "required")
	}
	if strings.TrimSpace(it.Name) == "" {
		return Product{}, invalid("name", "required")
	}

	p := Product{
		ExternalID: it.ExternalID,
		SKU:        it.SKU,
		Name:       it.Name,
		Brand:      it.Brand,
		Model:      it.Model,
		Category:   it.Category,
		Color:      it.Color,
		Currency:   it.Currency,
	}
	if it.Price != nil {
		p.Price = decimal.NewNullDecimal(it.Price.Round(2))
	}
	if it.Stock != nil {
		p.Stock = *it.Stock
	}
	return p, nil
}
