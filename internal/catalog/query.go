package catalog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"ProductCatalog/internal/cache"
)

const (
	DefaultPage  = 1
	DefaultLimit = 5
	MaxLimit     = 100
)

// CatalogNamespace owns every cached catalog page.
const CatalogNamespace = cache.Namespace("catalog:products")

type Filter struct {
	Name     string           `json:"name" validate:"max=200"`
	Category string           `json:"category" validate:"max=200"`
	MinPrice *decimal.Decimal `json:"minPrice"`
	MaxPrice *decimal.Decimal `json:"maxPrice"`
}

type ListQuery struct {
	Page   int    `json:"page" validate:"min=1"`
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Filter Filter `json:"filter"`
}

// Normalize fills unset pagination with defaults and trims filter text.
func (q ListQuery) Normalize() ListQuery {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	q.Filter.Name = strings.TrimSpace(q.Filter.Name)
	q.Filter.Category = strings.TrimSpace(q.Filter.Category)
	return q
}

// Offset is exact for every query that passes Validate.
func (q ListQuery) Offset() int { return (q.Page - 1) * q.Limit }

// maxPage is the last page whose offset fits in an int.
func maxPage(limit int) int {
	if limit < 1 {
		return math.MaxInt
	}
	return math.MaxInt / limit
}

func (q ListQuery) Validate() error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	ve := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		ve.Fields[fe.Field()] = "failed on rule: " + rule
	}
	return ve
}

// CacheKey is stable for equal queries: the filter is hashed from a
// fixed-order encoding in which absent fields are null.
func (q ListQuery) CacheKey() string {
	return CatalogNamespace.Key(
		"p"+strconv.Itoa(q.Page),
		"l"+strconv.Itoa(q.Limit),
		q.Filter.fingerprint(),
	)
}

type canonicalFilter struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	MinPrice *string `json:"minPrice"`
	MaxPrice *string `json:"maxPrice"`
}

func (f Filter) fingerprint() string {
	c := canonicalFilter{
		Name:     nonEmpty(f.Name),
		Category: nonEmpty(f.Category),
		MinPrice: decimalString(f.MinPrice),
		MaxPrice: decimalString(f.MaxPrice),
	}
	// Marshalling a struct of string pointers cannot fail.
	b, _ := json.Marshal(c)
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateFilter, Filter{})
	v.RegisterStructValidation(validatePage, ListQuery{})
	return v
}

func validatePage(sl validator.StructLevel) {
	q := sl.Current().Interface().(ListQuery)

	if last := maxPage(q.Limit); q.Page > last {
		sl.ReportError(q.Page, "page", "Page", "max", strconv.Itoa(last))
	}
}

func validateFilter(sl validator.StructLevel) {
	f := sl.Current().Interface().(Filter)

	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		sl.ReportError(f.MinPrice, "minPrice", "MinPrice", "gte", "0")
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		sl.ReportError(f.MaxPrice, "maxPrice", "MaxPrice", "gte", "0")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		sl.ReportError(f.MaxPrice, "maxPrice", "MaxPrice", "gtefield", "minPrice")
	}
}
