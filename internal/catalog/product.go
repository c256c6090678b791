package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a row of the catalog. A non-nil DeletedAt marks it soft-deleted.
type Product struct {
	ID         string              `json:"id"`
	ExternalID string              `json:"externalId"`
	SKU        *string             `json:"sku"`
	Name       string              `json:"name"`
	Brand      *string             `json:"brand"`
	Model      *string             `json:"model"`
	Category   *string             `json:"category"`
	Color      *string             `json:"color"`
	Price      decimal.NullDecimal `json:"price"`
	Currency   *string             `json:"currency"`
	Stock      int                 `json:"stock"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	DeletedAt  *time.Time          `json:"deletedAt,omitempty"`
}

// Attributes are the fields a sync is allowed to overwrite.
type Attributes struct {
	SKU      *string
	Name     string
	Brand    *string
	Model    *string
	Category *string
	Color    *string
	Price    decimal.NullDecimal
	Currency *string
	Stock    int
}

func (p Product) Attributes() Attributes {
	return Attributes{
		SKU:      p.SKU,
		Name:     p.Name,
		Brand:    p.Brand,
		Model:    p.Model,
		Category: p.Category,
		Color:    p.Color,
		Price:    p.Price,
		Currency: p.Currency,
		Stock:    p.Stock,
	}
}

func (p *Product) apply(a Attributes) {
	p.SKU = a.SKU
	p.Name = a.Name
	p.Brand = a.Brand
	p.Model = a.Model
	p.Category = a.Category
	p.Color = a.Color
	p.Price = a.Price
	p.Currency = a.Currency
	p.Stock = a.Stock
}

func (p Product) Deleted() bool { return p.DeletedAt != nil }

// Page is one page of catalog results as returned to clients and cached.
type Page struct {
	Items      []Product `json:"data"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}

func totalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
