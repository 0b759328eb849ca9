package products

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/shared"
)

// Product is a sellable catalog item with its on-hand stock.
type Product struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	Category          string          `json:"category"`
	Stock             int             `json:"stock"`
	Price             decimal.Decimal `json:"price"`
	Cost              decimal.Decimal `json:"cost"`
	MinPrice          decimal.Decimal `json:"minPrice"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	Supplier          string          `json:"supplier"`
	Description       string          `json:"description"`
	ImageURL          string          `json:"imageUrl"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsLowStock reports whether stock is at or under the reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

// IsOutOfStock reports whether nothing is left to sell.
func (p Product) IsOutOfStock() bool {
	return p.Stock <= 0
}

// Input carries the editable product fields for create and full update.
type Input struct {
	Name              string          `json:"name" validate:"required,max=200"`
	SKU               string          `json:"sku" validate:"required,max=64"`
	Category          string          `json:"category" validate:"max=100"`
	Stock             int             `json:"stock" validate:"gte=0"`
	Price             decimal.Decimal `json:"price" validate:"gt=0,cents"`
	Cost              decimal.Decimal `json:"cost" validate:"gte=0,cents"`
	MinPrice          decimal.Decimal `json:"minPrice" validate:"gte=0,cents"`
	LowStockThreshold int             `json:"lowStockThreshold" validate:"gte=0"`
	Supplier          string          `json:"supplier" validate:"max=200"`
	Description       string          `json:"description" validate:"max=2000"`
	ImageURL          string          `json:"imageUrl" validate:"omitempty,url"`
}

// ReceiveInput records goods received into stock.
type ReceiveInput struct {
	Quantity int    `json:"quantity" validate:"gt=0"`
	Note     string `json:"note" validate:"max=500"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search   string
	Category string
	Page     shared.PageRequest
}

func (in Input) validate() error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	if in.Price.LessThan(in.MinPrice) {
		return shared.NewValidationError("price", "must not be below minPrice")
	}
	return nil
}

func (in Input) toProduct() Product {
	return Product{
		Name:              in.Name,
		SKU:               in.SKU,
		Category:          in.Category,
		Stock:             in.Stock,
		Price:             in.Price,
		Cost:              in.Cost,
		MinPrice:          in.MinPrice,
		LowStockThreshold: in.LowStockThreshold,
		Supplier:          in.Supplier,
		Description:       in.Description,
		ImageURL:          in.ImageURL,
	}
}
