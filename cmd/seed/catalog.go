package main

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dukapos/dukapos/internal/rbac"
	"github.com/dukapos/dukapos/internal/shared"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalog struct {
	Business businessSeed  `yaml:"business"`
	Users    []userSeed    `yaml:"users"`
	Products []productSeed `yaml:"products"`
}

type businessSeed struct {
	Name     string  `yaml:"name"`
	Address  string  `yaml:"address"`
	Phone    string  `yaml:"phone"`
	Email    string  `yaml:"email"`
	Currency string  `yaml:"currency"`
	TaxRate  float64 `yaml:"taxRate"`
}

type userSeed struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type productSeed struct {
	Name              string          `yaml:"name"`
	SKU               string          `yaml:"sku"`
	Category          string          `yaml:"category"`
	Stock             int             `yaml:"stock"`
	Price             decimal.Decimal `yaml:"price"`
	Cost              decimal.Decimal `yaml:"cost"`
	MinPrice          decimal.Decimal `yaml:"minPrice"`
	LowStockThreshold int             `yaml:"lowStockThreshold"`
	Supplier          string          `yaml:"supplier"`
	Description       string          `yaml:"description"`
}

// loadCatalog reads the seed file, falling back to the embedded catalog.
func loadCatalog(path string) (catalog, error) {
	raw := defaultCatalog
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return catalog{}, err
		}
		defer func() { _ = f.Close() }()
		if raw, err = io.ReadAll(f); err != nil {
			return catalog{}, err
		}
	}
	return parseCatalog(raw)
}

func parseCatalog(raw []byte) (catalog, error) {
	var c catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return catalog{}, err
	}
	return c, nil
}

func (c catalog) validate() error {
	seen := make(map[string]bool)
	for i, u := range c.Users {
		if u.Username == "" || len(u.Password) < 8 {
			return fmt.Errorf("user %d: username and a password of at least 8 characters required", i)
		}
		if _, ok := rbac.ParseRole(u.Role); !ok {
			return fmt.Errorf("user %s: unknown role %q", u.Username, u.Role)
		}
	}
	for _, p := range c.Products {
		if p.Name == "" || p.SKU == "" {
			return fmt.Errorf("product %q: name and sku required", p.SKU)
		}
		if seen[p.SKU] {
			return fmt.Errorf("product %s: duplicate sku", p.SKU)
		}
		seen[p.SKU] = true
		if p.Stock < 0 || p.MinPrice.IsNegative() || p.Cost.IsNegative() || p.LowStockThreshold < 0 || p.Price.LessThan(p.MinPrice) {
			return fmt.Errorf("product %s: stock, cost and thresholds must be non-negative and price >= minPrice", p.SKU)
		}
		for _, v := range []decimal.Decimal{p.Price, p.Cost, p.MinPrice} {
			if !shared.Cents(v) {
				return fmt.Errorf("product %s: prices must have at most 2 decimal places", p.SKU)
			}
		}
	}
	return nil
}
