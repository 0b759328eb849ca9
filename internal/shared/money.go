package shared

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places stored for amounts (NUMERIC(14,2)).
const MoneyPlaces = 2

func init() {
	// API payloads carry amounts as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Cents reports whether v has no more than two decimal places.
func Cents(v decimal.Decimal) bool {
	return v.Equal(v.Round(MoneyPlaces))
}

// Money rounds v half away from zero to cents.
func Money(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyPlaces)
}

// LineTotal multiplies a unit price by a quantity.
func LineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// decimalValue lets numeric tags (gt, gte, lte) compare decimal fields.
func decimalValue(field reflect.Value) any {
	switch v := field.Interface().(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}
		return v.Decimal.InexactFloat64()
	}
	return nil
}

// validateCents backs the "cents" tag: at most two decimal places.
func validateCents(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case decimal.Decimal:
		return Cents(v)
	case float64:
		return Cents(decimal.NewFromFloat(v))
	}
	return false
}

// FormatMoney renders v with exactly two decimals for logs and audit details.
func FormatMoney(v decimal.Decimal) string {
	return v.StringFixed(MoneyPlaces)
}
