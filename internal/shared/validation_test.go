package shared

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type sampleLine struct {
	ProductID int64           `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"agreedPrice" validate:"gt=0,cents"`
}

type sampleRequest struct {
	Method string       `json:"paymentMethod" validate:"oneof=Cash M-Pesa Card"`
	Lines  []sampleLine `json:"lines" validate:"min=1,dive"`
}

func TestValidateReportsJSONFieldPaths(t *testing.T) {
	err := Validate(sampleRequest{
		Method: "Cheque",
		Lines:  []sampleLine{{ProductID: 1, Quantity: 0, Price: decimal.NewFromInt(10)}},
	})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "must be one of: Cash M-Pesa Card", vErr.Fields["paymentMethod"])
	require.Equal(t, "must be greater than 0", vErr.Fields["lines[0].quantity"])
}

func TestValidateAcceptsValidStruct(t *testing.T) {
	require.NoError(t, Validate(sampleRequest{
		Method: "Cash",
		Lines:  []sampleLine{{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("899.99")}},
	}))
}

func TestValidateDecimalTags(t *testing.T) {
	err := Validate(sampleRequest{
		Method: "M-Pesa",
		Lines: []sampleLine{
			{ProductID: 1, Quantity: 3, Price: decimal.RequireFromString("0.335")},
			{ProductID: 2, Quantity: 1, Price: decimal.Zero},
		},
	})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "must have at most 2 decimal places", vErr.Fields["lines[0].agreedPrice"])
	require.Equal(t, "must be greater than 0", vErr.Fields["lines[1].agreedPrice"])
}

func TestMoneyHelpers(t *testing.T) {
	require.True(t, Cents(decimal.RequireFromString("10.50")))
	require.False(t, Cents(decimal.RequireFromString("0.335")))
	require.Equal(t, "10.01", Money(decimal.RequireFromString("10.005")).StringFixed(2))
	require.Equal(t, "1.02", LineTotal(decimal.RequireFromString("0.34"), 3).StringFixed(2))

	sum := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	require.True(t, sum.Equal(decimal.RequireFromString("0.3")))
}
