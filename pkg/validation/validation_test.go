package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type request struct {
	Quantity   decimal.Decimal     `validate:"decimal_gt0"`
	LimitPrice decimal.NullDecimal `validate:"omitempty,decimal_gt0"`
}

func TestDecimalGreaterThanZero(t *testing.T) {
	v := validator.New()
	RegisterOn(v)

	tests := []struct {
		name    string
		req     request
		wantErr bool
	}{
		{"positive quantity, no limit", request{Quantity: decimal.NewFromInt(5)}, false},
		{"positive limit", request{Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewNullDecimal(decimal.RequireFromString("0.01"))}, false},
		{"zero quantity", request{Quantity: decimal.Zero}, true},
		{"negative quantity", request{Quantity: decimal.NewFromInt(-3)}, true},
		{"negative limit", request{Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewNullDecimal(decimal.NewFromInt(-1))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
