package domain

import "github.com/shopspring/decimal"

// Amount is a raw integer token amount with its mint's decimal count.
type Amount struct {
	Raw      uint64
	Decimals uint8
}

// Decimal returns the decimal-adjusted amount.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromUint64(a.Raw).Shift(-int32(a.Decimals))
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(int32(a.Decimals))
}
