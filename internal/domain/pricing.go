package domain

const (
	// DefaultTaxRateBasisPoints is 5% expressed in basis points.
	DefaultTaxRateBasisPoints int64 = 500
	// DefaultDeliveryFee is charged when the subtotal does not exceed the free delivery threshold.
	DefaultDeliveryFee int64 = 1000
	// DefaultFreeDeliveryThreshold is the subtotal above which delivery is free.
	DefaultFreeDeliveryThreshold int64 = 10000
)

// PricingTotals captures the monetary results of pricing a subtotal, in minor currency units.
type PricingTotals struct {
	Subtotal    int64
	Tax         int64
	DeliveryFee int64
	Total       int64
}

// PricingPolicy computes tax and delivery fees. The same value is shared by cart display and
// order creation so both always agree.
type PricingPolicy struct {
	TaxRateBasisPoints    int64
	DeliveryFee           int64
	FreeDeliveryThreshold int64
}

// DefaultPricingPolicy returns the marketplace's standard pricing constants.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRateBasisPoints:    DefaultTaxRateBasisPoints,
		DeliveryFee:           DefaultDeliveryFee,
		FreeDeliveryThreshold: DefaultFreeDeliveryThreshold,
	}
}

// ComputeTotals derives tax, delivery fee and grand total for the subtotal.
// Tax is rounded half-up to the nearest minor unit. The delivery fee applies to every subtotal up to
// and including the free delivery threshold, zero included.
func (p PricingPolicy) ComputeTotals(subtotal int64) PricingTotals {
	if subtotal < 0 {
		subtotal = 0
	}
	tax := (subtotal*p.TaxRateBasisPoints + 5000) / 10000
	fee := p.DeliveryFee
	if subtotal > p.FreeDeliveryThreshold {
		fee = 0
	}
	return PricingTotals{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       subtotal + tax + fee,
	}
}
