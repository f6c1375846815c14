package checkout

import "github.com/shopspring/decimal"

// ShippingGroup is a carrier rate group as presented to the shell, with the composite
// keys it must submit.
type ShippingGroup struct {
	CarrierKey   string         `json:"carrier_key"`
	CarrierTitle string         `json:"carrier_title"`
	Rates        []ShippingRate `json:"rates"`
	Keys         []string       `json:"keys"`
}

// CartTotals is the subset of the cart the review step displays.
type CartTotals struct {
	ItemsCount         int             `json:"items_count"`
	SubTotal           decimal.Decimal `json:"sub_total"`
	TaxTotal           decimal.Decimal `json:"tax_total"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
	HaveStockableItems bool            `json:"have_stockable_items"`
}

// View is a point-in-time copy of the session state.
type View struct {
	ID                     string           `json:"id"`
	Status                 Status           `json:"status"`
	CurrentStep            Step             `json:"current_step"`
	CompletedSteps         []Step           `json:"completed_steps"`
	BillingAddress         *Address         `json:"billing_address,omitempty"`
	ShippingAddress        *Address         `json:"shipping_address,omitempty"`
	SameAsBilling          bool             `json:"same_as_billing"`
	ShippingMethods        []ShippingGroup  `json:"shipping_methods"`
	SelectedShippingMethod string           `json:"selected_shipping_method,omitempty"`
	PaymentMethods         []PaymentMethod  `json:"payment_methods"`
	SelectedPaymentMethod  string           `json:"selected_payment_method,omitempty"`
	Cart                   *CartTotals      `json:"cart,omitempty"`
	ExternalPayment        *ExternalPayment `json:"external_payment,omitempty"`
	Result                 *Result          `json:"result,omitempty"`
	Notices                []Notice         `json:"notices,omitempty"`
}

// Snapshot copies the session state. Notices are included but not drained.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:                     s.ID,
		Status:                 s.status,
		CurrentStep:            s.steps.Current(),
		CompletedSteps:         s.steps.Completed(),
		SameAsBilling:          s.sameAsBilling,
		SelectedShippingMethod: s.selectedShipping,
		SelectedPaymentMethod:  s.selectedPayment,
		PaymentMethods:         append([]PaymentMethod(nil), s.paymentMethods...),
		Notices:                append([]Notice(nil), s.notices...),
	}
	if s.billing != nil {
		b := *s.billing
		v.BillingAddress = &b
	}
	if s.shipping != nil {
		sh := *s.shipping
		v.ShippingAddress = &sh
	}
	for _, key := range s.carrierKeys {
		group := s.shippingMethods[key]
		sg := ShippingGroup{CarrierKey: key, CarrierTitle: group.CarrierTitle, Rates: append([]ShippingRate(nil), group.Rates...)}
		for _, rate := range group.Rates {
			sg.Keys = append(sg.Keys, CompositeKey(key, rate.Method))
		}
		v.ShippingMethods = append(v.ShippingMethods, sg)
	}
	if s.cart != nil {
		v.Cart = &CartTotals{
			ItemsCount:         s.cart.ItemsCount,
			SubTotal:           s.cart.SubTotal,
			TaxTotal:           s.cart.TaxTotal,
			DiscountAmount:     s.cart.DiscountAmount,
			GrandTotal:         s.cart.GrandTotal,
			HaveStockableItems: s.cart.HaveStockableItems,
		}
	}
	if s.external != nil {
		ext := *s.external
		v.ExternalPayment = &ext
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}
