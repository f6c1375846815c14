package checkout

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Address is a structured address record as entered or picked from the address book.
type Address struct {
	ID          string `json:"id,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country"`
	Postcode    string `json:"postcode"`
	Phone       string `json:"phone"`
}

// AddressPayload is the checkout snapshot sent to the Shop API: address lines merged into
// an ordered list and the local id dropped.
type AddressPayload struct {
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email,omitempty"`
	CompanyName    string   `json:"company_name,omitempty"`
	Address        []string `json:"address"`
	City           string   `json:"city"`
	State          string   `json:"state,omitempty"`
	Country        string   `json:"country"`
	Postcode       string   `json:"postcode"`
	Phone          string   `json:"phone"`
	UseForShipping *bool    `json:"use_for_shipping,omitempty"`
}

// AddressSubmission is the body of the save-address call.
type AddressSubmission struct {
	Billing  AddressPayload `json:"billing"`
	Shipping AddressPayload `json:"shipping"`
}

// ShippingRate is one priced option offered by a carrier.
type ShippingRate struct {
	Carrier           string          `json:"carrier"`
	CarrierTitle      string          `json:"carrier_title"`
	Method            string          `json:"method"`
	MethodTitle       string          `json:"method_title"`
	MethodDescription string          `json:"method_description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	FormattedPrice    string          `json:"formatted_price,omitempty"`
}

// CarrierRates groups the rates of one carrier as returned by the server.
type CarrierRates struct {
	CarrierTitle string         `json:"carrier_title"`
	Rates        []ShippingRate `json:"rates"`
}

// AddressResponse is the save-address reply. Rates is empty for virtual-only carts or
// undeliverable addresses.
type AddressResponse struct {
	Rates []CarrierRates `json:"rates"`
}

// PaymentMethod describes one payment option.
type PaymentMethod struct {
	Method      string `json:"method"`
	MethodTitle string `json:"method_title"`
	Description string `json:"description,omitempty"`
}

// ShippingResponse is the save-shipping reply.
type ShippingResponse struct {
	Methods []PaymentMethod `json:"methods"`
}

// Cart is the server-side cart snapshot. Only totals are interpreted; the rest is kept raw.
type Cart struct {
	ItemsCount         int             `json:"items_count"`
	SubTotal           decimal.Decimal `json:"sub_total"`
	TaxTotal           decimal.Decimal `json:"tax_total"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
	HaveStockableItems bool            `json:"have_stockable_items"`
	Raw                json.RawMessage `json:"-"`
}

// ShopAPI is the request/response contract the orchestrator consumes. Responses whose
// shape varies by payment provider are returned as decoded JSON objects.
type ShopAPI interface {
	SaveAddresses(ctx context.Context, sub AddressSubmission) (*AddressResponse, error)
	SaveShipping(ctx context.Context, methodCode string) (*ShippingResponse, error)
	SavePayment(ctx context.Context, methodCode string) error
	PlaceOrder(ctx context.Context) (map[string]any, error)
	FetchCart(ctx context.Context) (*Cart, error)
}

var requiredAddressFields = []struct {
	name string
	get  func(Address) string
}{
	{"first_name", func(a Address) string { return a.FirstName }},
	{"last_name", func(a Address) string { return a.LastName }},
	{"address1", func(a Address) string { return a.Address1 }},
	{"city", func(a Address) string { return a.City }},
	{"country", func(a Address) string { return a.Country }},
	{"postcode", func(a Address) string { return a.Postcode }},
	{"phone", func(a Address) string { return a.Phone }},
}

// Validate returns a ValidationError naming the first missing required field.
func (a Address) Validate(prefix string) error {
	for _, f := range requiredAddressFields {
		if strings.TrimSpace(f.get(a)) == "" {
			return validationErrorf(prefix+"."+f.name, "is required")
		}
	}
	return nil
}

// Payload converts the record into its checkout submission shape.
func (a Address) Payload() AddressPayload {
	lines := make([]string, 0, 2)
	for _, l := range []string{a.Address1, a.Address2} {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return AddressPayload{
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Email:       a.Email,
		CompanyName: a.CompanyName,
		Address:     lines,
		City:        a.City,
		State:       a.State,
		Country:     a.Country,
		Postcode:    a.Postcode,
		Phone:       a.Phone,
	}
}
