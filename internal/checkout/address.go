package checkout

func buildAddressSubmission(billing, shipping *Address, sameAsBilling bool) (AddressSubmission, error) {
	if billing == nil {
		return AddressSubmission{}, validationErrorf("billing", "billing address is required")
	}
	if err := billing.Validate("billing"); err != nil {
		return AddressSubmission{}, err
	}

	use := sameAsBilling
	sub := AddressSubmission{Billing: billing.Payload()}
	sub.Billing.UseForShipping = &use

	if sameAsBilling {
		// shipping is derived from billing; anything the caller supplied is ignored
		sub.Shipping = billing.Payload()
		return sub, nil
	}
	if shipping == nil {
		return AddressSubmission{}, validationErrorf("shipping", "shipping address is required when it differs from billing")
	}
	if err := shipping.Validate("shipping"); err != nil {
		return AddressSubmission{}, err
	}
	sub.Shipping = shipping.Payload()
	return sub, nil
}
