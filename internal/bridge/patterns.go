package bridge

import (
	"net/url"
	"regexp"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// identifierPattern extracts an approval identifier from a navigation URL. When
// captureSelf is false the identifier only proves approval and the capture call uses the
// order id handed over at placement.
type identifierPattern struct {
	re          *regexp.Regexp
	captureSelf bool
}

// Patterns is the URL pattern set of one provider.
type Patterns struct {
	Success     *regexp.Regexp
	Cancel      *regexp.Regexp
	identifiers []identifierPattern
}

var providerPatterns = map[checkout.Provider]Patterns{
	checkout.ProviderPayPalSmartButton: {
		Success: regexp.MustCompile(`paypal/smart-button/success`),
		Cancel:  regexp.MustCompile(`paypal/smart-button/cancel`),
		identifiers: []identifierPattern{
			{re: regexp.MustCompile(`[?&]token=([^&#]+)`), captureSelf: true},
			{re: regexp.MustCompile(`[?&]PayerID=([^&#]+)`)},
		},
	},
	checkout.ProviderStripeConnect: {
		Success: regexp.MustCompile(`(?i)stripe(connect)?[^?#]*success`),
		Cancel:  regexp.MustCompile(`(?i)stripe(connect)?[^?#]*cancel`),
		identifiers: []identifierPattern{
			{re: regexp.MustCompile(`[?&]session_id=([^&#]+)`), captureSelf: true},
		},
	},
}

// PatternsFor returns the pattern set of provider.
func PatternsFor(provider checkout.Provider) (Patterns, bool) {
	p, ok := providerPatterns[provider]
	return p, ok
}

// Match is the classification of one navigation URL.
type Match struct {
	Cancel     bool
	Success    bool
	Identifier string
	// CaptureSelf reports whether Identifier is itself the id to capture.
	CaptureSelf bool
}

// Classify tests cancel first; a cancel match never reports success. Success additionally
// requires an identifier in the URL.
func (p Patterns) Classify(rawURL string) Match {
	if p.Cancel.MatchString(rawURL) {
		return Match{Cancel: true}
	}
	if !p.Success.MatchString(rawURL) {
		return Match{}
	}
	for _, ip := range p.identifiers {
		m := ip.re.FindStringSubmatch(rawURL)
		if len(m) < 2 {
			continue
		}
		id := m[1]
		if unescaped, err := url.QueryUnescape(id); err == nil {
			id = unescaped
		}
		if id == "" {
			continue
		}
		return Match{Success: true, Identifier: id, CaptureSelf: ip.captureSelf}
	}
	return Match{}
}
