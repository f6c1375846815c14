package checkout

import "strings"

// CompositeKey joins a synthetic carrier key and a method code into the key the shell
// submits, e.g. carrier_0 + flatrate_flatrate.
func CompositeKey(carrierKey, methodCode string) string {
	return carrierKey + "_" + methodCode
}

// MethodCodeFromKey decodes the method code from a composite key by keeping the last n
// underscore-delimited segments. This is positional: a method code with more than n
// segments is truncated, so n is configurable.
func MethodCodeFromKey(key string, n int) string {
	if n <= 0 {
		n = 2
	}
	parts := strings.Split(key, "_")
	if len(parts) <= n {
		return key
	}
	return strings.Join(parts[len(parts)-n:], "_")
}
