package domain

// Country pairs an ISO code with the display name stored on cities.
type Country struct {
	Code string
	Name string
}

// supportedCountries is ordered; ingestion walks it front to back.
var supportedCountries = []Country{
	{Code: "PL", Name: "Poland"},
	{Code: "DE", Name: "Germany"},
	{Code: "FR", Name: "France"},
	{Code: "ES", Name: "Spain"},
}

// SupportedCountries returns a copy of the fixed country set in ingestion order.
func SupportedCountries() []Country {
	out := make([]Country, len(supportedCountries))
	copy(out, supportedCountries)
	return out
}

// LookupCountry resolves a country code to its entry in the supported set.
func LookupCountry(code string) (Country, bool) {
	for _, c := range supportedCountries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// CountryCodes lists the supported codes in ingestion order.
func CountryCodes() []string {
	codes := make([]string, 0, len(supportedCountries))
	for _, c := range supportedCountries {
		codes = append(codes, c.Code)
	}
	return codes
}
