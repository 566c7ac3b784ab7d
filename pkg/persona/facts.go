package persona

import "math/rand"

// Facts is the fixed scenario data generated once at session creation.
// It is never mutated and never regenerated for the same session.
type Facts struct {
	CustomerName   string `json:"customerName"`
	Product        string `json:"product"`
	TrackingNumber string `json:"trackingNumber"`
	FinalLocation  string `json:"finalLocation"`
}

var (
	customerNames = []string{
		"Alex Johnson",
		"Priya Natarajan",
		"Marcus Webb",
		"Dana Kowalski",
		"Sam Okafor",
	}
	products = []string{
		"Smart Fitness Watch",
		"Noise Cancelling Headphones",
		"Espresso Machine",
		"Mechanical Keyboard",
		"Camping Stove",
	}
	locations = []string{
		"Springfield, IL",
		"Reno, NV",
		"Toledo, OH",
		"Augusta, ME",
		"Bakersfield, CA",
	}
)

// DefaultFacts returns the canonical scenario
func DefaultFacts() *Facts {
	return &Facts{
		CustomerName:   "Alex Johnson",
		Product:        "Smart Fitness Watch",
		TrackingNumber: "739182645",
		FinalLocation:  "Springfield, IL",
	}
}

// GenerateFacts produces a fresh scenario from the fixed pools
func GenerateFacts() *Facts {
	return &Facts{
		CustomerName:   customerNames[rand.Intn(len(customerNames))],
		Product:        products[rand.Intn(len(products))],
		TrackingNumber: randomTrackingNumber(),
		FinalLocation:  locations[rand.Intn(len(locations))],
	}
}

// randomTrackingNumber returns a 9-digit tracking number with a non-zero
// leading digit.
func randomTrackingNumber() string {
	digits := make([]byte, 9)
	digits[0] = byte('1' + rand.Intn(9))
	for i := 1; i < len(digits); i++ {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}
