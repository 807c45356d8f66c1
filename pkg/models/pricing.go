package models

import "time"

// ServiceBreakdown is the priced line item for one selected service
type ServiceBreakdown struct {
	Service     ServiceType `json:"service"`
	ServiceName string      `json:"service_name"`
	Area        float64     `json:"area"`
	BasePrice   float64     `json:"base_price"`
	Price       float64     `json:"price"`
	LaborHours  float64     `json:"labor_hours"`
	TotalHours  float64     `json:"total_hours"`
	CrewSize    int         `json:"crew_size"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// PricingAdjustment is a premium or discount applied to the whole estimate
type PricingAdjustment struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// PricingResult is the outcome of one real-time pricing cycle. Any entry in
// MissingData forces Confidence to low.
type PricingResult struct {
	ServiceBreakdown []ServiceBreakdown  `json:"service_breakdown"`
	TotalCost        float64             `json:"total_cost"`
	TotalHours       float64             `json:"total_hours"`
	TotalArea        float64             `json:"total_area"`
	Confidence       Confidence          `json:"confidence"`
	MissingData      []string            `json:"missing_data"`
	Warnings         []string            `json:"warnings"`
	Adjustments      []PricingAdjustment `json:"adjustments"`
	LastUpdated      time.Time           `json:"last_updated"`
}
