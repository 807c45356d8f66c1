package models

// ServiceType is the short code for a cleaning/building service
type ServiceType string

const (
	ServiceWindowCleaning   ServiceType = "WC"
	ServicePressureWashing  ServiceType = "PW"
	ServiceSoftWashing      ServiceType = "SW"
	ServiceGlassRestoration ServiceType = "GR"
	ServiceFrameRestoration ServiceType = "FR"
	ServiceHighDusting      ServiceType = "HD"
	ServiceFinalClean       ServiceType = "FC"
	ServiceGraniteCare      ServiceType = "GC"
)

// ServiceName returns the human-readable name for a service code
func (s ServiceType) ServiceName() string {
	switch s {
	case ServiceWindowCleaning:
		return "Window Cleaning"
	case ServicePressureWashing:
		return "Pressure Washing"
	case ServiceSoftWashing:
		return "Soft Washing"
	case ServiceGlassRestoration:
		return "Glass Restoration"
	case ServiceFrameRestoration:
		return "Frame Restoration"
	case ServiceHighDusting:
		return "High Dusting"
	case ServiceFinalClean:
		return "Final Clean"
	case ServiceGraniteCare:
		return "Granite Care"
	default:
		return string(s)
	}
}

// AccessType describes the equipment used to reach the work area
type AccessType string

const (
	AccessLadder   AccessType = "ladder"
	AccessLift     AccessType = "lift"
	AccessScaffold AccessType = "scaffold"
)

// InitialContact holds the customer details captured at intake
type InitialContact struct {
	CustomerName   string `json:"customer_name,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CustomerBudget string `json:"customer_budget,omitempty"`
}

// ScopeDetails is the service-selection wizard step
type ScopeDetails struct {
	SelectedServices []ServiceType `json:"selected_services"`
	ServiceOrder     []ServiceType `json:"service_order,omitempty"`
	ScopeNotes       string        `json:"scope_notes,omitempty"`
}

// AreaOfWork records the site geometry
type AreaOfWork struct {
	TotalArea      float64    `json:"total_area"`
	BuildingHeight float64    `json:"building_height"`
	Stories        int        `json:"stories,omitempty"`
	AccessType     AccessType `json:"access_type,omitempty"`
}

// Measurement is a single measured area attributed to a service
type Measurement struct {
	ID          string      `json:"id,omitempty"`
	ServiceType ServiceType `json:"service_type"`
	Description string      `json:"description,omitempty"`
	Area        float64     `json:"area"`
	Quantity    float64     `json:"quantity,omitempty"`
	Unit        string      `json:"unit,omitempty"`
}

// TakeoffData is the measurement wizard step
type TakeoffData struct {
	Measurements []Measurement `json:"measurements"`
}

// DurationData is the scheduling wizard step
type DurationData struct {
	EstimatedHours float64 `json:"estimated_hours"`
	CrewSize       int     `json:"crew_size,omitempty"`
	TimelineDays   int     `json:"timeline_days,omitempty"`
}

// ExpensesData is the cost-input wizard step
type ExpensesData struct {
	Equipment float64 `json:"equipment,omitempty"`
	Materials float64 `json:"materials,omitempty"`
	Labor     float64 `json:"labor,omitempty"`
	Total     float64 `json:"total,omitempty"`
}

// PricingData is the pricing wizard step
type PricingData struct {
	TotalPrice     float64 `json:"total_price"`
	Strategy       string  `json:"strategy,omitempty"`
	ManualOverride bool    `json:"manual_override,omitempty"`
}

// GuidedFlowData is the nested estimate document, keyed by wizard step.
// Every step is optional; rules and calculators null-check each step they
// read rather than assuming a fully populated document.
type GuidedFlowData struct {
	InitialContact *InitialContact `json:"initial_contact,omitempty"`
	ScopeDetails   *ScopeDetails   `json:"scope_details,omitempty"`
	AreaOfWork     *AreaOfWork     `json:"area_of_work,omitempty"`
	Takeoff        *TakeoffData    `json:"takeoff,omitempty"`
	Duration       *DurationData   `json:"duration,omitempty"`
	Expenses       *ExpensesData   `json:"expenses,omitempty"`
	Pricing        *PricingData    `json:"pricing,omitempty"`
}

// SelectedServices returns the selected services, or nil when the scope
// step has not been completed
func (g *GuidedFlowData) SelectedServices() []ServiceType {
	if g == nil || g.ScopeDetails == nil {
		return nil
	}
	return g.ScopeDetails.SelectedServices
}

// MeasuredArea returns the summed measured area for a service from the
// takeoff step. The second return is false when no measurement exists.
func (g *GuidedFlowData) MeasuredArea(service ServiceType) (float64, bool) {
	if g == nil || g.Takeoff == nil {
		return 0, false
	}
	total := 0.0
	found := false
	for _, m := range g.Takeoff.Measurements {
		if m.ServiceType == service && m.Area > 0 {
			total += m.Area
			found = true
		}
	}
	return total, found
}

// TotalMeasuredArea sums every measured area in the takeoff step
func (g *GuidedFlowData) TotalMeasuredArea() float64 {
	if g == nil || g.Takeoff == nil {
		return 0
	}
	total := 0.0
	for _, m := range g.Takeoff.Measurements {
		total += m.Area
	}
	return total
}
