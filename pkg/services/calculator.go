package services

import (
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// CalculatorService prices a single service line from its measured area.
type CalculatorService interface {
	Calculate(service models.ServiceType, area float64, buildingHeight float64, crewSize int) models.ServiceBreakdown
}

// serviceRate holds the pricing parameters for one service type.
type serviceRate struct {
	ratePerSqFt  float64
	sqFtPerHour  float64
	minimumPrice float64
}

// rateTableCalculator prices services from a static rate table. Rates are
// per square foot with a per-service production rate used to derive labor
// hours.
type rateTableCalculator struct {
	rates       map[models.ServiceType]serviceRate
	defaultRate serviceRate
}

// NewRateTableCalculator creates the default calculator.
func NewRateTableCalculator() CalculatorService {
	return &rateTableCalculator{
		rates: map[models.ServiceType]serviceRate{
			models.ServiceWindowCleaning:   {ratePerSqFt: 0.75, sqFtPerHour: 250, minimumPrice: 150},
			models.ServicePressureWashing:  {ratePerSqFt: 0.35, sqFtPerHour: 800, minimumPrice: 200},
			models.ServiceSoftWashing:      {ratePerSqFt: 0.45, sqFtPerHour: 600, minimumPrice: 225},
			models.ServiceGlassRestoration: {ratePerSqFt: 3.50, sqFtPerHour: 60, minimumPrice: 500},
			models.ServiceFrameRestoration: {ratePerSqFt: 4.25, sqFtPerHour: 50, minimumPrice: 500},
			models.ServiceHighDusting:      {ratePerSqFt: 0.40, sqFtPerHour: 500, minimumPrice: 175},
			models.ServiceFinalClean:       {ratePerSqFt: 0.30, sqFtPerHour: 700, minimumPrice: 150},
			models.ServiceGraniteCare:      {ratePerSqFt: 1.25, sqFtPerHour: 150, minimumPrice: 300},
		},
		defaultRate: serviceRate{ratePerSqFt: 0.50, sqFtPerHour: 400, minimumPrice: 150},
	}
}

// heightMultiplier scales price for elevated work.
func heightMultiplier(buildingHeight float64) float64 {
	switch {
	case buildingHeight > 40:
		return 1.5
	case buildingHeight > 20:
		return 1.25
	default:
		return 1.0
	}
}

func (c *rateTableCalculator) Calculate(service models.ServiceType, area float64, buildingHeight float64, crewSize int) models.ServiceBreakdown {
	rate, ok := c.rates[service]
	if !ok {
		rate = c.defaultRate
	}
	if crewSize < 1 {
		crewSize = 1
	}

	breakdown := models.ServiceBreakdown{
		Service:     service,
		ServiceName: service.ServiceName(),
		Area:        area,
		CrewSize:    crewSize,
	}

	if area <= 0 {
		breakdown.Warnings = append(breakdown.Warnings, "no measured area for "+service.ServiceName())
		return breakdown
	}

	basePrice := area * rate.ratePerSqFt
	price := basePrice * heightMultiplier(buildingHeight)
	if price < rate.minimumPrice {
		price = rate.minimumPrice
		breakdown.Warnings = append(breakdown.Warnings, "minimum price applied for "+service.ServiceName())
	}

	laborHours := area / rate.sqFtPerHour

	breakdown.BasePrice = basePrice
	breakdown.Price = price
	breakdown.LaborHours = laborHours
	breakdown.TotalHours = laborHours / float64(crewSize)

	return breakdown
}
