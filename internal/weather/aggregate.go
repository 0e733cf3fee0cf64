package weather

import "time"

// AggregateReadings combines multiple provider readings into a single DailyPrecipitation.
// Amounts are averaged; negative readings are treated as zero.
func AggregateReadings(coords Coordinates, date time.Time, readings []PrecipitationReading) DailyPrecipitation {
	out := DailyPrecipitation{
		Coordinates: coords,
		Date:        date,
	}
	if len(readings) == 0 {
		return out
	}

	var sum float64
	providers := make([]ProviderContribution, 0, len(readings))
	for _, r := range readings {
		mm := r.PrecipMM
		if mm < 0 {
			mm = 0
		}
		sum += mm
		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			PrecipMM:     mm,
		})
	}

	out.PrecipMM = sum / float64(len(readings))
	out.Providers = providers
	return out
}
