// README: Price list definition; the most recent list is the one in force.
package pricing

import (
	"time"

	"ridedispatch/internal/modules/driver"
)

type PriceList struct {
	ID int64
	// BasePrice is charged once per ride, by vehicle type, in minor units.
	BasePrice map[driver.VehicleType]int64
	PerKm     int64
	Currency  string
	CreatedAt time.Time
}
