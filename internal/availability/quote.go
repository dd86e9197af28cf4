package availability

import (
	"github.com/google/uuid"
)

// QuoteCents prices lines at their item's daily rate for every started day of window.
func QuoteCents(rates map[uuid.UUID]int64, lines []Line, window Range) int64 {
	days := window.RentalDays()
	var total int64
	for _, line := range lines {
		total += rates[line.ItemID] * int64(line.Quantity) * days
	}
	return total
}
