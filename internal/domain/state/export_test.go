package state

import "time"

// SetNaiveLocation swaps the zone used for naive timestamps and returns a restore func.
func SetNaiveLocation(loc *time.Location) func() {
	prev := naiveLocation
	naiveLocation = loc
	return func() { naiveLocation = prev }
}
