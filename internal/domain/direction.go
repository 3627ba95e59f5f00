package domain

// Direction is the setup's trade direction discriminant. Tagged records
// throughout the pattern pipeline carry this instead of duck-typed maps.
type Direction string

const (
	Short Direction = "SHORT"
	Long  Direction = "LONG"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}
