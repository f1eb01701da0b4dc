package scale

import "time"

// Unit denotes the unit of the weight measurement
type Unit string

const (

	// UnitUnknown denotes an unknown / invalid unit
	UnitUnknown Unit = "--"

	// UnitGrams denotes grams
	UnitGrams Unit = "g"

	// UnitKilograms denotes kilograms
	UnitKilograms Unit = "kg"
)

// ParseUnit parses a unit from its string representation
func ParseUnit(s string) Unit {
	switch Unit(s) {
	case UnitGrams, "":
		return UnitGrams
	case UnitKilograms:
		return UnitKilograms
	default:
		return UnitUnknown
	}
}

// Convert converts a weight in grams to the unit
func (u Unit) Convert(grams float64) float64 {
	if u == UnitKilograms {
		return grams / 1000.
	}
	return grams
}

// DataPoint denotes a weight measurement at a certain point in time
type DataPoint struct {
	TimeStamp time.Time
	Unit      Unit
	Weight    float64
}

// Value provides a method to retrieve the current value (for interface use)
func (d DataPoint) Value() float64 {
	return d.Weight
}

// DataPoints denotes a set of data points
type DataPoints []DataPoint

// Mean returns the arithmetic mean of the weights of all data points
func (d DataPoints) Mean() float64 {
	if len(d) == 0 {
		return 0.
	}

	var sum float64
	for _, p := range d {
		sum += p.Weight
	}
	return sum / float64(len(d))
}
