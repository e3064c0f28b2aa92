package domain

import "fmt"

// Location geographic coordinate.
type Location struct {
	Lat float64
	Lng float64
}

// String returns the string representation.
func (l Location) String() string {
	return fmt.Sprintf("%.5f,%.5f", l.Lat, l.Lng)
}

// LocationHint scope of a points-of-interest prefetch: a free-form query, coordinates, or both.
type LocationHint struct {
	Query    string
	Location *Location
}

// IsEmpty reports whether the hint carries nothing to search by.
func (h LocationHint) IsEmpty() bool {
	return h.Query == "" && h.Location == nil
}

// PointOfInterest a place returned by the prefetch.
type PointOfInterest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}
