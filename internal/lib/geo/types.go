package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Bounds represents a min/max latitude/longitude box
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether p falls inside the box, edges inclusive.
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLng && p.Longitude <= b.MaxLng
}

// Extend returns a box grown to cover p.
func (b Bounds) Extend(p Point) Bounds {
	if p.Latitude < b.MinLat {
		b.MinLat = p.Latitude
	}
	if p.Latitude > b.MaxLat {
		b.MaxLat = p.Latitude
	}
	if p.Longitude < b.MinLng {
		b.MinLng = p.Longitude
	}
	if p.Longitude > b.MaxLng {
		b.MaxLng = p.Longitude
	}
	return b
}
