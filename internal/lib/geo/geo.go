package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// Earth's radius in meters
const earthRadius = 6371000

// Distance calculates great-circle distance between two points in meters
// using the Haversine formula.
func Distance(p1, p2 Point) (float64, error) {
	if !IsValid(p1) || !IsValid(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0, nil
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c, nil
}

// DistanceFromCoords calculates distance between two coordinate pairs.
// Convenience wrapper around Distance for raw latitude/longitude values.
func DistanceFromCoords(lat1, lng1, lat2, lng2 float64) (float64, error) {
	return Distance(Point{Latitude: lat1, Longitude: lng1}, Point{Latitude: lat2, Longitude: lng2})
}

// PathLength sums segment distances over an ordered point sequence.
func PathLength(path []Point) (float64, error) {
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		d, err := Distance(path[i], path[i+1])
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// BoundsFromPoints computes the min/max lat/lng box covering every point.
func BoundsFromPoints(points []Point) (Bounds, error) {
	if len(points) == 0 {
		return Bounds{}, errors.New("cannot compute bounds of empty point sequence")
	}

	b := Bounds{
		MinLat: points[0].Latitude,
		MaxLat: points[0].Latitude,
		MinLng: points[0].Longitude,
		MaxLng: points[0].Longitude,
	}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b, nil
}

// Interpolate calculates a point along the line between two points.
// t=0 returns start, t=1 returns end, t=0.5 returns the midpoint.
// Linear interpolation is adequate for urban-scale distances.
func Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// QuadraticBezier samples a quadratic Bézier curve from start to end through
// the given control point. The returned sequence has exactly samples points;
// the first equals start and the last equals end.
func QuadraticBezier(start, control, end Point, samples int) []Point {
	if samples < 2 {
		samples = 2
	}

	points := make([]Point, samples)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(samples-1)
		mt := 1 - t
		points[i] = Point{
			Latitude:  mt*mt*start.Latitude + 2*mt*t*control.Latitude + t*t*end.Latitude,
			Longitude: mt*mt*start.Longitude + 2*mt*t*control.Longitude + t*t*end.Longitude,
		}
	}
	// Guard against floating drift at the endpoints
	points[0] = start
	points[samples-1] = end
	return points
}

// DecodePolyline decodes an encoded polyline string to a point sequence.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}
		if !IsValid(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValid(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValid validates latitude and longitude ranges
func IsValid(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
