package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// metersNorth returns the latitude offset (degrees) that moves a point d meters along a meridian.
func metersNorth(d float64) float64 {
	return d / EarthRadiusMeters * 180 / math.Pi
}

func TestDistance_IdenticalPointsIsZero(t *testing.T) {
	points := []Point{{0, 0}, {40, -75}, {-33.8688, 151.2093}, {89.9, 179.9}, {-90, -180}}
	for _, p := range points {
		assert.Equal(t, 0.0, p.DistanceTo(p), "distance(%v, %v)", p, p)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]Point{
		{{40, -75}, {40.0018, -75}},
		{{51.5074, -0.1278}, {48.8566, 2.3522}},
		{{-33.8688, 151.2093}, {35.6762, 139.6503}},
		{{0, 179.5}, {0, -179.5}},
	}
	for _, p := range pairs {
		assert.Equal(t, p[0].DistanceTo(p[1]), p[1].DistanceTo(p[0]))
	}
}

func TestDistance_AlongMeridian(t *testing.T) {
	origin := Point{Lat: 40, Lon: -75}
	p := Point{Lat: 40 + metersNorth(200), Lon: -75}

	d := origin.DistanceTo(p)
	assert.InDelta(t, 200, d, 1e-6)
	assert.Equal(t, 200.0, math.Round(d))
}

func TestDistance_KnownCities(t *testing.T) {
	// London to Paris is roughly 343.5 km on a sphere of this radius.
	d := Distance(51.5074, -0.1278, 48.8566, 2.3522)
	assert.InDelta(t, 343_500, d, 1_000)
}

func TestDistance_AntimeridianIsShort(t *testing.T) {
	d := Distance(0, 179.5, 0, -179.5)
	assert.InDelta(t, 111_195, d, 10)
}

func TestPoint_Valid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"origin", Point{0, 0}, true},
		{"corners", Point{-90, 180}, true},
		{"lat too high", Point{90.01, 0}, false},
		{"lon too low", Point{0, -180.5}, false},
		{"nan", Point{math.NaN(), 0}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.Valid())
		})
	}
}
