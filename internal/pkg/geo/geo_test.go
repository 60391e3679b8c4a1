package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallback = Viewport{Center: LatLng{Lat: 39.8283, Lng: -98.5795}, Zoom: 3.5}

func TestFit_NoPinsUsesFallback(t *testing.T) {
	assert.Equal(t, fallback, Fit(nil, Size{Width: 800, Height: 600}, 40, fallback))
}

func TestFit_SinglePin(t *testing.T) {
	vp := Fit([]Pin{{ID: "a", Lat: 40.7128, Lng: -74.006}}, Size{Width: 800, Height: 600}, 40, fallback)
	assert.Equal(t, SinglePinZoom, vp.Zoom)
	assert.InDelta(t, 40.7128, vp.Center.Lat, 1e-9)
	assert.InDelta(t, -74.006, vp.Center.Lng, 1e-9)
}

func TestFit_HorizontalSpan(t *testing.T) {
	pins := []Pin{{ID: "a", Lat: 0, Lng: 0}, {ID: "b", Lat: 0, Lng: 10}}
	vp := Fit(pins, Size{Width: 1024, Height: 1024}, 0, fallback)
	// log2(1024 / 512 / (10/360)) = log2(72)
	assert.InDelta(t, 6.17, vp.Zoom, 0.01)
	assert.InDelta(t, 0, vp.Center.Lat, 1e-9)
	assert.InDelta(t, 5, vp.Center.Lng, 1e-9)
	require.NotNil(t, vp.Bounds)
	assert.Equal(t, LatLng{Lat: 0, Lng: 0}, vp.Bounds.SouthWest)
	assert.Equal(t, LatLng{Lat: 0, Lng: 10}, vp.Bounds.NorthEast)
}

func TestFit_PaddingZoomsOut(t *testing.T) {
	pins := []Pin{{Lat: 30, Lng: -100}, {Lat: 45, Lng: -75}}
	tight := Fit(pins, Size{Width: 800, Height: 600}, 0, fallback)
	padded := Fit(pins, Size{Width: 800, Height: 600}, 100, fallback)
	assert.Less(t, padded.Zoom, tight.Zoom)
	assert.Equal(t, tight.Center, padded.Center)
}

func TestBoundsOf(t *testing.T) {
	b, ok := BoundsOf([]Pin{{Lat: 1, Lng: 5}, {Lat: -2, Lng: 7}, {Lat: 3, Lng: 6}})
	require.True(t, ok)
	assert.Equal(t, LatLng{Lat: -2, Lng: 5}, b.SouthWest)
	assert.Equal(t, LatLng{Lat: 3, Lng: 7}, b.NorthEast)

	_, ok = BoundsOf(nil)
	assert.False(t, ok)
}

func TestParseStyle(t *testing.T) {
	assert.Equal(t, StyleSatellite, ParseStyle(" Satellite "))
	assert.Equal(t, StyleStreet, ParseStyle("street"))
	assert.Equal(t, StyleStreet, ParseStyle("terrain"))
	assert.Equal(t, "mapbox://styles/mapbox/satellite-streets-v12", StyleSatellite.URL())
	assert.Equal(t, "mapbox://styles/mapbox/streets-v12", Style("bogus").URL())
}
