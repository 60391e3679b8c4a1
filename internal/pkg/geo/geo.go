// Package geo builds the map view-model handed to the mapping SDK: pins and a
// viewport (center + zoom) fitted around them in Web Mercator.
package geo

import (
	"math"
)

const (
	// tileSize matches Mapbox GL's 512px world at zoom 0.
	tileSize = 512.0

	MaxZoom       = 20.0
	SinglePinZoom = 14.0
)

// Pin is one marker on the map.
type Pin struct {
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
	Phase string  `json:"phase,omitempty"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a south-west / north-east box.
type Bounds struct {
	SouthWest LatLng `json:"sw"`
	NorthEast LatLng `json:"ne"`
}

type Viewport struct {
	Center LatLng  `json:"center"`
	Zoom   float64 `json:"zoom"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// Size is the rendered map size in CSS pixels.
type Size struct {
	Width  float64
	Height float64
}

// BoundsOf returns the box enclosing pins; ok is false for no pins.
func BoundsOf(pins []Pin) (b Bounds, ok bool) {
	for i, p := range pins {
		if i == 0 {
			b = Bounds{SouthWest: LatLng{p.Lat, p.Lng}, NorthEast: LatLng{p.Lat, p.Lng}}
			continue
		}
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
	}
	return b, len(pins) > 0
}

// Fit returns the viewport that shows every pin inside size minus padding on
// each side. With no pins the fallback viewport is returned unchanged.
func Fit(pins []Pin, size Size, padding float64, fallback Viewport) Viewport {
	b, ok := BoundsOf(pins)
	if !ok {
		return fallback
	}
	center := LatLng{
		Lat: mercatorToLat((latToMercator(b.SouthWest.Lat) + latToMercator(b.NorthEast.Lat)) / 2),
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
	if b.SouthWest == b.NorthEast {
		return Viewport{Center: center, Zoom: SinglePinZoom, Bounds: &b}
	}

	w := math.Max(size.Width-2*padding, 1)
	h := math.Max(size.Height-2*padding, 1)

	latFraction := (latToMercator(b.NorthEast.Lat) - latToMercator(b.SouthWest.Lat)) / (2 * math.Pi)
	lngFraction := (b.NorthEast.Lng - b.SouthWest.Lng) / 360

	zoom := math.Min(fractionZoom(h, latFraction), fractionZoom(w, lngFraction))
	zoom = math.Min(zoom, MaxZoom)
	zoom = math.Max(zoom, 0)
	return Viewport{Center: center, Zoom: math.Round(zoom*100) / 100, Bounds: &b}
}

func fractionZoom(px, fraction float64) float64 {
	if fraction <= 0 {
		return MaxZoom
	}
	return math.Log2(px / tileSize / fraction)
}

// latToMercator projects latitude to Mercator y in radians, clamped to the
// Web Mercator square.
func latToMercator(lat float64) float64 {
	s := math.Sin(lat * math.Pi / 180)
	y := math.Log((1+s)/(1-s)) / 2
	return math.Max(math.Min(y, math.Pi), -math.Pi)
}

func mercatorToLat(y float64) float64 {
	return (2*math.Atan(math.Exp(y)) - math.Pi/2) * 180 / math.Pi
}
