package domain

import "franchisor-portal/internal/pkg/geo"

// MapView is what the map page renders: pins, a fitted viewport and the base style URL.
type MapView struct {
	Pins     []geo.Pin    `json:"pins"`
	Viewport geo.Viewport `json:"viewport"`
	Style    geo.Style    `json:"style"`
	StyleURL string       `json:"styleUrl"`
}
