package geo

import "strings"

// Style is the base map toggle offered by the map view.
type Style string

const (
	StyleStreet    Style = "street"
	StyleSatellite Style = "satellite"
)

var styleURLs = map[Style]string{
	StyleStreet:    "mapbox://styles/mapbox/streets-v12",
	StyleSatellite: "mapbox://styles/mapbox/satellite-streets-v12",
}

// ParseStyle maps a query value to a Style; anything unknown is street.
func ParseStyle(s string) Style {
	if Style(strings.ToLower(strings.TrimSpace(s))) == StyleSatellite {
		return StyleSatellite
	}
	return StyleStreet
}

func (s Style) URL() string {
	if u, ok := styleURLs[s]; ok {
		return u
	}
	return styleURLs[StyleStreet]
}
