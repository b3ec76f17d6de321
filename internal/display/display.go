// Package display holds the pure presentation rules shared by the HTTP surface and the
// widget: icon symbols, light/dark theme selection, daily forecast thinning and
// human-readable ages. Nothing here does I/O.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/weather-display-service/internal/models"
)

// iconSymbols maps OpenWeather icon codes to SF Symbol names.
var iconSymbols = map[string]string{
	"01d": "sun.max.fill",
	"01n": "moon.fill",
	"02d": "cloud.sun.fill",
	"02n": "cloud.moon.fill",
	"03d": "cloud.fill",
	"03n": "cloud.fill",
	"04d": "smoke.fill",
	"04n": "smoke.fill",
	"09d": "cloud.drizzle.fill",
	"09n": "cloud.drizzle.fill",
	"10d": "cloud.sun.rain.fill",
	"10n": "cloud.moon.rain.fill",
	"11d": "cloud.bolt.fill",
	"11n": "cloud.bolt.fill",
	"13d": "cloud.snow.fill",
	"13n": "cloud.snow.fill",
	"50d": "cloud.fog.fill",
	"50n": "cloud.fog.fill",
}

const fallbackSymbol = "cloud.fill"

// IconSymbol returns the symbol name for an OpenWeather icon code. Unknown codes get a plain cloud.
func IconSymbol(icon string) string {
	if s, ok := iconSymbols[icon]; ok {
		return s
	}
	return fallbackSymbol
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func isNightHour(hour int) bool {
	return hour < 6 || hour > 18
}

// ThemeForHour picks dark before 06:00 and from 19:00.
func ThemeForHour(hour int) Theme {
	if isNightHour(hour) {
		return ThemeDark
	}
	return ThemeLight
}

// ThemeForWeather picks dark for night icons ("01n", ...) or night hours.
// An empty icon falls back to ThemeForHour.
func ThemeForWeather(hour int, icon string) Theme {
	if icon == "" {
		return ThemeForHour(hour)
	}
	if strings.Contains(icon, "n") || isNightHour(hour) {
		return ThemeDark
	}
	return ThemeLight
}

// Colors is a theme's palette as hex RGB strings.
type Colors struct {
	BackgroundStart  string `json:"backgroundStart"`
	BackgroundEnd    string `json:"backgroundEnd"`
	Text             string `json:"text"`
	ButtonBackground string `json:"buttonBackground"`
	ButtonText       string `json:"buttonText"`
}

var palettes = map[Theme]Colors{
	ThemeLight: {
		BackgroundStart:  "#0000FF",
		BackgroundEnd:    "#ADD8E6",
		Text:             "#FFFFFF",
		ButtonBackground: "#FFFFFF",
		ButtonText:       "#000000",
	},
	ThemeDark: {
		BackgroundStart:  "#1A1A4D",
		BackgroundEnd:    "#0D0D33",
		Text:             "#FFFFFF",
		ButtonBackground: "#333333",
		ButtonText:       "#FFFFFF",
	},
}

// Palette returns the colors for theme; unknown themes get the light palette.
func Palette(theme Theme) Colors {
	if c, ok := palettes[theme]; ok {
		return c
	}
	return palettes[ThemeLight]
}

// DailyForecasts keeps the first point of each calendar day, with days computed in loc.
// Points are expected in upstream (chronological) order.
func DailyForecasts(points []models.ForecastPoint, loc *time.Location) []models.ForecastPoint {
	if loc == nil {
		loc = time.UTC
	}
	var out []models.ForecastPoint
	lastDay := ""
	for _, p := range points {
		day := p.Time().In(loc).Format("2006-01-02")
		if day != lastDay {
			out = append(out, p)
			lastDay = day
		}
	}
	return out
}

// FormatHour renders a forecast slot as "15:04" in loc.
func FormatHour(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("15:04")
}

// FormatDay renders a day label such as "Mon, Jan 2" in loc.
func FormatDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon, Jan 2")
}

// TimeAgo renders an age for the "Last updated" label.
func TimeAgo(d time.Duration) string {
	switch {
	case d < time.Second:
		return "Just now"
	case d < time.Minute:
		return plural(int(d/time.Second), "second")
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Hour), "hour")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
