package display

import (
	"time"

	"github.com/kjstillabower/weather-display-service/internal/models"
)

// Snapshot is the compact view rendered by the home-screen widget.
type Snapshot struct {
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
	Location    string    `json:"location"`
	Icon        string    `json:"icon"`
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewSnapshot builds a snapshot from current conditions. Missing condition descriptors
// leave Condition and Icon empty.
func NewSnapshot(current models.CurrentConditions, now time.Time) Snapshot {
	primary := current.Primary()
	return Snapshot{
		Temperature: current.Main.Temp,
		Condition:   primary.Description,
		Location:    current.Name,
		Icon:        primary.Icon,
		Symbol:      IconSymbol(primary.Icon),
		Timestamp:   now,
	}
}

// PlaceholderSnapshot is shown while no weather could be fetched.
func PlaceholderSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Temperature: 25,
		Condition:   "Clear sky",
		Location:    "Loading...",
		Icon:        "01d",
		Symbol:      IconSymbol("01d"),
		Timestamp:   now,
	}
}
