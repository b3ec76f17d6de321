package models

import "time"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Temperatures is the "main" block shared by current conditions and forecast points.
type Temperatures struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
}

type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CurrentConditions is the decoded /weather response.
type CurrentConditions struct {
	Coord      Coordinates  `json:"coord"`
	Main       Temperatures `json:"main"`
	Conditions []Condition  `json:"weather"`
	Name       string       `json:"name"`
}

// Primary returns the first condition descriptor, or the zero value when upstream sent none.
func (c CurrentConditions) Primary() Condition {
	if len(c.Conditions) == 0 {
		return Condition{}
	}
	return c.Conditions[0]
}

type City struct {
	Name    string      `json:"name"`
	Coord   Coordinates `json:"coord"`
	Country string      `json:"country"`
}

// ForecastPoint is one 3-hour slot of the 5-day forecast.
type ForecastPoint struct {
	Dt         int64        `json:"dt"`
	Main       Temperatures `json:"main"`
	Conditions []Condition  `json:"weather"`
	DtTxt      string       `json:"dt_txt"`
}

// Time returns the slot timestamp in UTC.
func (p ForecastPoint) Time() time.Time {
	return time.Unix(p.Dt, 0).UTC()
}

// ForecastSeries is the decoded /forecast response. Points keep upstream order.
type ForecastSeries struct {
	Points []ForecastPoint `json:"list"`
	City   City            `json:"city"`
}

// Report is the pair returned by a weather lookup, plus when it was fetched upstream.
type Report struct {
	Location  string            `json:"location"`
	Current   CurrentConditions `json:"current"`
	Forecast  ForecastSeries    `json:"forecast"`
	FetchedAt time.Time         `json:"fetchedAt"`
}
