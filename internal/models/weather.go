package models

// WeatherData is the subset of current conditions used to enrich prompts.
type WeatherData struct {
	Location    string  `json:"location,omitempty"`
	Temperature float64 `json:"temperature"`
	Conditions  string  `json:"conditions"`
	Humidity    int     `json:"humidity"`
}
