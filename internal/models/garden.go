package models

import "encoding/json"

// QueryRequest is the JSON body accepted by /ask and /diagnose.
// Lat and Lon are independent; either may be absent.
type QueryRequest struct {
	Query string   `json:"query"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
}

// AnswerResponse is returned by /ask and /diagnose on success.
type AnswerResponse struct {
	Answer string `json:"answer"`
}

// Upload is an image received on /identify.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// Identification is the normalized top candidate from the plant identification upstream.
// Confidence is a percentage rounded to two decimals.
type Identification struct {
	ScientificName string   `json:"scientific_name"`
	CommonNames    []string `json:"common_names"`
	Confidence     float64  `json:"confidence"`
}

// MarshalJSON keeps common_names an array when no names are known.
func (i Identification) MarshalJSON() ([]byte, error) {
	type plain Identification
	p := plain(i)
	if p.CommonNames == nil {
		p.CommonNames = []string{}
	}
	return json.Marshal(p)
}
