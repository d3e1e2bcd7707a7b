package models

import (
	"encoding/json"
	"testing"
)

func TestIdentification_MarshalJSON_NilCommonNames(t *testing.T) {
	b, err := json.Marshal(Identification{ScientificName: "Ficus lyrata", Confidence: 91.2})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"scientific_name":"Ficus lyrata","common_names":[],"confidence":91.2}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestQueryRequest_IndependentCoordinates(t *testing.T) {
	var req QueryRequest
	if err := json.Unmarshal([]byte(`{"query":"spots","lat":47.6,"lon":-122.3}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.Lat == nil || req.Lon == nil {
		t.Fatalf("coordinates not decoded: %+v", req)
	}
	if *req.Lat != 47.6 || *req.Lon != -122.3 {
		t.Errorf("lat/lon = %v/%v, want 47.6/-122.3", *req.Lat, *req.Lon)
	}
}
