package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/garden-assistant-service/internal/client"
	"github.com/kjstillabower/garden-assistant-service/internal/models"
	"github.com/kjstillabower/garden-assistant-service/internal/traffic"
	"github.com/kjstillabower/garden-assistant-service/internal/validation"
)

type fixture struct {
	chat      *mockChat
	plants    *mockPlants
	weather   *mockWeatherClient
	tracker   *traffic.Tracker
	assistant *Assistant
}

func newFixture() *fixture {
	f := &fixture{
		chat:    &mockChat{answer: "Likely nitrogen deficiency. Feed with compost."},
		plants:  &mockPlants{},
		weather: &mockWeatherClient{weather: sampleWeather},
		tracker: traffic.NewTracker(),
	}
	f.assistant = NewAssistant(f.chat, f.plants, NewWeatherLookup(f.weather, f.tracker), f.tracker, 100)
	return f
}

// TestAsk_Validation verifies that an unusable query is rejected without any outbound call.
func TestAsk_Validation(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{name: "empty", query: "", wantErr: validation.ErrQueryEmpty},
		{name: "whitespace", query: "   \n\t", wantErr: validation.ErrQueryEmpty},
		{name: "too long", query: strings.Repeat("a", 101), wantErr: validation.ErrQueryTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.assistant.Ask(context.Background(), models.QueryRequest{Query: tt.query, Lat: ptr(1), Lon: ptr(2)})
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Ask() error = %v, want *ValidationError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ask() error = %v, want %v", err, tt.wantErr)
			}
			if f.chat.calls != 0 || f.weather.calls != 0 {
				t.Errorf("outbound calls chat=%d weather=%d, want 0", f.chat.calls, f.weather.calls)
			}
		})
	}
}

// TestAsk_WithoutCoordinates verifies that the raw trimmed query is sent and weather is not looked up.
func TestAsk_WithoutCoordinates(t *testing.T) {
	f := newFixture()
	answer, err := f.assistant.Ask(context.Background(), models.QueryRequest{Query: "  Why are my tomato leaves yellow?  "})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer != f.chat.answer {
		t.Errorf("Ask() = %q, want %q", answer, f.chat.answer)
	}
	if f.weather.calls != 0 {
		t.Errorf("weather calls = %d, want 0", f.weather.calls)
	}
	if f.chat.userPrompt != "Why are my tomato leaves yellow?" {
		t.Errorf("user prompt = %q, want raw query", f.chat.userPrompt)
	}
	if !strings.Contains(f.chat.systemPrompt, "friendly and practical gardening expert") {
		t.Errorf("system prompt = %q, want gardening expert persona", f.chat.systemPrompt)
	}
}

// TestAsk_WithCoordinates verifies that the question is prefixed with local weather.
func TestAsk_WithCoordinates(t *testing.T) {
	f := newFixture()
	_, err := f.assistant.Ask(context.Background(), models.QueryRequest{Query: "When should I water?", Lat: ptr(51.5), Lon: ptr(-0.12)})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	want := "Local weather: Current weather: 15.5°C, scattered clouds, humidity 65%.\n\nQuestion: When should I water?"
	if f.chat.userPrompt != want {
		t.Errorf("user prompt = %q, want %q", f.chat.userPrompt, want)
	}
	if f.weather.calls != 1 {
		t.Errorf("weather calls = %d, want 1", f.weather.calls)
	}
}

// TestAsk_WeatherFailureDoesNotBlock verifies that a weather failure degrades the prompt only.
func TestAsk_WeatherFailureDoesNotBlock(t *testing.T) {
	f := newFixture()
	f.weather.err = &client.UpstreamError{Upstream: client.UpstreamWeather, Kind: client.KindTransport, Err: client.ErrTimeout}
	answer, err := f.assistant.Ask(context.Background(), models.QueryRequest{Query: "Mulch now?", Lat: ptr(1), Lon: ptr(2)})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer == "" {
		t.Error("Ask() returned empty answer")
	}
	if !strings.Contains(f.chat.userPrompt, WeatherUnavailable) {
		t.Errorf("user prompt = %q, want fallback weather", f.chat.userPrompt)
	}
}

// TestAsk_ChatErrorPropagates verifies that chat failures reach the caller as UpstreamError
// and are counted against the chat upstream.
func TestAsk_ChatErrorPropagates(t *testing.T) {
	f := newFixture()
	f.chat.err = &client.UpstreamError{Upstream: client.UpstreamChat, Kind: client.KindTransport, StatusCode: 503, Err: client.ErrUpstreamFailure}
	_, err := f.assistant.Ask(context.Background(), models.QueryRequest{Query: "hello"})
	ue, ok := client.AsUpstreamError(err)
	if !ok {
		t.Fatalf("Ask() error = %v, want *client.UpstreamError", err)
	}
	if ue.Kind != client.KindTransport {
		t.Errorf("Kind = %v, want transport", ue.Kind)
	}
	if errs, total := f.tracker.ErrorRate(client.UpstreamChat, time.Minute); errs != 1 || total != 1 {
		t.Errorf("chat ErrorRate() = (%d, %d), want (1, 1)", errs, total)
	}
}

// TestAsk_CanceledNotRecorded verifies that client cancellations do not count as upstream errors.
func TestAsk_CanceledNotRecorded(t *testing.T) {
	f := newFixture()
	f.chat.err = &client.UpstreamError{Upstream: client.UpstreamChat, Kind: client.KindTransport, Err: context.Canceled}
	if _, err := f.assistant.Ask(context.Background(), models.QueryRequest{Query: "hello"}); err == nil {
		t.Fatal("Ask() error = nil, want error")
	}
	if _, total := f.tracker.ErrorRate(client.UpstreamChat, time.Minute); total != 0 {
		t.Errorf("chat total = %d, want 0", total)
	}
}

// TestDiagnose_PromptAlwaysHasWeatherAndDescription verifies prompt composition for each
// weather outcome.
func TestDiagnose_PromptAlwaysHasWeatherAndDescription(t *testing.T) {
	const description = "White powder on squash leaves"
	tests := []struct {
		name        string
		lat, lon    *float64
		weatherErr  error
		wantWeather string
	}{
		{name: "not provided", wantWeather: WeatherNotProvided},
		{name: "live", lat: ptr(40), lon: ptr(-74), wantWeather: "Current weather: 15.5°C, scattered clouds, humidity 65%."},
		{name: "unavailable", lat: ptr(40), lon: ptr(-74), weatherErr: &client.UpstreamError{Upstream: client.UpstreamWeather, Kind: client.KindTransport, Err: client.ErrTimeout}, wantWeather: WeatherUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.weather.err = tt.weatherErr
			answer, err := f.assistant.Diagnose(context.Background(), models.QueryRequest{Query: description, Lat: tt.lat, Lon: tt.lon})
			if err != nil {
				t.Fatalf("Diagnose() error = %v", err)
			}
			if answer != f.chat.answer {
				t.Errorf("Diagnose() = %q, want %q", answer, f.chat.answer)
			}
			want := "User's location context: " + tt.wantWeather + "\n\nUser's observation: '" + description + "'"
			if f.chat.userPrompt != want {
				t.Errorf("user prompt = %q, want %q", f.chat.userPrompt, want)
			}
		})
	}
}

// TestDiagnose_SystemPromptSections verifies the structured sections requested from the model.
func TestDiagnose_SystemPromptSections(t *testing.T) {
	f := newFixture()
	if _, err := f.assistant.Diagnose(context.Background(), models.QueryRequest{Query: "spots"}); err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	for _, section := range []string{"Possible Cause", "Symptoms to Confirm", "Immediate Actions", "organic and chemical", "Prevention Tips"} {
		if !strings.Contains(f.chat.systemPrompt, section) {
			t.Errorf("system prompt missing %q", section)
		}
	}
}

// TestDiagnose_Validation verifies that an empty description makes no outbound call.
func TestDiagnose_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.assistant.Diagnose(context.Background(), models.QueryRequest{Query: " ", Lat: ptr(1), Lon: ptr(1)})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "description" {
		t.Fatalf("Diagnose() error = %v, want description ValidationError", err)
	}
	if f.chat.calls != 0 || f.weather.calls != 0 {
		t.Errorf("outbound calls chat=%d weather=%d, want 0", f.chat.calls, f.weather.calls)
	}
}

// TestIdentify_Validation verifies upload checks happen before any plant call.
func TestIdentify_Validation(t *testing.T) {
	tests := []struct {
		name    string
		upload  models.Upload
		wantErr error
	}{
		{name: "blank filename", upload: models.Upload{Filename: "  ", Data: []byte{1}}, wantErr: validation.ErrUploadNoFilename},
		{name: "empty data", upload: models.Upload{Filename: "leaf.jpg"}, wantErr: validation.ErrUploadEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, _, err := f.assistant.Identify(context.Background(), tt.upload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Identify() error = %v, want %v", err, tt.wantErr)
			}
			if f.plants.calls != 0 {
				t.Errorf("plant calls = %d, want 0", f.plants.calls)
			}
		})
	}
}

// TestIdentify_Outcomes verifies found, no-match and failure results.
func TestIdentify_Outcomes(t *testing.T) {
	rose := models.Identification{ScientificName: "Rosa canina", CommonNames: []string{"Dog rose"}, Confidence: 87.34}
	upstreamErr := &client.UpstreamError{Upstream: client.UpstreamPlant, Kind: client.KindLogic, Err: client.ErrMalformedResponse}

	tests := []struct {
		name      string
		result    models.Identification
		found     bool
		err       error
		wantFound bool
		wantErr   bool
		wantTotal int
		wantErrs  int
	}{
		{name: "identified", result: rose, found: true, wantFound: true, wantTotal: 1},
		{name: "no match", wantTotal: 1},
		{name: "failure", err: upstreamErr, wantErr: true, wantTotal: 1, wantErrs: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.plants.result, f.plants.found, f.plants.err = tt.result, tt.found, tt.err
			upload := models.Upload{Filename: "rose.jpg", MimeType: "image/jpeg", Data: []byte("jpegbytes")}

			got, found, err := f.assistant.Identify(context.Background(), upload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Identify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
			if tt.wantFound && got.ScientificName != rose.ScientificName {
				t.Errorf("ScientificName = %q, want %q", got.ScientificName, rose.ScientificName)
			}
			if f.plants.filename != "rose.jpg" || f.plants.mimeType != "image/jpeg" || f.plants.size != len(upload.Data) {
				t.Errorf("plant client got (%q, %q, %d)", f.plants.filename, f.plants.mimeType, f.plants.size)
			}
			errs, total := f.tracker.ErrorRate(client.UpstreamPlant, time.Minute)
			if errs != tt.wantErrs || total != tt.wantTotal {
				t.Errorf("plant ErrorRate() = (%d, %d), want (%d, %d)", errs, total, tt.wantErrs, tt.wantTotal)
			}
		})
	}
}
