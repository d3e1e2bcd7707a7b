package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/garden-assistant-service/internal/models"
)

// UpstreamPlant is the upstream label used in errors, logs and metrics.
const UpstreamPlant = "plant"

const (
	DefaultPlantAPIURL  = "https://my-api.plantnet.org/v2/identify"
	DefaultPlantProject = "all"
)

// PlantIdentifier returns the top identification candidate for an image.
// found is false when the upstream legitimately matched nothing.
type PlantIdentifier interface {
	Identify(ctx context.Context, image []byte, filename, mimeType string) (result models.Identification, found bool, err error)
}

// PlantNetClient calls the Pl@ntNet identify API.
type PlantNetClient struct {
	endpoint *url.URL
	organ    string
	upstream *upstream
}

type plantNetResponse struct {
	Results []plantNetResult `json:"results"`
}

type plantNetResult struct {
	Score   *float64 `json:"score"`
	Species struct {
		ScientificNameWithoutAuthor string   `json:"scientificNameWithoutAuthor"`
		ScientificName              string   `json:"scientificName"`
		CommonNames                 []string `json:"commonNames"`
	} `json:"species"`
}

// NewPlantNetClient returns an identification client for project (default "all").
// organ, when set, is sent as the organs hint for the single image.
func NewPlantNetClient(apiKey, apiURL, project, organ string, timeout time.Duration) (*PlantNetClient, error) {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultPlantAPIURL
	}
	if strings.TrimSpace(project) == "" {
		project = DefaultPlantProject
	}
	u, err := url.Parse(strings.TrimRight(apiURL, "/") + "/" + url.PathEscape(project))
	if err != nil {
		return nil, fmt.Errorf("invalid plant API URL: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("plant API timeout must be positive")
	}
	q := u.Query()
	q.Set("api-key", apiKey)
	u.RawQuery = q.Encode()
	return &PlantNetClient{
		endpoint: u,
		organ:    strings.TrimSpace(organ),
		upstream: newUpstream(UpstreamPlant, timeout),
	}, nil
}

// SetCircuitBreaker routes calls through b. Pass nil to disable.
func (c *PlantNetClient) SetCircuitBreaker(b *Breaker) {
	c.upstream.breaker = b
}

// Identify uploads the image once. An empty result list or an upstream 404 is a no-match.
func (c *PlantNetClient) Identify(ctx context.Context, image []byte, filename, mimeType string) (models.Identification, bool, error) {
	payload, contentType, err := buildImageForm(image, filename, mimeType, c.organ)
	if err != nil {
		return models.Identification{}, false, &UpstreamError{Upstream: UpstreamPlant, Kind: KindLogic, Err: fmt.Errorf("encode upload: %w", err)}
	}

	body, err := c.upstream.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Identification{}, false, nil
		}
		return models.Identification{}, false, err
	}

	var apiResp plantNetResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Identification{}, false, logicError(UpstreamPlant, "parse response: %v", err)
	}
	if len(apiResp.Results) == 0 {
		return models.Identification{}, false, nil
	}
	result, err := mapTopResult(apiResp.Results[0])
	if err != nil {
		return models.Identification{}, false, err
	}
	return result, true, nil
}

// mapTopResult normalizes the highest-ranked entry. No re-ranking or threshold filtering.
func mapTopResult(r plantNetResult) (models.Identification, error) {
	name := strings.TrimSpace(r.Species.ScientificNameWithoutAuthor)
	if name == "" {
		name = strings.TrimSpace(r.Species.ScientificName)
	}
	if name == "" {
		return models.Identification{}, logicError(UpstreamPlant, "top result has no scientific name")
	}

	commonNames := r.Species.CommonNames
	if commonNames == nil {
		commonNames = []string{}
	}

	score := 0.0
	if r.Score != nil {
		score = *r.Score
	}

	return models.Identification{
		ScientificName: name,
		CommonNames:    commonNames,
		Confidence:     confidencePercent(score),
	}, nil
}

// confidencePercent converts a [0,1] score to a percentage rounded to two decimals.
func confidencePercent(score float64) float64 {
	return math.Round(score*10000) / 100
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildImageForm(image []byte, filename, mimeType, organ string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if organ != "" {
		if err := w.WriteField("organs", organ); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
