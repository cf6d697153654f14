package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"docsorter/internal/services"
)

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HealthCheck probes the endpoint's model listing. It fails when the server
// is unreachable or answers with an error status, and when it lists models
// but not the configured one.
func (c *Client) HealthCheck(ctx context.Context) error {
	path := "/api/tags"
	if c.cfg.API == APIOpenAI {
		path = "/models"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "classifier", "build request", err)
	}
	body, err := c.do(req)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "preflight", "classifier", c.cfg.BaseURL, err)
	}

	models, err := c.listedModels(body)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "preflight", "classifier", "unexpected response", err)
	}
	if len(models) == 0 || c.cfg.Model == "" {
		return nil
	}
	for _, name := range models {
		if sameModel(name, c.cfg.Model) {
			return nil
		}
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "classifier",
		fmt.Sprintf("model %q not available (have %s)", c.cfg.Model, strings.Join(models, ", ")), nil)
}

// CheckConnection reports whether HealthCheck succeeds.
func (c *Client) CheckConnection(ctx context.Context) bool {
	return c.HealthCheck(ctx) == nil
}

func (c *Client) listedModels(body []byte) ([]string, error) {
	var names []string
	if c.cfg.API == APIOpenAI {
		var parsed modelsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, err
		}
		for _, m := range parsed.Data {
			names = append(names, m.ID)
		}
		return names, nil
	}
	var parsed tagsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	for _, m := range parsed.Models {
		names = append(names, firstNonEmpty(m.Name, m.Model))
	}
	return names, nil
}

// sameModel treats "llama3.2" and "llama3.2:latest" as the same model.
func sameModel(listed, configured string) bool {
	listed = strings.TrimSuffix(strings.TrimSpace(listed), ":latest")
	configured = strings.TrimSuffix(strings.TrimSpace(configured), ":latest")
	return strings.EqualFold(listed, configured)
}
