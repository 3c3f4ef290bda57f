package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// preferredModelFamily is picked when the current model is not offered.
const preferredModelFamily = "Qwen"

// ListModels returns the chat models offered by the endpoint, using
// SiliconFlow's type/sub_type filters.
func (p *OpenAICompatProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	opts := []option.RequestOption{
		option.WithBaseURL(p.baseURL + "/"),
		option.WithAPIKey(p.apiKey),
		option.WithMaxRetries(0),
	}
	if p.client != nil && p.client != defaultHTTPClient {
		opts = append(opts, option.WithHTTPClient(p.client))
	}
	for key, value := range p.headers {
		if value != "" {
			opts = append(opts, option.WithHeader(key, value))
		}
	}
	client := openai.NewClient(opts...)

	page, err := client.Models.List(ctx,
		option.WithQuery("type", "text"),
		option.WithQuery("sub_type", "chat"),
	)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &TransportError{StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON(), Err: err}
		}
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	var models []ModelInfo
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:      m.ID,
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// ModelIDs returns the sorted, de-duplicated non-empty IDs.
func ModelIDs(models []ModelInfo) []string {
	seen := make(map[string]bool, len(models))
	var ids []string
	for _, m := range models {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

// PreferredModel keeps current when it is offered, otherwise picks the
// first Qwen model, otherwise the first model. Returns "" for no models.
func PreferredModel(ids []string, current string) string {
	if len(ids) == 0 {
		return ""
	}
	for _, id := range ids {
		if id == current {
			return current
		}
	}
	for _, id := range ids {
		if strings.Contains(id, preferredModelFamily) {
			return id
		}
	}
	return ids[0]
}
