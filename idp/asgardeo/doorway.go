package asgardeo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opendisclosure/entity-backend/idp"
)

type applicationListResponseBody struct {
	TotalResults int `json:"totalResults"`
	Applications []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"applications"`
}

// ListDoorways returns the role-specific applications registered with the
// directory. The role convention lives in the application name prefix.
func (a *Client) ListDoorways(ctx context.Context) ([]idp.Doorway, error) {
	url := fmt.Sprintf("%s/api/server/v1/applications", a.BaseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list applications, status code: %d", res.StatusCode)
	}

	var response applicationListResponseBody
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	doorways := make([]idp.Doorway, 0, len(response.Applications))
	for _, app := range response.Applications {
		doorways = append(doorways, idp.Doorway{ID: app.ID, Name: app.Name})
	}
	return doorways, nil
}
