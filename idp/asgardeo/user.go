package asgardeo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opendisclosure/entity-backend/idp"
)

type scimName struct {
	FamilyName string `json:"familyName"`
	GivenName  string `json:"givenName"`
}

type scimPhone struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

type userResponseBody struct {
	ID           string      `json:"id"`
	UserName     string      `json:"userName"`
	Email        []string    `json:"emails"`
	PhoneNumbers []scimPhone `json:"phoneNumbers"`
	Name         scimName    `json:"name"`
}

type createUserRequestBodyEmail struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

type createUserRequestBody struct {
	UserName     string                       `json:"userName"`
	Email        string                       `json:"email"`
	Emails       []createUserRequestBodyEmail `json:"emails"`
	PhoneNumbers []scimPhone                  `json:"phoneNumbers,omitempty"`
	Name         scimName                     `json:"name"`
	Schema       interface{}                  `json:"urn:scim:wso2:schema"`
}

type listUsersResponseBody struct {
	TotalResults int                `json:"totalResults"`
	Resources    []userResponseBody `json:"Resources"`
}

func (a *Client) toUserInfo(res *userResponseBody) *idp.UserInfo {
	userInfo := &idp.UserInfo{
		Sub:      res.ID,
		Username: res.UserName,
		Fullname: res.Name.GivenName,
	}
	if res.Name.FamilyName != "" {
		userInfo.Fullname = res.Name.GivenName + " " + res.Name.FamilyName
	}
	if len(res.Email) > 0 {
		userInfo.Email = res.Email[0]
	}
	if len(res.PhoneNumbers) > 0 {
		userInfo.PhoneNumber = res.PhoneNumbers[0].Value
	}
	return userInfo
}

func (a *Client) GetUser(ctx context.Context, sub string) (*idp.UserInfo, error) {
	url := fmt.Sprintf("%s/scim2/Users/%s", a.BaseURL, sub)

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
		return nil, fmt.Errorf("failed to get user, status code: %d", res.StatusCode)
	}

	var response userResponseBody
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return a.toUserInfo(&response), nil
}

// GetUserByUsername resolves an account through the SCIM filter endpoint
func (a *Client) GetUserByUsername(ctx context.Context, username string) (*idp.UserInfo, error) {
	filter := url.QueryEscape(fmt.Sprintf("userName eq %q", username))
	reqURL := fmt.Sprintf("%s/scim2/Users?filter=%s", a.BaseURL, filter)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to look up user, status code: %d", res.StatusCode)
	}

	var response listUsersResponseBody
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Resources) == 0 {
		return nil, fmt.Errorf("no account for username %s", username)
	}

	return a.toUserInfo(&response.Resources[0]), nil
}

// CreateUser provisions an account with a temporary password. The askPassword
// flow makes the directory deliver credentials out-of-band.
func (a *Client) CreateUser(ctx context.Context, user *idp.User) (*idp.UserInfo, error) {
	url := fmt.Sprintf("%s/scim2/Users", a.BaseURL)

	body := createUserRequestBody{
		UserName: fmt.Sprintf("DEFAULT/%s", user.Email),
		Email:    user.Email,
		Emails: []createUserRequestBodyEmail{
			{
				Value:   user.Email,
				Primary: true,
			},
		},
		Schema: map[string]interface{}{
			"askPassword": true,
		},
	}
	body.Name.GivenName = user.Fullname

	if user.PhoneNumber != "" {
		body.PhoneNumbers = []scimPhone{
			{
				Value: user.PhoneNumber,
				Type:  "mobile",
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/scim+json")

	res, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("failed to create user, status code: %d", res.StatusCode)
	}

	var response userResponseBody
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	info := a.toUserInfo(&response)
	info.Role = user.Role
	return info, nil
}

// UpdateUser replaces the mutable attributes of an account in place
func (a *Client) UpdateUser(ctx context.Context, sub string, user *idp.User) (*idp.UserInfo, error) {
	url := fmt.Sprintf("%s/scim2/Users/%s", a.BaseURL, sub)

	body := createUserRequestBody{
		UserName: fmt.Sprintf("DEFAULT/%s", user.Email),
		Email:    user.Email,
		Emails: []createUserRequestBodyEmail{
			{
				Value:   user.Email,
				Primary: true,
			},
		},
	}
	body.Name.GivenName = user.Fullname

	if user.PhoneNumber != "" {
		body.PhoneNumbers = []scimPhone{
			{
				Value: user.PhoneNumber,
				Type:  "mobile",
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/scim+json")

	res, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to update user, status code: %d", res.StatusCode)
	}

	var response userResponseBody
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return a.toUserInfo(&response), nil
}

func (a *Client) DeleteUser(ctx context.Context, sub string) error {
	url := fmt.Sprintf("%s/scim2/Users/%s", a.BaseURL, sub)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	res, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to delete user, status code: %d", res.StatusCode)
	}

	return nil
}

// ListUsers returns every account in the pool
func (a *Client) ListUsers(ctx context.Context) ([]idp.UserInfo, error) {
	url := fmt.Sprintf("%s/scim2/Users", a.BaseURL)

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
		return nil, fmt.Errorf("failed to list users, status code: %d", res.StatusCode)
	}

	var response listUsersResponseBody
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	users := make([]idp.UserInfo, 0, len(response.Resources))
	for i := range response.Resources {
		users = append(users, *a.toUserInfo(&response.Resources[i]))
	}
	return users, nil
}
