package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/tourbook/internal/model"
)

// loginMutation はゲートウェイのGraphQLログインミューテーション。
const loginMutation = `mutation Login($identifier: String!, $password: String!) {
  login(loginInput: {identifier: $identifier, password: $password}) {
    access_token
    user { id name username email roles }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Login *model.LoginResult `json:"login"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) authenticateGraphQL(ctx context.Context, creds model.Credentials) (*model.LoginResult, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: loginMutation,
		Variables: map[string]any{
			"identifier": creds.Identifier,
			"password":   creds.Password,
		},
	})
	if err != nil {
		return nil, &model.GatewayError{Err: fmt.Errorf("failed to encode graphql request: %w", err)}
	}

	status, respBody, err := c.post(ctx, c.config.GraphQLPath, body)
	if err != nil {
		return nil, err
	}

	var resp graphQLResponse
	if jsonErr := json.Unmarshal(respBody, &resp); jsonErr != nil {
		if status < 200 || status > 299 {
			return nil, c.statusError(status, extractMessage(respBody))
		}
		return nil, &model.GatewayError{StatusCode: status, Err: fmt.Errorf("malformed graphql response: %w", jsonErr)}
	}

	// GraphQLはHTTP 200でもerrorsを返す
	if len(resp.Errors) > 0 {
		gwErr := c.statusError(status, resp.Errors[0].Message)
		if status >= 200 && status <= 299 {
			gwErr.Retryable = false
		}
		return nil, gwErr
	}
	if status < 200 || status > 299 {
		return nil, c.statusError(status, "")
	}

	if resp.Data.Login == nil || resp.Data.Login.AccessToken == "" {
		return nil, &model.GatewayError{StatusCode: status, Err: errors.New("login response without access_token")}
	}
	return resp.Data.Login, nil
}
