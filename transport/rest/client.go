package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
)

const defaultClientTimeout = 10 * time.Second

// JoinClient calls the join RPC of a remote server. Sessions running away from
// the store use it in place of a local coordinator.
type JoinClient struct {
	baseURL string
	client  *http.Client
}

func NewJoinClient(baseURL string, client *http.Client) *JoinClient {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}

	return &JoinClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (that *JoinClient) TryJoin(ctx context.Context, gameID, playerID string) (bool, error) {
	body, err := json.Marshal(JoinRequest{GameID: gameID, PlayerID: playerID})
	if err != nil {
		return false, fmt.Errorf("could not marshal join request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, that.baseURL+"/rpc/join", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build join request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := that.client.Do(request)
	if err != nil {
		return false, fmt.Errorf("failed to call join: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		var failure errorResponse
		_ = json.NewDecoder(response.Body).Decode(&failure)

		if response.StatusCode == http.StatusBadRequest {
			return false, fmt.Errorf("%w: %s", apperror.ErrInvalidArgs, failure.Error)
		}

		return false, fmt.Errorf("join failed with status %d: %s", response.StatusCode, failure.Error)
	}

	var result JoinResponse
	if err = json.NewDecoder(response.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode join response: %w", err)
	}

	return result.Accepted, nil
}
