package peer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/rpc/v2/json2"

	"oracle/internal/models"
)

// Client calls a remote node's peer service
type Client struct {
	name     string
	endpoint string
	http     *http.Client
}

// NewClient creates a client for the node at baseURL. Per-request deadlines
// come from the caller's context.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:     name,
		endpoint: strings.TrimRight(baseURL, "/") + "/rpc",
		http:     &http.Client{},
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Validate(ctx context.Context, call *models.Call) (models.ValidationResult, error) {
	var reply ValidateReply
	if err := c.call(ctx, ServiceName+".Validate", &ValidateArgs{Call: *call}, &reply); err != nil {
		return models.ValidationResult{}, err
	}
	return reply.Validation, nil
}

func (c *Client) Sign(ctx context.Context, req models.SignRequest) (models.OracleSignature, error) {
	var reply SignReply
	if err := c.call(ctx, ServiceName+".Sign", &req, &reply); err != nil {
		return models.OracleSignature{}, err
	}
	return reply.Signature, nil
}

func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.name, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", c.name, method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("%s %s: %w", c.name, method, err)
	}
	return nil
}
