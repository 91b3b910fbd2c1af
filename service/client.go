package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/achilleasa/katapayadi/client"
)

// Client is a typed client for the katapayadi service.
type Client struct {
	rpc *client.Client
}

// NewClient creates a client for the katapayadi service. The options are
// passed to client.New.
func NewClient(opts ...client.Option) (*Client, error) {
	rpc, err := client.New(Name, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc}, nil
}

// Close releases the underlying RPC client.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Encode calls the encode endpoint.
func (c *Client) Encode(ctx context.Context, text string, key int) (*EncodeResponse, error) {
	res := &EncodeResponse{}
	if err := c.rpc.Request(ctx, "encode", &EncodeRequest{Text: text, Key: key}, res); err != nil {
		return nil, remoteError(err)
	}
	return res, nil
}

// Decode calls the decode endpoint.
func (c *Client) Decode(ctx context.Context, numbers string, key int) (*DecodeResponse, error) {
	res := &DecodeResponse{}
	if err := c.rpc.Request(ctx, "decode", &DecodeRequest{Numbers: numbers, Key: key}, res); err != nil {
		return nil, remoteError(err)
	}
	return res, nil
}

// Candidates calls the candidates endpoint.
func (c *Client) Candidates(ctx context.Context, numbers string, key int) ([][]string, error) {
	res := &CandidatesResponse{}
	if err := c.rpc.Request(ctx, "candidates", &CandidatesRequest{Numbers: numbers, Key: key}, res); err != nil {
		return nil, remoteError(err)
	}
	return res.Candidates, nil
}

// remoteError restores ErrInputTooLong for errors that crossed a transport
// as plain messages.
func remoteError(err error) error {
	if errors.Is(err, ErrInputTooLong) {
		return err
	}

	if msg := err.Error(); strings.HasPrefix(msg, ErrInputTooLong.Error()) {
		rest := strings.TrimPrefix(strings.TrimPrefix(msg, ErrInputTooLong.Error()), ": ")
		if rest == "" {
			return ErrInputTooLong
		}
		return fmt.Errorf("%w: %s", ErrInputTooLong, rest)
	}
	return err
}
