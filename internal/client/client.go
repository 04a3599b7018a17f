// Package client is a Go client for the vault's gRPC API. It performs the
// device side of the key protocol: content is encrypted and DEKs are sealed
// locally, so only ciphertext and sealed keys ever reach the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/sealvault/internal/common"
	vault "github.com/dmitrijs2005/sealvault/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var ErrUnavailable = errors.New("vault unavailable")

const refreshMethod = "Refresh"

type Client struct {
	conn *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// New connects to target. Extra dial options are appended after the
// defaults, so callers can swap transport credentials or the dialer.
func New(target string, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(vault.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func fullMethod(name string) string {
	return "/" + vault.ServiceName + "/" + name
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *Client) setTokens(tp *vault.TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = tp.AccessToken
	c.refreshToken = tp.RefreshToken
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// accessTokenInterceptor attaches the access token and, when the server
// reports it expired, rotates the refresh token once and retries.
func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	access, refresh := c.tokens()
	if access == "" || method == fullMethod(refreshMethod) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	st, ok := status.FromError(err)
	if err == nil || !ok || st.Code() != codes.Unauthenticated || st.Message() != "token expired" || refresh == "" {
		return err
	}

	tp := &vault.TokenPair{}
	if err := invoker(ctx, fullMethod(refreshMethod), &vault.RefreshRequest{RefreshToken: refresh}, tp, cc, opts...); err != nil {
		return err
	}
	c.setTokens(tp)

	return invoker(withAccessToken(ctx, tp.AccessToken), method, req, reply, cc, opts...)
}

// mapError turns gRPC statuses back into the sentinel errors of package common.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return common.ErrorUnauthorized
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", common.ErrorConflict, st.Message())
	case codes.FailedPrecondition:
		return common.ErrorAccountLocked
	case codes.ResourceExhausted:
		return common.ErrorRateLimited
	case codes.Unavailable:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (c *Client) Ping(ctx context.Context) error {
	resp := &vault.PingResponse{}
	if err := c.call(ctx, "Ping", &vault.Empty{}, resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	resp := &vault.RegisterResponse{}
	if err := c.call(ctx, "Register", &vault.Credentials{Email: email, Password: password}, resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// Login stores the session tokens on the client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	resp := &vault.TokenPair{}
	if err := c.call(ctx, "Login", &vault.Credentials{Email: email, Password: password}, resp); err != nil {
		return err
	}
	c.setTokens(resp)
	return nil
}
