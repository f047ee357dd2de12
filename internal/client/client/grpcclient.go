package client

import (
	"context"
	"fmt"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const serviceName = "fieldsync.v1.Congregation"

const (
	methodFetchAllData      = "/" + serviceName + "/FetchAllData"
	methodFetchAllPhoneData = "/" + serviceName + "/FetchAllPhoneData"
	methodMutate            = "/" + serviceName + "/Mutate"
	methodPing              = "/" + serviceName + "/Ping"
)

// TokenSource yields the current session token; "" sends no token.
type TokenSource func(ctx context.Context) (string, error)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	tokens      TokenSource
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

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.tokens != nil {
		token, err := s.tokens(ctx)
		if err != nil {
			return fmt.Errorf("read session token: %w", err)
		}
		if token != "" {
			ctx = withAccessToken(ctx, token)
		}
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient creates a lazily connecting client. Extra dial options are
// appended after the defaults (insecure transport, token interceptor).
func NewGRPCClient(endpointURL string, tokens TokenSource, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, tokens: tokens}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create grpc client for %s: %w", endpointURL, err)
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) invoke(ctx context.Context, method string, req any) ([]byte, error) {
	var reply rawMessage
	if err := s.conn.Invoke(ctx, method, req, &reply); err != nil {
		return nil, s.mapError(err)
	}
	return reply, nil
}

func (s *GRPCClient) FetchAllData(ctx context.Context, congregationID string) (models.Snapshot, error) {
	data, err := s.invoke(ctx, methodFetchAllData, scopeRequest{CongregationID: congregationID})
	if err != nil {
		return models.Snapshot{}, err
	}
	return decodeSnapshot(data, congregationID)
}

func (s *GRPCClient) FetchAllPhoneData(ctx context.Context, congregationID string) (models.PhoneSnapshot, error) {
	data, err := s.invoke(ctx, methodFetchAllPhoneData, scopeRequest{CongregationID: congregationID})
	if err != nil {
		return models.PhoneSnapshot{}, err
	}
	return decodePhoneSnapshot(data, congregationID)
}

func (s *GRPCClient) Mutate(ctx context.Context, m models.Mutation) (models.MutationResult, error) {
	if err := m.Validate(); err != nil {
		return models.MutationResult{}, err
	}
	req := mutateRequest{Op: m.Op, Table: m.Table, ID: m.ID}
	if m.Op == models.OpUpsert {
		b, err := json.Marshal(m.Record)
		if err != nil {
			return models.MutationResult{}, fmt.Errorf("encode %s record: %w", m.Table, err)
		}
		req.Record = b
	}

	data, err := s.invoke(ctx, methodMutate, req)
	if err != nil {
		return models.MutationResult{}, err
	}

	var resp mutateResponse
	if err := decodeStrict(data, &resp); err != nil {
		return models.MutationResult{}, err
	}
	if resp.Op != m.Op || resp.Table != m.Table {
		return models.MutationResult{}, fmt.Errorf("%w: reply for %s %s, asked %s %s", common.ErrDecode, resp.Op, resp.Table, m.Op, m.Table)
	}
	res := models.MutationResult{Op: resp.Op, Table: resp.Table, ID: resp.ID}
	if resp.Op == models.OpUpsert {
		rec, grants, err := decodeRecord(resp.Table, resp.Record)
		if err != nil {
			return models.MutationResult{}, err
		}
		res.Record, res.ID, res.Grants = rec, rec.Key(), grants
	}
	return res, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	data, err := s.invoke(ctx, methodPing, struct{}{})
	if err != nil {
		return err
	}
	var resp pingResponse
	if err := decodeStrict(data, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	default:
		return fmt.Errorf("%w: rpc error: %w", common.ErrTransport, err)
	}
}
