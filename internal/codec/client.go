package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region client-struct
// Client is a research.EvidenceSource backed by a remote EvidenceService.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewClient connects to an EvidenceService at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection. The
// caller keeps ownership of cc.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region retrieve
// Retrieve asks the remote service for evidence on query.
func (c *Client) Retrieve(ctx context.Context, query string) (research.Evidence, error) {
	req, err := structpb.NewStruct(map[string]any{"query": query})
	if err != nil {
		return research.Evidence{}, research.Permanent(fmt.Errorf("encode request: %w", err))
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, retrieveMethod, req, resp); err != nil {
		return research.Evidence{}, classify(ctx, err)
	}
	ev := decodeEvidence(query, resp)
	if strings.TrimSpace(ev.Text) == "" {
		return research.Evidence{}, research.Permanentf("retrieve rpc: empty evidence for %q", query)
	}
	return ev, nil
}

// classify maps gRPC status codes onto retryability.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retrieve rpc: %w", ctxErr)
	}
	st, ok := status.FromError(err)
	if !ok {
		return research.Retryable(fmt.Errorf("retrieve rpc: %w", err))
	}
	wrapped := fmt.Errorf("retrieve rpc: %s: %s", st.Code(), st.Message())
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return research.Retryable(wrapped)
	case codes.Canceled:
		return errors.Join(wrapped, context.Canceled)
	default:
		return research.Permanent(wrapped)
	}
}
// #endregion retrieve
