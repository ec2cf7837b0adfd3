package remote

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// DefaultTimeout bounds a single Act call made through the mrm.Policy interface.
const DefaultTimeout = 5 * time.Second

// #region client-struct
// Client is an mrm.Policy backed by a remote policy service.
type Client struct {
	conn    *grpc.ClientConn
	invoker grpc.ClientConnInterface
	Timeout time.Duration
}

// #endregion client-struct

// #region constructor
// Dial connects to a policy service at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoker: conn, Timeout: DefaultTimeout}, nil
}

// NewClientWithConn creates a Client over an existing connection.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{invoker: cc, Timeout: DefaultTimeout}
}

// #endregion constructor

// #region close
// Close shuts down the connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region act
// Act implements mrm.Policy with a per-call timeout.
func (c *Client) Act(state []*tensor.Tensor, input *tensor.Tensor) ([]*tensor.Tensor, error) {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.ActContext(ctx, state, input)
}

// ActContext sends one Act request.
func (c *Client) ActContext(ctx context.Context, state []*tensor.Tensor, input *tensor.Tensor) ([]*tensor.Tensor, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldState: EncodeTensors(state),
		fieldInput: EncodeTensor(input),
	}}
	resp := new(structpb.Struct)
	if err := c.invoker.Invoke(ctx, ActFullMethod, req, resp); err != nil {
		return nil, fmt.Errorf("act rpc: %w", err)
	}
	action, err := DecodeTensors(resp.GetFields()[fieldAction])
	if err != nil {
		return nil, fmt.Errorf("act response: %w", err)
	}
	return action, nil
}

// #endregion act
