// Package grpcclient talks to a remote inference server that hosts the
// classifier. Requests carry the tensor as packed little-endian float32 in a
// BytesValue; responses are a ListValue of class probabilities.
package grpcclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/imageprocessor"
	"github.com/example/mpox-check/internal/logging"
)

// PredictMethod is the fully qualified RPC invoked for each classification.
const PredictMethod = "/mpox.v1.Classifier/Predict"

// DialClassifier returns a classifier backed by the remote inference server.
// The dial blocks until the connection is ready or dialTimeout elapses.
func DialClassifier(ctx context.Context, addr string, dialTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface, logger *zap.Logger) *Client {
	return &Client{conn: conn, logger: logger.Named("grpc_classifier")}
}

// Client implements classifier.Classifier over gRPC.
type Client struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

var _ classifier.Classifier = (*Client)(nil)

func (c *Client) Classify(ctx context.Context, tensor *imageprocessor.Tensor) ([]float32, error) {
	if err := classifier.CheckInput(ctx, tensor); err != nil {
		return nil, err
	}

	req := wrapperspb.Bytes(EncodeTensor(tensor))
	resp := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", fmt.Errorf("%w: %v", classifier.ErrModelUnavailable, err))
		c.logger.Error("classifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	probs := make([]float32, 0, len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: output %d is not a number", classifier.ErrModelUnavailable, i)
		}
		probs = append(probs, float32(n.NumberValue))
	}
	return probs, nil
}

// Close releases the underlying connection when it is closable.
func (c *Client) Close() error {
	if closer, ok := c.conn.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// EncodeTensor packs the tensor data as little-endian float32.
func EncodeTensor(tensor *imageprocessor.Tensor) []byte {
	buf := make([]byte, 4*len(tensor.Data))
	for i, v := range tensor.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeTensor is the inverse of EncodeTensor for a [1,224,224,3] tensor.
func DecodeTensor(data []byte) (*imageprocessor.Tensor, error) {
	t := imageprocessor.NewTensor(1, imageprocessor.Height, imageprocessor.Width, imageprocessor.Channels)
	if len(data) != 4*t.Len() {
		return nil, fmt.Errorf("tensor payload is %d bytes, want %d", len(data), 4*t.Len())
	}
	for i := range t.Data {
		t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return t, nil
}
