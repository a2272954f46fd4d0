package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

// OrderClient talks to the remote order service.
type OrderClient struct {
	log *slog.Logger
	cc  grpc.ClientConnInterface
}

func NewOrderClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*OrderClient, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return &OrderClient{log: log, cc: conn}, conn, nil
}

// WithCallTimeout bounds every call that arrives without its own deadline.
func WithCallTimeout(d time.Duration) grpc.DialOption {
	return grpc.WithChainUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := ctx.Deadline(); !ok && d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	})
}

func (c *OrderClient) invoke(ctx context.Context, method string, req, resp any) error {
	err := c.cc.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(codecName))
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	c.log.Warn("order service call failed", "method", method, "code", st.Code().String(), "err", err)
	if st.Code() == codes.NotFound {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, st.Message())
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrNetworkFailure, st.Code(), st.Message())
}

func (c *OrderClient) SubmitOrder(ctx context.Context, p domain.OrderPayload) (string, error) {
	var resp SubmitOrderResponse
	req := &SubmitOrderRequest{RequestID: uuid.NewString(), Order: p}
	if err := c.invoke(ctx, methodSubmitOrder, req, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%w: empty order id", domain.ErrNetworkFailure)
	}
	return resp.OrderID, nil
}

func (c *OrderClient) CreditPoints(ctx context.Context, userID string, amount int) error {
	req := &CreditPointsRequest{RequestID: uuid.NewString(), UserID: userID, Amount: amount}
	return c.invoke(ctx, methodCreditPoints, req, &Empty{})
}

func (c *OrderClient) FinalizeOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	req := &FinalizeOrderItemsRequest{RequestID: uuid.NewString(), OrderID: orderID, Items: items}
	return c.invoke(ctx, methodFinalizeOrderItems, req, &Empty{})
}

func (c *OrderClient) OrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	var resp GetOrderStatusResponse
	if err := c.invoke(ctx, methodGetOrderStatus, &GetOrderStatusRequest{OrderID: orderID}, &resp); err != nil {
		return "", err
	}
	st, ok := domain.ParseStatus(resp.Status)
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", domain.ErrInvalidStatusEvent, resp.Status)
	}
	return st, nil
}
