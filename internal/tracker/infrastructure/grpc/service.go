package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
)

const serviceName = "orders.v1.OrderService"

const (
	methodSubmitOrder        = "/" + serviceName + "/SubmitOrder"
	methodCreditPoints       = "/" + serviceName + "/CreditPoints"
	methodFinalizeOrderItems = "/" + serviceName + "/FinalizeOrderItems"
	methodGetOrderStatus     = "/" + serviceName + "/GetOrderStatus"
)

type SubmitOrderRequest struct {
	RequestID string              `json:"request_id"`
	Order     domain.OrderPayload `json:"order"`
}

type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`
}

type CreditPointsRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Amount    int    `json:"amount"`
}

type FinalizeOrderItemsRequest struct {
	RequestID string             `json:"request_id"`
	OrderID   string             `json:"order_id"`
	Items     []domain.OrderItem `json:"items"`
}

type GetOrderStatusRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderStatusResponse struct {
	Status string `json:"status"`
}

type Empty struct{}

// OrderServiceServer is implemented by whatever backs the remote order API.
// Errors should carry grpc status codes; codes.NotFound marks unknown orders.
type OrderServiceServer interface {
	SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*SubmitOrderResponse, error)
	CreditPoints(ctx context.Context, req *CreditPointsRequest) (*Empty, error)
	FinalizeOrderItems(ctx context.Context, req *FinalizeOrderItemsRequest) (*Empty, error)
	GetOrderStatus(ctx context.Context, req *GetOrderStatusRequest) (*GetOrderStatusResponse, error)
}

func unary[Req any, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitOrder", Handler: unary(methodSubmitOrder, OrderServiceServer.SubmitOrder)},
		{MethodName: "CreditPoints", Handler: unary(methodCreditPoints, OrderServiceServer.CreditPoints)},
		{MethodName: "FinalizeOrderItems", Handler: unary(methodFinalizeOrderItems, OrderServiceServer.FinalizeOrderItems)},
		{MethodName: "GetOrderStatus", Handler: unary(methodGetOrderStatus, OrderServiceServer.GetOrderStatus)},
	},
	Metadata: "orders/v1/order_service.proto",
}

func Register(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Run serves srv on addr in the background.
func Run(addr string, srv OrderServiceServer) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	Register(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	return gs, nil
}
