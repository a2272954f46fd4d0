package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/domain"
	ordersvc "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/grpc"
)

// Server exposes the backend service as orders.v1.OrderService.
type Server struct {
	svc *application.Service
}

func NewServer(svc *application.Service) *Server { return &Server{svc: svc} }

func (s *Server) SubmitOrder(ctx context.Context, req *ordersvc.SubmitOrderRequest) (*ordersvc.SubmitOrderResponse, error) {
	id, err := s.svc.SubmitOrder(ctx, req.RequestID, req.Order)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ordersvc.SubmitOrderResponse{OrderID: id}, nil
}

func (s *Server) CreditPoints(ctx context.Context, req *ordersvc.CreditPointsRequest) (*ordersvc.Empty, error) {
	if req.Amount <= 0 {
		return nil, status.Error(codes.InvalidArgument, "amount must be positive")
	}
	if err := s.svc.CreditPoints(ctx, req.RequestID, req.UserID, req.Amount); err != nil {
		return nil, toStatus(err)
	}
	return &ordersvc.Empty{}, nil
}

func (s *Server) FinalizeOrderItems(ctx context.Context, req *ordersvc.FinalizeOrderItemsRequest) (*ordersvc.Empty, error) {
	if err := s.svc.FinalizeItems(ctx, req.OrderID, req.Items); err != nil {
		return nil, toStatus(err)
	}
	return &ordersvc.Empty{}, nil
}

func (s *Server) GetOrderStatus(ctx context.Context, req *ordersvc.GetOrderStatusRequest) (*ordersvc.GetOrderStatusResponse, error) {
	st, err := s.svc.Status(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ordersvc.GetOrderStatusResponse{Status: string(st)}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrTotalMismatch), errors.Is(err, domain.ErrEmptyOrder):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
