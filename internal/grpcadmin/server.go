package grpcadmin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kubilitics/gatewayd/internal/flow"
	"github.com/kubilitics/gatewayd/pkg/contracts"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// AdminService backs the gRPC admin surface: monitoring control and flow
// queries, mirroring the HTTP admin API for operators who prefer a gRPC
// client (e.g. an internal CLI or another service).
type AdminService struct {
	monitoring *flow.MonitoringSet
	tracker    *flow.Tracker
	logger     *zap.Logger
}

// NewAdminService wires the gRPC admin surface to the live monitoring set
// and flow tracker shared with the HTTP admin handlers.
func NewAdminService(monitoring *flow.MonitoringSet, tracker *flow.Tracker, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{monitoring: monitoring, tracker: tracker, logger: logger}
}

func (s *AdminService) enableMonitoring(ctx context.Context, req *contracts.EnableMonitoringRequest) (*contracts.EnableMonitoringResponse, error) {
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.monitoring.Enable(req.UserID, ttl)
	s.logger.Info("admin enabled monitoring via grpc", zap.String("user_id", req.UserID))
	return &contracts.EnableMonitoringResponse{
		UserID:    req.UserID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}, nil
}

func (s *AdminService) disableMonitoring(ctx context.Context, req *contracts.DisableMonitoringRequest) (*contracts.HealthCheckResponse, error) {
	s.monitoring.Disable(req.UserID)
	return &contracts.HealthCheckResponse{Status: "ok", Timestamp: time.Now().Unix()}, nil
}

func (s *AdminService) listMonitored(ctx context.Context, _ *contracts.ListMonitoredRequest) (*contracts.ListMonitoredResponse, error) {
	regs := s.monitoring.List()
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.UserID)
	}
	return &contracts.ListMonitoredResponse{UserIDs: ids}, nil
}

func (s *AdminService) queryFlows(ctx context.Context, req *contracts.FlowQueryRequest) (*contracts.FlowQueryResponse, error) {
	events := s.tracker.Events(req.SessionID)
	limit := req.Limit
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	wire := make([]contracts.FlowEventWire, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			payload = []byte("{}")
		}
		wire = append(wire, contracts.FlowEventWire{
			ID:          e.ID,
			ParentID:    e.ParentID,
			SessionID:   e.SessionID,
			Kind:        e.Kind,
			PayloadJSON: string(payload),
			Timestamp:   e.Timestamp.Unix(),
		})
	}
	return &contracts.FlowQueryResponse{Events: wire}, nil
}

func (s *AdminService) healthCheck(ctx context.Context, _ *contracts.HealthCheckRequest) (*contracts.HealthCheckResponse, error) {
	return &contracts.HealthCheckResponse{Status: "ok", Timestamp: time.Now().Unix()}, nil
}

// handler adapts a concrete request/response pair to grpc.MethodHandler
// without a protoc-generated stub: dec decodes the wire bytes (through the
// registered JSON codec) into req, then fn is invoked and its result is
// returned as the RPC response.
func handler[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/gatewayd.admin.v1.Admin/"}
		wrapped := func(ctx context.Context, reqIface interface{}) (interface{}, error) {
			return fn(ctx, reqIface.(*Req))
		}
		return interceptor(ctx, req, info, wrapped)
	}
}

// ServiceDesc describes the admin gRPC service without a .proto file: each
// MethodDesc wires a concrete handler built with handler[Req, Resp].
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "gatewayd.admin.v1.Admin",
	HandlerType: (*AdminService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EnableMonitoring",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return handler(srv.(*AdminService).enableMonitoring)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "DisableMonitoring",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return handler(srv.(*AdminService).disableMonitoring)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "ListMonitored",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return handler(srv.(*AdminService).listMonitored)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "QueryFlows",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return handler(srv.(*AdminService).queryFlows)(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "HealthCheck",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				return handler(srv.(*AdminService).healthCheck)(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/grpcadmin/server.go",
}

// Register attaches the admin service to an existing *grpc.Server, forcing
// the JSON codec for this service's calls.
func Register(s *grpc.Server, svc *AdminService) {
	s.RegisterService(&ServiceDesc, svc)
}
