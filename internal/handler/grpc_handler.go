package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/service"
)

// WorkflowServiceName is the fully qualified gRPC service name.
const WorkflowServiceName = "procurement.workflow.v1.WorkflowService"

// actorMetadataKey carries the caller ID, mirroring the HTTP header.
const actorMetadataKey = "x-actor-id"

// WorkflowServer is the server side of WorkflowService. Messages are
// JSON-shaped structs so the service needs no generated code.
type WorkflowServer interface {
	PerformAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CombineRequests(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// WorkflowServiceDesc describes WorkflowService for grpc.Server.RegisterService.
var WorkflowServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkflowServiceName,
	HandlerType: (*WorkflowServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PerformAction", Handler: unaryHandler("PerformAction", WorkflowServer.PerformAction)},
		{MethodName: "GetRequest", Handler: unaryHandler("GetRequest", WorkflowServer.GetRequest)},
		{MethodName: "CombineRequests", Handler: unaryHandler("CombineRequests", WorkflowServer.CombineRequests)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procurement/workflow/v1/workflow.proto",
}

func unaryHandler(method string, call func(WorkflowServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + WorkflowServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(WorkflowServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(WorkflowServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements WorkflowServer
type GRPCHandler struct {
	workflow WorkflowAPI
	requests RequestAPI
	logger   zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(workflow WorkflowAPI, requests RequestAPI, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		workflow: workflow,
		requests: requests,
		logger:   logger.With().Str("handler", "grpc").Logger(),
	}
}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&WorkflowServiceDesc, h)
}

// actorFromContext extracts the caller from incoming metadata, or returns empty string.
func actorFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(actorMetadataKey); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// PerformAction applies a workflow action.
// Input: {"id", "action", "comment", "override", "officer_id", "combine_with"}.
func (h *GRPCHandler) PerformAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ID     string `json:"id"`
		Action string `json:"action"`
		service.ActionPayload
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("request_id", req.ID).
		Str("action", req.Action).
		Msg("gRPC PerformAction called")

	action := domain.Action(strings.ToLower(strings.TrimSpace(req.Action)))
	res, err := h.workflow.PerformAction(ctx, req.ID, action, actorFromContext(ctx), req.ActionPayload)
	if err != nil {
		h.logger.Warn().Err(err).Str("request_id", req.ID).Msg("Action rejected")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(res)
}

// GetRequest retrieves a request by ID. Input: {"id"}.
func (h *GRPCHandler) GetRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	req, err := h.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(req)
}

// CombineRequests folds requests into a combined request. Input: {"request_ids"}.
func (h *GRPCHandler) CombineRequests(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		RequestIDs []string `json:"request_ids"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	h.logger.Info().Strs("request_ids", req.RequestIDs).Msg("gRPC CombineRequests called")

	combo, err := h.workflow.Combine(ctx, req.RequestIDs, actorFromContext(ctx))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Combine rejected")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{"combined": combo.Parent, "members": combo.Members})
}

func fromStruct(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.Aborted, errMsg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, errMsg)
	case errors.ErrCodePreconditionFailed:
		return status.Error(codes.FailedPrecondition, errMsg)
	case errors.ErrCodeUnavailable:
		return status.Error(codes.Unavailable, errMsg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
