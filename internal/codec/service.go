package codec

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region service-desc
// ServiceName is the fully qualified gRPC service served by evidence backends.
const ServiceName = "deepresearch.EvidenceService"

const retrieveMethod = "/" + ServiceName + "/Retrieve"

// EvidenceServiceServer is the server API for EvidenceService. Requests and
// responses are google.protobuf.Struct so backends in any language can
// implement it without shared generated code.
type EvidenceServiceServer interface {
	Retrieve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func retrieveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvidenceServiceServer).Retrieve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: retrieveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EvidenceServiceServer).Retrieve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var evidenceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvidenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Retrieve", Handler: retrieveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deepresearch/evidence.proto",
}
// #endregion service-desc

// #region server
// evidenceServer exposes a research.EvidenceSource over gRPC.
type evidenceServer struct {
	source research.EvidenceSource
}

// RegisterEvidenceServer serves source as EvidenceService on s.
func RegisterEvidenceServer(s grpc.ServiceRegistrar, source research.EvidenceSource) {
	s.RegisterService(&evidenceServiceDesc, &evidenceServer{source: source})
}

func (e *evidenceServer) Retrieve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	query := req.GetFields()["query"].GetStringValue()
	if query == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}
	ev, err := e.source.Retrieve(ctx, query)
	if err != nil {
		logging.New("codec").Debug("retrieve failed", "query", query, "error", err)
		return nil, toStatus(err)
	}
	return encodeEvidence(ev)
}

// toStatus maps a source error onto the gRPC code the client classifies.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case research.IsRetryable(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.NotFound, err.Error())
	}
}
// #endregion server

// #region encoding
func encodeEvidence(ev research.Evidence) (*structpb.Struct, error) {
	sources := make([]any, 0, len(ev.Sources))
	for _, s := range ev.Sources {
		sources = append(sources, map[string]any{
			"title": s.Title,
			"url":   s.URL,
			"score": s.Score,
		})
	}
	out, err := structpb.NewStruct(map[string]any{
		"text":    ev.Text,
		"origin":  ev.Origin,
		"score":   ev.Score,
		"sources": sources,
	})
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return out, nil
}

func decodeEvidence(query string, msg *structpb.Struct) research.Evidence {
	f := msg.GetFields()
	ev := research.Evidence{
		Query:  query,
		Text:   f["text"].GetStringValue(),
		Origin: f["origin"].GetStringValue(),
		Score:  f["score"].GetNumberValue(),
	}
	for _, v := range f["sources"].GetListValue().GetValues() {
		sf := v.GetStructValue().GetFields()
		ev.Sources = append(ev.Sources, research.Source{
			Title: sf["title"].GetStringValue(),
			URL:   sf["url"].GetStringValue(),
			Score: sf["score"].GetNumberValue(),
		})
	}
	return ev
}
// #endregion encoding
