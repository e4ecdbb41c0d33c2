package grpcapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/title-ratings/services/catalog/internal/query"
	"github.com/example/title-ratings/services/catalog/internal/store"
)

// Catalog is the part of query.Service the RPC surface exposes.
type Catalog interface {
	Find(ctx context.Context, req query.Request) (query.Page, error)
	Ensure(ctx context.Context, kind store.Kind, externalID string) (store.ContentRecord, error)
}

type CatalogQueryService struct {
	Catalog Catalog
	Log     *zap.Logger
}

func (s *CatalogQueryService) Find(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	params := stringFields(in)
	req, err := query.ParseParams(func(k string) string { return params[k] })
	if err != nil {
		return nil, toStatus(err)
	}
	page, err := s.Catalog.Find(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	if strings.EqualFold(params["mode"], "append") {
		return s.toStruct(page.Append())
	}
	return s.toStruct(page)
}

func (s *CatalogQueryService) Ensure(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	params := stringFields(in)
	kind, err := store.ParseKind(params["kind"])
	if err != nil {
		kind = store.Kind(params["kind"])
	}
	rec, err := s.Catalog.Ensure(ctx, kind, params["external_id"])
	if err != nil {
		return nil, toStatus(err)
	}
	return s.toStruct(rec)
}

// toStruct converts v through its JSON form so field names match the HTTP
// responses.
func (s *CatalogQueryService) toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, s.internal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, s.internal(err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, s.internal(err)
	}
	return out, nil
}

func (s *CatalogQueryService) internal(err error) error {
	if s.Log != nil {
		s.Log.Error("encode response", zap.Error(err))
	}
	return toStatus(err)
}

// stringFields flattens scalar struct fields to their string form.
func stringFields(in *structpb.Struct) map[string]string {
	out := make(map[string]string, len(in.GetFields()))
	for k, v := range in.GetFields() {
		switch x := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			out[k] = x.StringValue
		case *structpb.Value_NumberValue:
			out[k] = strconv.FormatFloat(x.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			out[k] = strconv.FormatBool(x.BoolValue)
		}
	}
	return out
}
