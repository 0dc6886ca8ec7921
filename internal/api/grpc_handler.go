package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"storefront-catalog-service/internal/catalog"
	"storefront-catalog-service/internal/domain"
	"storefront-catalog-service/internal/search"
)

// GRPCHandler implements catalog.v1.CatalogService over the in-memory catalog.
type GRPCHandler struct {
	svc    Services
	logger *zap.Logger
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(svc Services, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{svc: svc, logger: logger}
}

var _ CatalogServiceServer = (*GRPCHandler)(nil)

// Register adds the catalog and health services to s. Health reports
// NOT_SERVING until the catalog's ready gate opens or ctx is done.
func (s *GRPCHandler) Register(ctx context.Context, srv *grpc.Server) *health.Server {
	RegisterCatalogServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(CatalogServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, hs)

	go func() {
		select {
		case <-s.svc.Catalog.Ready():
			hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
			hs.SetServingStatus(CatalogServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
			s.logger.Info("catalog ready, gRPC health serving")
		case <-ctx.Done():
		}
	}()
	return hs
}

// --- Helper: Error Mapping ---
func (s *GRPCHandler) mapError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Errorf(codes.NotFound, "%s with ID %v not found", resource, id)
	case errors.Is(err, domain.ErrInvalidPriceRange), errors.Is(err, domain.ErrInvalidSortKey):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	default:
		s.logger.Error("rpc failed", zap.String("resource", resource), zap.Any("id", id), zap.Error(err))
		return status.Errorf(codes.Internal, "Failed to process request for %s", resource)
	}
}

func (s *GRPCHandler) requireReady() error {
	if !s.svc.Catalog.IsReady() {
		return status.Error(codes.Unavailable, "catalog snapshot not loaded yet")
	}
	return nil
}

// GetFilteredView returns the live filtered view. Filter fields in the request
// are applied on top of the live configuration for this call only.
func (s *GRPCHandler) GetFilteredView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	patch, err := filterPatchFromStruct(req)
	if err != nil {
		return nil, err
	}

	cfg := patch.Merge(s.svc.Catalog.Filters())
	products := s.svc.Catalog.FilteredView()
	if !patch.Empty() {
		if err := catalog.ValidateFilters(cfg); err != nil {
			return nil, s.mapError(err, "Filters", nil)
		}
		products = catalog.Apply(s.svc.Catalog.Products(), cfg)
	}

	return structpb.NewStruct(map[string]any{
		"version":  float64(s.svc.Catalog.Version()),
		"filters":  filtersToMap(cfg),
		"products": s.productList(products),
		"total":    len(products),
	})
}

func (s *GRPCHandler) GetProductDetails(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(stringField(req, "id"))
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "Product ID is required")
	}
	p, err := s.svc.Catalog.ProductByID(id)
	if err != nil {
		return nil, s.mapError(err, "Product", id)
	}
	return structpb.NewStruct(map[string]any{"product": s.productMap(p)})
}

// Search runs an immediate search over the full catalog. It shares the overlay's
// matching rules but leaves the overlay's own state untouched.
func (s *GRPCHandler) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	res := s.svc.Search.Search(stringField(req, "query"))
	out := map[string]any{
		"state":    string(res.State),
		"products": s.productList(res.Products),
	}
	if res.State != search.StateInactive {
		out["query"] = res.Query
	}
	if res.Message != "" {
		out["message"] = res.Message
	}
	return structpb.NewStruct(out)
}

// --- Conversion helpers ---

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

func filterPatchFromStruct(req *structpb.Struct) (domain.FilterPatch, error) {
	var patch domain.FilterPatch
	if req == nil {
		return patch, nil
	}
	fields := req.GetFields()
	if v, ok := fields["category"]; ok {
		c := domain.ParseCategory(v.GetStringValue())
		if strings.TrimSpace(v.GetStringValue()) == "" {
			c = ""
		}
		patch.Category = &c
	}
	for key, dst := range map[string]**float64{"min_price": &patch.MinPrice, "max_price": &patch.MaxPrice} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum {
			return patch, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
		}
		f := n.NumberValue
		*dst = &f
	}
	if v, ok := fields["search"]; ok {
		q := v.GetStringValue()
		patch.Search = &q
	}
	if v, ok := fields["sort_by"]; ok {
		k := domain.SortKey(v.GetStringValue())
		patch.SortBy = &k
	}
	return patch, nil
}

func filtersToMap(cfg domain.FilterConfig) map[string]any {
	m := map[string]any{
		"category":  string(cfg.Category),
		"min_price": cfg.MinPrice,
		"search":    cfg.Search,
		"sort_by":   string(cfg.SortBy),
	}
	if cfg.MaxPrice < domain.DefaultMaxPrice {
		m["max_price"] = cfg.MaxPrice
	}
	return m
}

func (s *GRPCHandler) productMap(p domain.Product) map[string]any {
	r := s.svc.presentOne(p)
	m := map[string]any{
		"id":             r.ID,
		"name":           r.Name,
		"description":    r.Description,
		"price":          r.Price,
		"category":       string(r.Category),
		"category_label": r.CategoryLabel,
		"featured":       r.Featured,
		"popular":        r.Popular,
		"favorite":       r.Favorite,
		"display_price":  r.DisplayPrice,
		"display_amount": r.DisplayAmount,
		"created":        r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Image != "" {
		m["image"] = r.Image
	}
	return m
}

func (s *GRPCHandler) productList(products []domain.Product) []any {
	out := make([]any, len(products))
	for i, p := range products {
		out[i] = s.productMap(p)
	}
	return out
}
