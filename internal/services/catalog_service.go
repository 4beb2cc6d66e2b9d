package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/currency"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/observability"
	"github.com/marketline/api/internal/platform/textutil"
	"github.com/marketline/api/internal/repositories"
)

const (
	maxProductNameLength        = 200
	maxProductDescriptionLength = 4000
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products        repositories.ProductRepository
	DefaultCurrency string
	Metrics         *observability.OrderMetrics
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          Logger
}

type catalogService struct {
	products        repositories.ProductRepository
	defaultCurrency string
	metrics         *observability.OrderMetrics
	clock           func() time.Time
	newID           func() string
	logger          Logger
}

// NewCatalogService wires dependencies into a ProductCatalog implementation.
func NewCatalogService(deps CatalogServiceDeps) (ProductCatalog, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &catalogService{
		products:        deps.Products,
		defaultCurrency: defaultCurrency,
		metrics:         deps.Metrics,
		clock:           func() time.Time { return clock().UTC() },
		newID:           idGen,
		logger:          logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" {
		return Product{}, fmt.Errorf("%w: seller id is required", ErrInvalidInput)
	}
	name := textutil.PlainText(cmd.Name, maxProductNameLength)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must be non-negative", ErrInvalidQuantity)
	}
	code, err := s.normaliseCurrency(cmd.Currency)
	if err != nil {
		return Product{}, err
	}
	status := cmd.Status
	if status == "" {
		status = domain.ProductStatusDraft
	}
	if !status.IsValid() {
		return Product{}, fmt.Errorf("%w: unknown product status %q", ErrInvalidInput, status)
	}
	id := strings.TrimSpace(cmd.ProductID)
	if id == "" {
		id = "prd_" + strings.ToLower(s.newID())
	}

	now := s.clock()
	product := Product{
		ID:          id,
		SellerID:    sellerID,
		Name:        name,
		Description: textutil.PlainText(cmd.Description, maxProductDescriptionLength),
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		Price:       cmd.Price,
		Currency:    code,
		Stock:       cmd.Stock,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err)
	}
	s.logger(ctx, "product.created", map[string]any{"productId": id, "sellerId": sellerID})
	return product, nil
}

func (s *catalogService) ListSellerProducts(ctx context.Context, sellerID string, pager Pagination) (domain.CursorPage[Product], error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: seller id is required", ErrInvalidInput)
	}
	page, err := s.products.ListBySeller(ctx, sellerID, pager)
	if err != nil {
		return domain.CursorPage[Product]{}, mapRepositoryError(err)
	}
	return page, nil
}

// AdjustStock applies the adjustment in one repository transaction so the check and the write
// see the same stock value.
func (s *catalogService) AdjustStock(ctx context.Context, adj StockAdjustment) (product Product, err error) {
	ctx, end := observability.StartSpan(ctx, "catalog.AdjustStock",
		attribute.String("product.id", adj.ProductID),
		attribute.Int("stock.quantity", adj.Quantity),
	)
	defer func() { end(err) }()

	productID := strings.TrimSpace(adj.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if adj.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: adjustment quantity must be non-negative", ErrInvalidQuantity)
	}
	switch adj.Reason {
	case domain.StockReasonAdd, domain.StockReasonSubtract:
	default:
		return Product{}, fmt.Errorf("%w: unknown stock reason %q", ErrInvalidInput, adj.Reason)
	}

	product, err = s.products.AdjustStock(ctx, productID, adj.Delta(), s.clock())
	if err != nil {
		mapped := mapRepositoryError(err)
		if errors.Is(mapped, ErrInsufficientStock) {
			s.metrics.StockConflict(ctx, productID)
		}
		return Product{}, mapped
	}
	s.logger(ctx, "product.stock.adjusted", map[string]any{
		"productId": productID,
		"reason":    string(adj.Reason),
		"quantity":  adj.Quantity,
		"stock":     product.Stock,
		"actorId":   adj.ActorID,
	})
	return product, nil
}

func (s *catalogService) SetStatus(ctx context.Context, cmd SetProductStatusCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if !cmd.Status.IsValid() {
		return Product{}, fmt.Errorf("%w: unknown product status %q", ErrInvalidInput, cmd.Status)
	}
	product, err := s.products.UpdateStatus(ctx, repositories.ProductStatusUpdate{
		ProductID: productID,
		Status:    cmd.Status,
		UpdatedAt: s.clock(),
	})
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	s.logger(ctx, "product.status.changed", map[string]any{
		"productId": productID,
		"status":    string(cmd.Status),
		"actorId":   cmd.ActorID,
	})
	return product, nil
}

// RemoveProduct deletes logically: the product becomes inactive and is hidden from seller listings,
// while carts and orders keep their snapshots.
func (s *catalogService) RemoveProduct(ctx context.Context, productID string, actorID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	now := s.clock()
	product, err := s.products.UpdateStatus(ctx, repositories.ProductStatusUpdate{
		ProductID: productID,
		Status:    domain.ProductStatusInactive,
		DeletedAt: &now,
		UpdatedAt: now,
	})
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	s.logger(ctx, "product.removed", map[string]any{"productId": productID, "actorId": actorID})
	return product, nil
}

func (s *catalogService) normaliseCurrency(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.defaultCurrency, nil
	}
	unit, err := currency.ParseISO(raw)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, raw)
	}
	return unit.String(), nil
}
