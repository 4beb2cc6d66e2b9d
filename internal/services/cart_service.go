package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/repositories"
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts               repositories.CartRepository
	Products            repositories.ProductRepository
	Pricing             domain.PricingPolicy
	Currency            string
	PriceDriftTolerance int64
	Clock               func() time.Time
	Logger              Logger
}

type cartService struct {
	carts          repositories.CartRepository
	products       repositories.ProductRepository
	pricing        domain.PricingPolicy
	currency       string
	driftTolerance int64
	clock          func() time.Time
	logger         Logger
}

// NewCartService wires dependencies into a CartManager implementation.
func NewCartService(deps CartServiceDeps) (CartManager, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.PriceDriftTolerance < 0 {
		return nil, errors.New("cart service: price drift tolerance must be non-negative")
	}
	pricing := deps.Pricing
	if pricing == (domain.PricingPolicy{}) {
		pricing = domain.DefaultPricingPolicy()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &cartService{
		carts:          deps.Carts,
		products:       deps.Products,
		pricing:        pricing,
		currency:       currency,
		driftTolerance: deps.PriceDriftTolerance,
		clock:          func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.load(ctx, userID)
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	userID, productID, err := cartKeys(cmd.UserID, cmd.ProductID)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	product, err := s.liveProduct(ctx, productID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	idx := indexOfItem(cart.Items, productID)
	requested := cmd.Quantity
	if idx >= 0 {
		requested += cart.Items[idx].Quantity
	}
	if err := checkPurchasable(product, requested); err != nil {
		return Cart{}, err
	}
	if err := s.checkCurrency(cart, product); err != nil {
		return Cart{}, err
	}

	if idx >= 0 {
		cart.Items[idx].Quantity = requested
		cart.Items[idx].UpdatedAt = &now
	} else {
		cart.Items = append(cart.Items, CartItem{
			ProductID: productID,
			Product:   product.Snapshot(now),
			Quantity:  cmd.Quantity,
			AddedAt:   now,
		})
	}
	return s.save(ctx, cart, now)
}

func (s *cartService) UpdateQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	userID, productID, err := cartKeys(cmd.UserID, cmd.ProductID)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Quantity < 0 {
		return Cart{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidQuantity)
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	idx := indexOfItem(cart.Items, productID)
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: product %s is not in the cart", ErrNotFound, productID)
	}
	product, err := s.liveProduct(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if err := checkPurchasable(product, cmd.Quantity); err != nil {
		return Cart{}, err
	}
	if err := s.checkCurrency(cart, product); err != nil {
		return Cart{}, err
	}

	now := s.clock()
	cart.Items[idx].Quantity = cmd.Quantity
	cart.Items[idx].Product = product.Snapshot(now)
	cart.Items[idx].UpdatedAt = &now
	return s.save(ctx, cart, now)
}

func (s *cartService) RemoveItem(ctx context.Context, userID string, productID string) (Cart, error) {
	userID, productID, err := cartKeys(userID, productID)
	if err != nil {
		return Cart{}, err
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	idx := indexOfItem(cart.Items, productID)
	if idx < 0 {
		return cart, nil
	}
	cart.Items = slices.Delete(cart.Items, idx, idx+1)
	return s.save(ctx, cart, s.clock())
}

func (s *cartService) Clear(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	cart.Items = nil
	return s.save(ctx, cart, s.clock())
}

// ValidateForCheckout re-reads every product on the cart and reports problems without writing.
// Price drift beyond the tolerance is reported but does not make the cart invalid.
func (s *cartService) ValidateForCheckout(ctx context.Context, userID string) (CheckoutValidation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CheckoutValidation{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil && !isNotFound(err) {
		return CheckoutValidation{}, mapRepositoryError(err)
	}
	return s.validate(ctx, cart)
}

// SyncWithLatestData refreshes snapshots, drops lines whose products are gone or inactive, clamps
// quantities to live stock and drops lines clamped to zero. Running it twice changes nothing.
func (s *cartService) SyncWithLatestData(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if len(cart.Items) == 0 {
		return cart, nil
	}

	products, err := s.products.FindByIDs(ctx, itemProductIDs(cart.Items))
	if err != nil {
		return Cart{}, mapRepositoryError(err)
	}

	now := s.clock()
	changed := false
	kept := make([]CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok || product.Status != domain.ProductStatusActive || product.DeletedAt != nil || product.Stock <= 0 || s.checkCurrency(cart, product) != nil {
			changed = true
			s.logger(ctx, "cart.sync.line_dropped", map[string]any{"userId": userID, "productId": item.ProductID})
			continue
		}
		if item.Quantity > product.Stock {
			item.Quantity = product.Stock
			item.UpdatedAt = &now
			changed = true
		}
		if snapshotStale(item.Product, product) {
			item.Product = product.Snapshot(now)
			changed = true
		}
		kept = append(kept, item)
	}
	if !changed {
		return cart, nil
	}
	cart.Items = kept
	return s.save(ctx, cart, now)
}

func (s *cartService) validate(ctx context.Context, cart Cart) (CheckoutValidation, error) {
	result := CheckoutValidation{IsValid: true}
	if len(cart.Items) == 0 {
		result.IsValid = false
		result.Errors = []string{"cart is empty"}
		return result, nil
	}

	products, err := s.products.FindByIDs(ctx, itemProductIDs(cart.Items))
	if err != nil {
		return CheckoutValidation{}, mapRepositoryError(err)
	}

	unavailable := func(productID, reason string) {
		result.IsValid = false
		result.Errors = append(result.Errors, reason)
		result.UnavailableProductIDs = append(result.UnavailableProductIDs, productID)
	}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		name := item.Product.Name
		switch {
		case !ok || product.DeletedAt != nil:
			unavailable(item.ProductID, fmt.Sprintf("%s is no longer available", name))
			continue
		case product.Status != domain.ProductStatusActive:
			unavailable(item.ProductID, fmt.Sprintf("%s is not currently for sale", product.Name))
			continue
		case product.Stock < item.Quantity:
			unavailable(item.ProductID, fmt.Sprintf("only %d of %s left in stock", product.Stock, product.Name))
			continue
		case s.checkCurrency(cart, product) != nil:
			unavailable(item.ProductID, fmt.Sprintf("%s is priced in %s, not %s", product.Name, product.Currency, s.cartCurrency(cart)))
			continue
		}
		if drift := product.Price - item.Product.Price; drift > s.driftTolerance || -drift > s.driftTolerance {
			result.Errors = append(result.Errors, fmt.Sprintf("price of %s changed from %d to %d", product.Name, item.Product.Price, product.Price))
			result.PriceChangedProductIDs = append(result.PriceChangedProductIDs, item.ProductID)
		}
	}
	return result, nil
}

// load returns the stored cart, creating and persisting an empty one on first use.
func (s *cartService) load(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !isNotFound(err) {
		return Cart{}, mapRepositoryError(err)
	}
	now := s.clock()
	cart = Cart{UserID: userID, Currency: s.currency, CreatedAt: now}
	return s.save(ctx, cart, now)
}

func (s *cartService) save(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	s.recalculate(&cart)
	cart.UpdatedAt = now
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, mapRepositoryError(err)
	}
	return saved, nil
}

// recalculate derives every total from the lines so stored totals never drift from the items.
func (s *cartService) recalculate(cart *Cart) {
	var (
		count    int
		subtotal int64
	)
	for _, item := range cart.Items {
		count += item.Quantity
		subtotal += item.LineTotal()
	}
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	cart.TotalItems = count
	cart.TotalAmount = subtotal
	cart.Totals = domain.PricingTotals{}
	// An empty cart has nothing to deliver.
	if len(cart.Items) > 0 {
		cart.Totals = s.pricing.ComputeTotals(subtotal)
	}
}

func (s *cartService) liveProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return Product{}, fmt.Errorf("%w: product %s does not exist", ErrProductUnavailable, productID)
		}
		return Product{}, mapRepositoryError(err)
	}
	return product, nil
}

func (s *cartService) cartCurrency(cart Cart) string {
	return cmp.Or(cart.Currency, s.currency)
}

// checkCurrency rejects a product priced in another currency: cart amounts sum minor units of one
// currency only.
func (s *cartService) checkCurrency(cart Cart, product Product) error {
	if want := s.cartCurrency(cart); !strings.EqualFold(product.Currency, want) {
		return fmt.Errorf("%w: %s is priced in %s, cart is in %s", ErrProductUnavailable, product.ID, product.Currency, want)
	}
	return nil
}

func checkPurchasable(product Product, quantity int) error {
	if product.Status != domain.ProductStatusActive || product.DeletedAt != nil {
		return fmt.Errorf("%w: %s is not for sale", ErrProductUnavailable, product.ID)
	}
	if quantity > product.Stock {
		return fmt.Errorf("%w: %s has %d in stock, %d requested", ErrProductUnavailable, product.ID, product.Stock, quantity)
	}
	return nil
}

func snapshotStale(snap ProductSnapshot, product Product) bool {
	return snap.Price != product.Price ||
		snap.Name != product.Name ||
		snap.ImageURL != product.ImageURL ||
		snap.Currency != product.Currency ||
		snap.Status != product.Status ||
		snap.Stock != product.Stock ||
		snap.SellerID != product.SellerID
}

func cartKeys(userID, productID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" {
		return "", "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if productID == "" {
		return "", "", fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return userID, productID, nil
}

func indexOfItem(items []CartItem, productID string) int {
	return slices.IndexFunc(items, func(item CartItem) bool { return item.ProductID == productID })
}

func itemProductIDs(items []CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
