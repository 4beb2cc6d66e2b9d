package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketline/api/internal/domain"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
	}, nil
}

// Insert creates the product document, failing with a conflict if the id is taken.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Create(ctx, product.ID, newProductDocument(product))
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs batch-loads products. Missing ids are omitted from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	refs, err := r.refs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.get_all", err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		product, err := decodeProduct(snap)
		if err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		out[product.ID] = product
	}
	return out, nil
}

// ListBySeller returns the seller's non-deleted products, newest first.
func (r *ProductRepository) ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}
	page, err := r.products.Page(ctx, pager, productsByCreated, func(q firestore.Query) firestore.Query {
		return q.Where("sellerId", "==", strings.TrimSpace(sellerID)).Where("deleted", "==", false)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	return mapPage(page, func(doc pfirestore.Document[productDocument]) domain.Product {
		return doc.Data.toDomain(doc.ID)
	}), nil
}

// AdjustStock applies delta to the product stock inside one transaction. A decrement past zero
// fails with an insufficient stock error and writes nothing.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int, at time.Time) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.Doc(ctx, id)
		if err != nil {
			return err
		}
		doc, found, err := r.products.TxGet(tx, ref)
		if err != nil {
			return err
		}
		if !found {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, id, "", nil)
		}
		product := doc.Data.toDomain(doc.ID)
		next, err := domain.ApplyStockDelta(product.Stock, delta)
		if err != nil {
			stockErr := repositories.InsufficientStock(id, -delta, product.Stock)
			stockErr.Err = err
			return stockErr
		}
		product.Stock = next
		product.UpdatedAt = at.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: next},
			{Path: "updatedAt", Value: product.UpdatedAt},
		}); err != nil {
			return err
		}
		updated = product
		return nil
	}, pfirestore.WithTxName("products.adjust_stock"))
	if err != nil {
		return domain.Product{}, wrapStockError("products.adjust_stock", err)
	}
	return updated, nil
}

// UpdateStatus changes the product status and, when requested, marks it deleted.
func (r *ProductRepository) UpdateStatus(ctx context.Context, update repositories.ProductStatusUpdate) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.Doc(ctx, update.ProductID)
		if err != nil {
			return err
		}
		doc, found, err := r.products.TxGet(tx, ref)
		if err != nil {
			return err
		}
		if !found {
			return repositories.NewNotFoundError("products.update_status", "product %s not found", update.ProductID)
		}
		product := doc.Data.toDomain(doc.ID)
		product.Status = update.Status
		product.UpdatedAt = update.UpdatedAt.UTC()
		updates := []firestore.Update{
			{Path: "status", Value: string(update.Status)},
			{Path: "updatedAt", Value: product.UpdatedAt},
		}
		if update.DeletedAt != nil {
			product.DeletedAt = utcPtr(update.DeletedAt)
			updates = append(updates,
				firestore.Update{Path: "deleted", Value: true},
				firestore.Update{Path: "deletedAt", Value: *product.DeletedAt},
			)
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		updated = product
		return nil
	}, pfirestore.WithTxName("products.update_status"))
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.update_status", err)
	}
	return updated, nil
}

func (r *ProductRepository) refs(ctx context.Context, productIDs []string) ([]*firestore.DocumentRef, error) {
	return r.products.Docs(ctx, productIDs)
}

// loadProductsTx reads every referenced product inside the transaction, skipping missing documents.
func loadProductsTx(tx *firestore.Transaction, refs []*firestore.DocumentRef) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(refs))
	if len(refs) == 0 {
		return products, nil
	}
	snaps, err := tx.GetAll(refs)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		product, err := decodeProduct(snap)
		if err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products[product.ID] = product
	}
	return products, nil
}

// writeStockTx writes the new stock levels computed by repositories.ReserveStock/RestoreStock.
func writeStockTx(tx *firestore.Transaction, refs []*firestore.DocumentRef, stock map[string]int, at time.Time) error {
	for _, ref := range refs {
		next, ok := stock[ref.ID]
		if !ok {
			continue
		}
		if err := tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: next},
			{Path: "updatedAt", Value: at.UTC()},
		}); err != nil {
			return err
		}
	}
	return nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
