package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/marketline/api/internal/domain"
	"github.com/marketline/api/internal/platform/pagination"
	"github.com/marketline/api/internal/repositories"
)

// Document pairs a decoded entity with its id and last write time.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query before pagination is applied.
type QueryBuilder func(query firestore.Query) firestore.Query

// KeysetOrder describes how a collection is paged: by Field in Dir, with ties broken by document
// id. Value extracts the Field timestamp from a decoded entity to build the next page token.
type KeysetOrder[T any] struct {
	Field string
	Dir   firestore.Direction
	Value func(T) time.Time
}

// Collection gives typed access to one Firestore collection path. Entities are stored with
// Firestore's struct encoding, so T carries `firestore` tags.
type Collection[T any] struct {
	provider *Provider
	path     string
}

// NewCollection binds a top-level collection.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, path: strings.Trim(strings.TrimSpace(name), "/")}
}

// Subcollection binds the named collection beneath document parentID of parent, such as
// orders/{id}/tracking.
func Subcollection[T any, P any](parent *Collection[P], parentID, name string) *Collection[T] {
	c := &Collection[T]{path: strings.Trim(strings.TrimSpace(name), "/")}
	if parent != nil {
		c.provider = parent.provider
		c.path = parent.path + "/" + strings.TrimSpace(parentID) + "/" + c.path
	}
	return c
}

// Doc returns the reference for id.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return nil, repositories.NewInvalidArgumentError(c.op("doc"), "invalid document id %q", id)
	}
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Docs returns references for ids in order, for batched reads.
func (c *Collection[T]) Docs(ctx context.Context, ids []string) ([]*firestore.DocumentRef, error) {
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := c.Doc(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Get loads and decodes id. A missing document is a not-found StoreError.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.decode(snap)
}

// TxGet reads ref inside tx. found is false, with a nil error, when the document does not exist.
func (c *Collection[T]) TxGet(tx *firestore.Transaction, ref *firestore.DocumentRef) (doc Document[T], found bool, err error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Document[T]{}, false, nil
	}
	if err != nil {
		return Document[T]{}, false, err
	}
	doc, err = c.decode(snap)
	if err != nil {
		return Document[T]{}, false, err
	}
	return doc, true, nil
}

// Set overwrites id with value.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, value); err != nil {
		return WrapError(c.op("set"), err)
	}
	return nil
}

// Create writes value under id and fails with a conflict when the document exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, value); err != nil {
		return WrapError(c.op("create"), err)
	}
	return nil
}

// Page runs filter ordered by the keyset and returns one page. One extra document is fetched to
// decide whether a next page token is needed.
func (c *Collection[T]) Page(ctx context.Context, pager domain.Pagination, order KeysetOrder[T], filter QueryBuilder) (domain.CursorPage[Document[T]], error) {
	afterAt, afterID, hasCursor, err := pagination.DecodeKeyset(pager.PageToken)
	if err != nil {
		return domain.CursorPage[Document[T]]{}, err
	}
	size := pagination.ClampPageSize(pager.PageSize)

	coll, err := c.ref(ctx)
	if err != nil {
		return domain.CursorPage[Document[T]]{}, err
	}
	query := coll.Query
	if filter != nil {
		query = filter(query)
	}
	query = query.OrderBy(order.Field, order.Dir).OrderBy(firestore.DocumentID, order.Dir)
	if hasCursor {
		query = query.StartAfter(afterAt, afterID)
	}

	iter := query.Limit(size + 1).Documents(ctx)
	defer iter.Stop()

	docs := make([]Document[T], 0, size+1)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[Document[T]]{}, WrapError(c.op("page"), err)
		}
		doc, err := c.decode(snap)
		if err != nil {
			return domain.CursorPage[Document[T]]{}, err
		}
		docs = append(docs, doc)
	}

	if len(docs) <= size {
		return domain.CursorPage[Document[T]]{Items: docs}, nil
	}
	docs = docs[:size]
	last := docs[len(docs)-1]
	token, err := pagination.EncodeKeyset(order.Value(last.Data), last.ID)
	if err != nil {
		return domain.CursorPage[Document[T]]{}, err
	}
	return domain.CursorPage[Document[T]]{Items: docs, NextPageToken: token}, nil
}

func (c *Collection[T]) decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.path, snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

func (c *Collection[T]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: collection has no provider")
	}
	if c.path == "" {
		return nil, errors.New("firestore: collection path is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.path), nil
}

// op names operations after the last path segment, e.g. "tracking.page".
func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.path != "" {
		name = c.path[strings.LastIndex(c.path, "/")+1:]
	}
	return name + "." + action
}
