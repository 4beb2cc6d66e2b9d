//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marketline/api/internal/domain"
	pconfig "github.com/marketline/api/internal/platform/config"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

// listing is a throwaway entity shaped like a catalog entry.
type listing struct {
	Title     string    `firestore:"title"`
	Stock     int       `firestore:"stock"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var errOutOfStock = errors.New("out of stock")

// emulatorProvider needs a running emulator, e.g.
// `gcloud emulators firestore start --host-port=127.0.0.1:8681` with FIRESTORE_EMULATOR_HOST set.
func emulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("platform-%d", time.Now().UnixNano()),
		EmulatorHost: host,
		TxAttempts:   5,
		TxTimeout:    10 * time.Second,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func storeErrorKind(err error) string {
	var storeErr *repositories.StoreError
	switch {
	case !errors.As(err, &storeErr):
		return ""
	case storeErr.IsNotFound():
		return "not_found"
	case storeErr.IsConflict():
		return "conflict"
	default:
		return "other"
	}
}

func TestCollectionAgainstEmulator(t *testing.T) {
	provider := emulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, provider.Ping(ctx))

	listings := pfirestore.NewCollection[listing](provider, "listings")
	epoch := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"kettle", "teapot", "mug"} {
		require.NoError(t, listings.Set(ctx, id, listing{Title: id, Stock: 2, CreatedAt: epoch.Add(time.Duration(i) * time.Hour)}))
	}

	t.Run("get and create", func(t *testing.T) {
		doc, err := listings.Get(ctx, "kettle")
		require.NoError(t, err)
		assert.Equal(t, "kettle", doc.ID)
		assert.Equal(t, 2, doc.Data.Stock)
		assert.False(t, doc.UpdateTime.IsZero())

		assert.Equal(t, "conflict", storeErrorKind(listings.Create(ctx, "kettle", listing{Title: "dup"})))
		_, err = listings.Get(ctx, "absent")
		assert.Equal(t, "not_found", storeErrorKind(err))
		_, err = listings.Get(ctx, "a/b")
		assert.ErrorIs(t, err, repositories.ErrInvalidArgument)
	})

	t.Run("keyset pages", func(t *testing.T) {
		newestFirst := pfirestore.KeysetOrder[listing]{
			Field: "createdAt",
			Dir:   firestore.Desc,
			Value: func(l listing) time.Time { return l.CreatedAt },
		}
		first, err := listings.Page(ctx, domain.Pagination{PageSize: 2}, newestFirst, nil)
		require.NoError(t, err)
		require.Len(t, first.Items, 2)
		assert.Equal(t, "mug", first.Items[0].ID)
		require.NotEmpty(t, first.NextPageToken)

		second, err := listings.Page(ctx, domain.Pagination{PageSize: 2, PageToken: first.NextPageToken}, newestFirst, nil)
		require.NoError(t, err)
		require.Len(t, second.Items, 1)
		assert.Equal(t, "kettle", second.Items[0].ID)
		assert.Empty(t, second.NextPageToken)

		inStock, err := listings.Page(ctx, domain.Pagination{}, newestFirst, func(q firestore.Query) firestore.Query {
			return q.Where("title", "==", "teapot")
		})
		require.NoError(t, err)
		require.Len(t, inStock.Items, 1)
	})

	t.Run("subcollection", func(t *testing.T) {
		reviews := pfirestore.Subcollection[listing](listings, "kettle", "reviews")
		require.NoError(t, reviews.Create(ctx, "r1", listing{Title: "boils fast", CreatedAt: epoch}))
		review, err := reviews.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "boils fast", review.Data.Title)
	})

	t.Run("transaction", func(t *testing.T) {
		take := func(ctx context.Context, tx *firestore.Transaction) error {
			ref, err := listings.Doc(ctx, "teapot")
			if err != nil {
				return err
			}
			current, found, err := listings.TxGet(tx, ref)
			if err != nil {
				return err
			}
			if !found || current.Data.Stock == 0 {
				return errOutOfStock
			}
			current.Data.Stock--
			return tx.Set(ref, current.Data)
		}
		for range 2 {
			require.NoError(t, provider.RunTransaction(ctx, take, pfirestore.WithTxName("listings.take")))
		}
		assert.ErrorIs(t, provider.RunTransaction(ctx, take), errOutOfStock)

		doc, err := listings.Get(ctx, "teapot")
		require.NoError(t, err)
		assert.Zero(t, doc.Data.Stock)

		cancelled, stop := context.WithCancel(context.Background())
		stop()
		err = provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
