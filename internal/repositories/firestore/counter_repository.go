package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/marketline/api/internal/platform/firestore"
	"github.com/marketline/api/internal/repositories"
)

const countersCollection = "counters"

// counterDocument lives at counters/{id}. Value is the last number handed out.
type counterDocument struct {
	Value     int64     `firestore:"value"`
	Issued    int64     `firestore:"issued"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out sequence numbers, one read-modify-write transaction per call.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDocument]
	clock    func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection),
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next implements repositories.CounterRepository. Contended calls are retried by the transaction
// runner, so every caller sees a distinct value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id, err := repositories.CounterKey(counterID, step)
	if err != nil {
		return 0, err
	}
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}

	var issued int64
	bump := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.Doc(ctx, id)
		if err != nil {
			return err
		}
		current, _, err := r.counters.TxGet(tx, ref)
		if err != nil {
			return err
		}
		next := counterDocument{
			Value:     current.Data.Value + step,
			Issued:    current.Data.Issued + 1,
			UpdatedAt: r.clock(),
		}
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		issued = next.Value
		return nil
	}
	if err := r.provider.RunTransaction(ctx, bump, pfirestore.WithTxName("counters.next")); err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return issued, nil
}
