package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketline/api/internal/domain"
	pfirestore "github.com/marketline/api/internal/platform/firestore"
)

var (
	productsByCreated = pfirestore.KeysetOrder[productDocument]{
		Field: "createdAt",
		Dir:   firestore.Desc,
		Value: func(d productDocument) time.Time { return d.CreatedAt },
	}
	ordersByCreated = pfirestore.KeysetOrder[orderDocument]{
		Field: "createdAt",
		Dir:   firestore.Desc,
		Value: func(d orderDocument) time.Time { return d.CreatedAt },
	}
	trackingByTime = pfirestore.KeysetOrder[trackingDocument]{
		Field: "timestamp",
		Dir:   firestore.Asc,
		Value: func(d trackingDocument) time.Time { return d.Timestamp },
	}
)

func mapPage[D any, T any](page domain.CursorPage[pfirestore.Document[D]], convert func(pfirestore.Document[D]) T) domain.CursorPage[T] {
	items := make([]T, 0, len(page.Items))
	for _, doc := range page.Items {
		items = append(items, convert(doc))
	}
	return domain.CursorPage[T]{Items: items, NextPageToken: page.NextPageToken}
}
