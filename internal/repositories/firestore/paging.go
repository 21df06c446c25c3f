package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/pagination"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// pagedQuery orders by createdAt desc with the document id as tie-breaker and positions the
// query after the cursor encoded in the page token. It fetches one extra document so the caller
// can tell whether another page exists.
func pagedQuery(query firestore.Query, pager domain.Pagination) (firestore.Query, int, error) {
	size := pager.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if pager.PageToken != "" {
		cursor, err := pagination.DecodeToken(pager.PageToken)
		if err != nil {
			return firestore.Query{}, 0, err
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	return query.Limit(size + 1), size, nil
}

func buildPage[D any, T any](docs []pfirestore.Document[D], size int, createdAt func(D) time.Time, convert func(pfirestore.Document[D]) T) (domain.CursorPage[T], error) {
	page := domain.CursorPage[T]{Items: make([]T, 0, min(len(docs), size))}
	for i, doc := range docs {
		if i == size {
			break
		}
		page.Items = append(page.Items, convert(doc))
	}
	if len(docs) > size {
		last := docs[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt(last.Data), ID: last.ID})
		if err != nil {
			return domain.CursorPage[T]{}, fmt.Errorf("encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}
