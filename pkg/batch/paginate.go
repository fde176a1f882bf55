package batch

import (
	"context"
	"iter"
	"net/http"

	"github.com/z-wentao/speechflow/pkg/models"
)

// Paginate walks a paginated collection starting at firstPath. It yields the
// values of each page in order and follows NextLink until a page has none.
// A failed page fetch yields a *PaginationError and ends the sequence.
func Paginate[T any](ctx context.Context, b Backend, firstPath string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		link := firstPath
		for page := 1; link != ""; page++ {
			var p models.Page[T]
			if _, err := b.Call(ctx, http.MethodGet, link, nil, &p); err != nil {
				var zero T
				yield(zero, &PaginationError{Link: link, Page: page, Err: err})
				return
			}

			for _, v := range p.Values {
				if !yield(v, nil) {
					return
				}
			}
			link = p.NextLink
		}
	}
}

// Collect drains seq. On error it returns the items received so far together
// with the error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var items []T
	for v, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, v)
	}
	return items, nil
}
