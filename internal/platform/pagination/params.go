// Package pagination reads list paging from query strings and encodes keyset page tokens.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	domain "github.com/marketline/api/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest reads pageSize and pageToken. A missing size becomes DefaultPageSize and a size
// over MaxPageSize is clamped; a malformed token is rejected here so stores never see one.
func FromRequest(r *http.Request) (domain.Pagination, error) {
	if r == nil || r.URL == nil {
		return domain.Pagination{PageSize: DefaultPageSize}, nil
	}
	query := r.URL.Query()

	size := DefaultPageSize
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Pagination{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		}
		if n <= 0 {
			return domain.Pagination{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		size = ClampPageSize(n)
	}

	token := strings.TrimSpace(query.Get("pageToken"))
	if _, _, _, err := DecodeKeyset(token); err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{PageSize: size, PageToken: token}, nil
}

// ClampPageSize maps a non-positive size to the default and caps the rest at MaxPageSize.
func ClampPageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}
