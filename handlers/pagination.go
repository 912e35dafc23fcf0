package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 10
	MaxLimit     = 10
)

type PaginationParams struct {
	Limit  int
	Before *time.Time
}

// IsDefault reports whether the request asked for the plain latest page.
func (p PaginationParams) IsDefault() bool {
	return p.Limit == DefaultLimit && p.Before == nil
}

// ParsePagination reads limit and before. Unparseable or out of range values
// fall back to the defaults instead of failing the request.
func ParsePagination(c *gin.Context) PaginationParams {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		if t, err := time.Parse(time.RFC3339Nano, beforeStr); err == nil {
			t = t.UTC()
			p.Before = &t
		}
	}

	return p
}
