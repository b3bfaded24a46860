package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trolley-pm/internal/model"
	"trolley-pm/internal/parse"
	"trolley-pm/internal/store"
)

// amount accepts a JSON number or an operator-typed string such as "1,200".
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(s)
		return nil
	}
	*a = amount(b)
	return nil
}

func (a amount) value() (*decimal.Decimal, error) {
	return parse.Amount(string(a))
}

// dateOr parses raw, or returns fallback when raw is empty.
func dateOr(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return parse.Date(raw)
}

// asOf reads the as_of query parameter, defaulting to the engine's today.
func (h *Handler) asOf(c *gin.Context) (time.Time, bool) {
	t, err := dateOr(c.Query("as_of"), h.engine.Today())
	if err != nil {
		badRequest(c, "as_of: %v", err)
		return time.Time{}, false
	}
	return t, true
}

// dateRange reads the optional start and end query parameters.
func dateRange(c *gin.Context) (store.DateRange, bool) {
	var r store.DateRange
	var err error
	if r.Start, err = dateOr(c.Query("start"), time.Time{}); err != nil {
		badRequest(c, "start: %v", err)
		return r, false
	}
	if r.End, err = dateOr(c.Query("end"), time.Time{}); err != nil {
		badRequest(c, "end: %v", err)
		return r, false
	}
	return r, true
}

// category reads the optional category query parameter.
func category(c *gin.Context) (*model.Category, bool) {
	raw := c.Query("category")
	if raw == "" {
		return nil, true
	}
	cat, err := model.ParseCategory(raw)
	if err != nil {
		badRequest(c, "%v", err)
		return nil, false
	}
	return &cat, true
}

// intQuery reads a non-negative integer query parameter.
func intQuery(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "%s must be a non-negative integer, got %q", key, raw)
		return 0, false
	}
	return n, true
}

// bindJSON decodes the request body, reporting failures as validation errors.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return false
	}
	return true
}
