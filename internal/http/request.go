package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bilancio/internal/services"

	"github.com/gorilla/mux"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return badRequest("invalid JSON body: trailing data")
	}
	return nil
}

// pathID returns the positive integer path variable name.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

// queryInt parses an optional integer query parameter; def is returned
// when it is absent.
func queryInt(q url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

// queryID parses an optional positive id query parameter; 0 means absent.
func queryID(q url.Values, key string) (int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Sprintf("%s must be a positive integer", key))
	}
	return id, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("%s must be true or false", key))
	}
	return &b, nil
}

// parseListQuery reads the transaction list filters.
func parseListQuery(q url.Values) (services.ListQuery, error) {
	var (
		lq  services.ListQuery
		err error
	)
	if lq.Year, err = queryInt(q, "year", 0); err != nil {
		return lq, err
	}
	if lq.Month, err = queryInt(q, "month", 0); err != nil {
		return lq, err
	}
	if lq.CategoryID, err = queryID(q, "category_id"); err != nil {
		return lq, err
	}
	if lq.BankID, err = queryID(q, "bank_id"); err != nil {
		return lq, err
	}
	if lq.Recurring, err = queryBool(q, "recurring"); err != nil {
		return lq, err
	}
	if lq.Limit, err = queryInt(q, "limit", 0); err != nil {
		return lq, err
	}
	if lq.Limit < 0 {
		return lq, badRequest("limit must not be negative")
	}
	return lq, nil
}

// sanitizeInput trims s and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// storageContext bounds the storage work of one request.
func storageContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
