/*
store.go - Interface to the remote "reports" store

PURPOSE:
  Defines the four generic operations the remote store exposes over opaque
  JSON documents. The Repository is the only caller; forms never talk to a
  RemoteStore directly.

CONTRACT:
  List:   every document of one type, in store order
  Create: append a document, returns it with the store-assigned id
  Update: overwrite a document by id (optional optimization; stores that do
          not support it return a ServerError)
  Delete: remove by id; ErrNotFound for unknown ids

CONSISTENCY:
  The store is eventually consistent and non-transactional. There is no
  replace-by-key primitive, which is why upsert-replace is delete + create.
  The only uniqueness it enforces is on the optional idempotency key of a
  create, reported as a ConflictError.

IMPLEMENTATIONS:
  - api/client.go:          HTTP client for a remote deployment
  - store/sqlite/sqlite.go: The store service's own persistence
  - generic/store/memory.go: In-memory, for tests and dev
*/
package generic

import (
	"context"
	"encoding/json"
	"fmt"
)

// RemoteStore is the append/overwrite log the engine runs on.
type RemoteStore interface {
	List(ctx context.Context, typ string) ([]Report, error)
	Create(ctx context.Context, r Report) (Report, error)
	Update(ctx context.Context, id string, r Report) (Report, error)
	Delete(ctx context.Context, id string) error
}

// =============================================================================
// RESPONSE SHAPES
// =============================================================================

// envelopeFields are the wrapper keys list responses have been seen to use.
var envelopeFields = []string{"data", "items", "rows", "reports"}

// UnwrapReports normalizes a list response into a flat slice. The body may
// be a bare array or an object carrying the array under data, items, rows
// or reports. A null body or envelope is an empty list.
func UnwrapReports(body []byte) ([]Report, error) {
	var raw any
	if err := decodeNumbers(body, &raw); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	var list []any
	switch v := raw.(type) {
	case nil:
		return []Report{}, nil
	case []any:
		list = v
	case map[string]any:
		found := false
		for _, f := range envelopeFields {
			inner, ok := v[f]
			if !ok {
				continue
			}
			if inner == nil {
				return []Report{}, nil
			}
			arr, isArr := inner.([]any)
			if !isArr {
				return nil, fmt.Errorf("decode list response: %q is %T, not a list", f, inner)
			}
			list, found = arr, true
			break
		}
		if !found {
			return nil, fmt.Errorf("decode list response: object without data/items/rows/reports")
		}
	default:
		return nil, fmt.Errorf("decode list response: unexpected %T", raw)
	}

	out := make([]Report, 0, len(list))
	for i, item := range list {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("decode list item %d: %w", i, err)
		}
		r, err := DecodeReport(b)
		if err != nil {
			return nil, fmt.Errorf("decode list item %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
