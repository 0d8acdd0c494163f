// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"

	"github.com/tidwall/gjson"
)

// Paginate calls method repeatedly, threading response_metadata.next_cursor
// through the cursor parameter until it comes back absent or empty. fn is
// invoked once per element of the named array field, in page order. An error
// from the caller or from fn aborts the walk.
func Paginate(ctx context.Context, c Caller, method string, params map[string]any, field string, fn func(item gjson.Result) error) error {
	p := make(map[string]any, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	for {
		res, err := c.Call(ctx, method, p)
		if err != nil {
			return err
		}
		var fnErr error
		res.Get(field).ForEach(func(_, item gjson.Result) bool {
			fnErr = fn(item)
			return fnErr == nil
		})
		if fnErr != nil {
			return fnErr
		}
		cursor := res.Get("response_metadata.next_cursor").String()
		if cursor == "" {
			return nil
		}
		p["cursor"] = cursor
	}
}
