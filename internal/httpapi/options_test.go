package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequestContext_CanceledByBase(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	o := &muxOptions{base: context.Background()}
	WithBaseContext(base)(o)
	ctx, done := o.requestContext(httptest.NewRequest("GET", "/", nil))
	defer done()
	cancelBase()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("request context survived base cancellation")
	}
}

func TestRequestContext_CanceledByRequest(t *testing.T) {
	o := &muxOptions{base: context.Background()}
	reqCtx, cancelReq := context.WithCancel(context.Background())
	r := httptest.NewRequest("GET", "/", nil).WithContext(reqCtx)
	ctx, done := o.requestContext(r)
	defer done()
	cancelReq()
	if ctx.Err() == nil {
		t.Fatal("request context not canceled with the request")
	}
}

func TestWithBaseContextIgnoresNil(t *testing.T) {
	o := &muxOptions{base: context.Background()}
	// nolint:staticcheck // SA1012: nil keeps the default
	WithBaseContext(nil)(o)
	if o.base == nil {
		t.Fatal("nil base context replaced the default")
	}
}
