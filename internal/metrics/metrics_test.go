package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MahirK1/p-sub001/pkg/push"
)

func TestObservePush(t *testing.T) {
	before := testutil.ToFloat64(PushRemoved)
	ObservePush(push.Result{Removed: true}, &push.StatusError{Code: 410})
	if got := testutil.ToFloat64(PushRemoved); got != before+1 {
		t.Fatalf("removed counter %v, want %v", got, before+1)
	}

	okBefore := testutil.ToFloat64(PushTotal.WithLabelValues("ok"))
	ObservePush(push.Result{OK: true}, nil)
	if got := testutil.ToFloat64(PushTotal.WithLabelValues("ok")); got != okBefore+1 {
		t.Fatalf("ok counter %v", got)
	}

	nsBefore := testutil.ToFloat64(PushTotal.WithLabelValues("no_subscription"))
	ObservePush(push.Result{}, push.ErrNoSubscription)
	if got := testutil.ToFloat64(PushTotal.WithLabelValues("no_subscription")); got != nsBefore+1 {
		t.Fatalf("no_subscription counter %v", got)
	}

	failBefore := testutil.ToFloat64(PushTotal.WithLabelValues("failed"))
	ObservePush(push.Result{}, errors.New("boom"))
	if got := testutil.ToFloat64(PushTotal.WithLabelValues("failed")); got != failBefore+1 {
		t.Fatalf("failed counter %v", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	Register()
	Register()
}
