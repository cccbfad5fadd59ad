package memorylimiter

import (
	"testing"
	"time"

	"github.com/open-rails/netpass/ratelimit"
)

func TestAllowNamedEnforcesLimit(t *testing.T) {
	l := New(map[string]ratelimit.Limit{
		ratelimit.BucketPurchaseInitiate: {Limit: 3, Window: time.Minute},
	})

	for i := 0; i < 3; i++ {
		ok, err := l.AllowNamed(ratelimit.BucketPurchaseInitiate, "user-1")
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := l.AllowNamed(ratelimit.BucketPurchaseInitiate, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("fourth call within window allowed")
	}
}

func TestAllowNamedKeysAreIndependent(t *testing.T) {
	l := New(map[string]ratelimit.Limit{
		ratelimit.BucketPurchaseInitiate: {Limit: 1, Window: time.Minute},
	})

	if ok, _ := l.AllowNamed(ratelimit.BucketPurchaseInitiate, "user-1"); !ok {
		t.Fatal("first user denied")
	}
	if ok, _ := l.AllowNamed(ratelimit.BucketPurchaseInitiate, "user-2"); !ok {
		t.Error("second user denied; buckets leaked across keys")
	}
	if ok, _ := l.AllowNamed(ratelimit.BucketSessionRead, "user-1"); !ok {
		t.Error("different bucket for same key denied")
	}
}

func TestAllowNamedWindowSlides(t *testing.T) {
	l := New(map[string]ratelimit.Limit{
		ratelimit.BucketDefault: {Limit: 1, Window: 20 * time.Millisecond},
	})

	if ok, _ := l.AllowNamed("anything", "k"); !ok {
		t.Fatal("first call denied")
	}
	if ok, _ := l.AllowNamed("anything", "k"); ok {
		t.Fatal("second immediate call allowed")
	}
	time.Sleep(25 * time.Millisecond)
	if ok, _ := l.AllowNamed("anything", "k"); !ok {
		t.Error("call after window elapsed denied")
	}
}

func TestAllowNamedValidation(t *testing.T) {
	l := New(nil)
	if _, err := l.AllowNamed("", "k"); err == nil {
		t.Error("empty bucket accepted")
	}
	if _, err := l.AllowNamed(ratelimit.BucketDefault, ""); err == nil {
		t.Error("empty key accepted")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if ok, err := l.AllowNamed(ratelimit.BucketDefault, "k"); err != nil || !ok {
		t.Errorf("nil limiter: ok=%v err=%v", ok, err)
	}
}
