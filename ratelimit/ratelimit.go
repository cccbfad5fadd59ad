// Package ratelimit names the rate-limit buckets the HTTP surface uses and
// defines the limiter contract both backends implement. Payment initiation
// is the bucket that matters: every initiate reaches the mobile-money
// provider, so an unthrottled client can make the hotspot spam STK pushes.
package ratelimit

import "time"

// Bucket names, one per throttled operation.
const (
	BucketPurchaseInitiate = "purchase_initiate"
	BucketGatewayCallback  = "gateway_callback"
	BucketSessionRead      = "session_read"
	BucketAdminDisconnect  = "admin_disconnect"
	BucketDefault          = "default"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits is a conservative starting point; embedders override per
// deployment.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		BucketPurchaseInitiate: {Limit: 5, Window: time.Minute},
		BucketGatewayCallback:  {Limit: 60, Window: time.Minute},
		BucketSessionRead:      {Limit: 120, Window: time.Minute},
		BucketAdminDisconnect:  {Limit: 30, Window: time.Minute},
		BucketDefault:          {Limit: 100, Window: time.Minute},
	}
}

// Limiter is a sliding-window request limiter keyed by (bucket, caller).
type Limiter interface {
	AllowNamed(bucket, key string) (bool, error)
}
