package ratelimit_test

import (
	"context"
	"fmt"
	"time"

	"scoreload/internal/ratelimit"
)

func ExampleNewLimiter() {
	// Allow 100 requests per second across all workers
	limiter := ratelimit.NewLimiter(100, 0)

	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(ctx); err != nil {
			fmt.Println("Context cancelled")
			return
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("5 requests completed in under 100ms: %v\n", elapsed < 100*time.Millisecond)
	// Output: 5 requests completed in under 100ms: true
}

func ExampleNewLimiter_disabled() {
	limiter := ratelimit.NewLimiter(0, 0)

	fmt.Println(limiter == nil, limiter.Wait(context.Background()))
	// Output: true <nil>
}
