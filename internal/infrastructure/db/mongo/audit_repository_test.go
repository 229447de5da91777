package mongo

import (
	"context"
	"testing"
	"time"
)

func TestAuditRepository_CallsAreBounded(t *testing.T) {
	r := &AuditRepository{timeout: 50 * time.Millisecond}
	start := time.Now()
	ctx, cancel := r.bound(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("audit calls must carry a deadline")
	}
	if d := deadline.Sub(start); d <= 0 || d > 50*time.Millisecond {
		t.Fatalf("deadline %v outside the configured timeout", d)
	}
}
