package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry flushes telemetry buffers before process exit.
// Prometheus is pull-based, so this only syncs logs. Sync on a terminal stderr
// reports EINVAL/ENOTTY; those are not flush failures.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
