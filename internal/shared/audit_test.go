package shared

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingRecorder struct {
	calls int
}

func (f *failingRecorder) Record(ctx context.Context, log AuditLog) error {
	f.calls++
	return errors.New("db down")
}

type cancelCheckingRecorder struct {
	ctxErr error
}

func (c *cancelCheckingRecorder) Record(ctx context.Context, log AuditLog) error {
	c.ctxErr = ctx.Err()
	return nil
}

func TestRecordBestEffortLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &failingRecorder{}

	RecordBestEffort(context.Background(), logger, rec, AuditLog{User: "amina", Action: AuditActionSale, Details: "Sale #1"})

	require.Equal(t, 1, rec.calls)
	require.Contains(t, buf.String(), "audit write failed")
	require.Contains(t, buf.String(), "db down")
}

func TestRecordBestEffortIgnoresRequestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &cancelCheckingRecorder{}

	RecordBestEffort(ctx, nil, rec, AuditLog{Action: AuditActionStock, Details: "received"})

	require.NoError(t, rec.ctxErr)
}

func TestRecordBestEffortNilRecorder(t *testing.T) {
	require.NotPanics(t, func() {
		RecordBestEffort(context.Background(), nil, nil, AuditLog{})
	})
}
