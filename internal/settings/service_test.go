package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/platform/cache"
	"github.com/dukapos/dukapos/internal/shared"
)

type memoryRepo struct {
	rec   Record
	loads int
}

func (m *memoryRepo) Load(ctx context.Context) (Record, error) {
	m.loads++
	return m.rec, nil
}

func (m *memoryRepo) SaveInfo(ctx context.Context, in UpdateInput) (Record, error) {
	m.rec.Info = BusinessInfo{
		Name: in.Name, Address: in.Address, Phone: in.Phone, Email: in.Email,
		Currency: in.Currency, TaxRate: in.TaxRate,
		ReportFromEmail: in.ReportFromEmail, ReportToEmail: in.ReportToEmail,
		UpdatedAt: time.Now(),
	}
	return m.rec, nil
}

func (m *memoryRepo) SetPasswordHash(ctx context.Context, hash string) error {
	m.rec.PasswordHash = hash
	return nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &memoryRepo{rec: Record{Info: BusinessInfo{Name: "Duka Ya Mama", TaxRate: 0.16}}}
	audit := &recordingAudit{}
	svc := NewService(repo, cache.NewVersioned(client, "settings", time.Minute), audit, nil, Defaults{Currency: "KES", TaxRate: 0.16})
	return svc, repo, audit
}

func TestGetIsCachedUntilUpdate(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()

	info, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "KES", info.Currency)
	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.loads)

	_, err = svc.Update(ctx, "admin", UpdateInput{Name: "Duka Bora", Currency: "ugx", TaxRate: 0.18, ReportToEmail: "owner@example.com"})
	require.NoError(t, err)

	info, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Duka Bora", info.Name)
	assert.Equal(t, "UGX", info.Currency)
	assert.Equal(t, 2, repo.loads)

	rate, err := svc.TaxRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.18, rate)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, shared.AuditActionSettings, audit.entries[0].Action)
}

func TestUpdateValidation(t *testing.T) {
	svc, _, audit := newTestService(t)
	cases := map[string]UpdateInput{
		"no name":       {Currency: "KES"},
		"bad currency":  {Name: "Duka", Currency: "KSH1"},
		"tax too large": {Name: "Duka", Currency: "KES", TaxRate: 1.5},
		"bad recipient": {Name: "Duka", Currency: "KES", ReportToEmail: "owner"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), "admin", in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	assert.Empty(t, audit.entries)
}

func TestBusinessPasswordLifecycle(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.VerifyBusinessPassword(ctx, "anything"), ErrPasswordNotSet)

	require.NoError(t, svc.ChangeBusinessPassword(ctx, "admin", PasswordChange{New: "back-office-1"}))
	require.NoError(t, svc.VerifyBusinessPassword(ctx, "back-office-1"))

	err := svc.VerifyBusinessPassword(ctx, "back-office-2")
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, "forbidden: invalid business password", err.Error())

	err = svc.ChangeBusinessPassword(ctx, "admin", PasswordChange{New: "back-office-2"})
	var vErr *shared.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Fields, "currentPassword")

	err = svc.ChangeBusinessPassword(ctx, "admin", PasswordChange{Current: "wrong", New: "back-office-2"})
	require.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, svc.ChangeBusinessPassword(ctx, "admin", PasswordChange{Current: "back-office-1", New: "back-office-2"}))
	require.NoError(t, svc.VerifyBusinessPassword(ctx, "back-office-2"))

	info, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, info.HasBusinessPassword)

	require.Len(t, audit.entries, 2)
	assert.Equal(t, "Set business password", audit.entries[0].Details)
	assert.Equal(t, "Changed business password", audit.entries[1].Details)
}

func TestPasswordTooShort(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.ChangeBusinessPassword(context.Background(), "admin", PasswordChange{New: "short"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
