package checkout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"giftsplit-backend/internal/application/emails"
	"giftsplit-backend/internal/application/gifts"
	"giftsplit-backend/internal/application/provider"
	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/infrastructure/cache"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/pkg/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProvider struct {
	mu          sync.Mutex
	created     []provider.CreateSessionInput
	urls        map[string]string
	emptyURL    bool
	retrieveErr error
	onCreate    func(in provider.CreateSessionInput)
}

func (f *fakeProvider) CreateSession(_ context.Context, in provider.CreateSessionInput) (*provider.Session, error) {
	f.mu.Lock()
	f.created = append(f.created, in)
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	url := "https://checkout.example/" + id
	if f.emptyURL {
		url = ""
	}
	if f.urls == nil {
		f.urls = map[string]string{}
	}
	f.urls[id] = url
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook(in)
	}
	return &provider.Session{ID: id, URL: url}, nil
}

func (f *fakeProvider) RetrieveSession(_ context.Context, id string) (*provider.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return &provider.Session{ID: id, URL: f.urls[id]}, nil
}

func (f *fakeProvider) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []emails.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg emails.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// hookLocker runs onAcquire once the per-invitee lock is granted, which is
// where a webhook can land between the gift snapshot and the session lookup.
type hookLocker struct {
	onAcquire func(key string)
}

func (l *hookLocker) Acquire(_ context.Context, key string) (func(), error) {
	if l.onAcquire != nil {
		l.onAcquire(key)
	}
	return func() {}, nil
}

type checkoutFixture struct {
	db       *gorm.DB
	gifts    *gifts.Service
	orch     *Orchestrator
	provider *fakeProvider
	sender   *fakeSender
	giftID   string
}

func setupCheckout(t *testing.T, total int64, emailsToAdd ...string) *checkoutFixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	gs := &gifts.Service{DB: db}
	out, err := gs.CreateGift(context.Background(), gifts.CreateGiftInput{Name: "Office plant", TotalPriceCents: total})
	require.NoError(t, err)
	if len(emailsToAdd) > 0 {
		_, err = gs.AddInvitees(context.Background(), out.Gift.ID.String(), gifts.AddInviteesInput{Emails: emailsToAdd})
		require.NoError(t, err)
	}

	fp := &fakeProvider{}
	fs := &fakeSender{}
	return &checkoutFixture{
		db:    db,
		gifts: gs,
		orch: &Orchestrator{
			Gifts:    gs,
			Sessions: &Repository{DB: db},
			Provider: fp,
			Sender:   fs,
			Timeout:  time.Second,
		},
		provider: fp,
		sender:   fs,
		giftID:   out.Gift.ID.String(),
	}
}

func TestLockAndSend_CreatesOneSessionPerParticipant(t *testing.T) {
	f := setupCheckout(t, 1000, "a@example.com", "b@example.com", "c@example.com")

	results, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a@example.com", results[0].Email)
	assert.EqualValues(t, 334, results[0].AmountCents)
	assert.EqualValues(t, 333, results[1].AmountCents)
	assert.EqualValues(t, 333, results[2].AmountCents)
	for _, r := range results {
		assert.False(t, r.Reused)
		assert.NotEmpty(t, r.CheckoutURL)
	}

	require.Equal(t, 3, f.provider.createCount())
	first := f.provider.created[0]
	assert.Equal(t, "a@example.com", first.Recipient)
	assert.Equal(t, "usd", first.Currency)
	assert.Equal(t, "Office plant", first.Description)
	assert.Equal(t, f.giftID, first.Metadata["giftId"])
	assert.NotEmpty(t, first.Metadata["inviteeId"])

	assert.Equal(t, 3, f.sender.count())
	assert.Equal(t, "Chip in: Office plant", f.sender.sent[0].Subject)
	assert.Contains(t, f.sender.sent[0].HTML, "USD $3.34")

	var invitees []domain.Invitee
	require.NoError(t, f.db.Find(&invitees).Error)
	for _, inv := range invitees {
		assert.Equal(t, domain.InviteeCheckoutCreated, inv.Status)
	}
	var sessions int64
	f.db.Model(&domain.CheckoutSession{}).Where("status = ?", domain.SessionCreated).Count(&sessions)
	assert.EqualValues(t, 3, sessions)
}

func TestLockAndSend_SecondCallReusesWithoutEmails(t *testing.T) {
	f := setupCheckout(t, 1000, "a@example.com", "b@example.com", "c@example.com")
	ctx := context.Background()

	first, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	second, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)

	require.Len(t, second, 3)
	for i := range second {
		assert.True(t, second[i].Reused)
		assert.Equal(t, first[i].ProviderSessionID, second[i].ProviderSessionID)
		assert.Equal(t, first[i].CheckoutURL, second[i].CheckoutURL)
		assert.Equal(t, first[i].AmountCents, second[i].AmountCents)
	}
	assert.Equal(t, 3, f.provider.createCount())
	assert.Equal(t, 3, f.sender.count())
}

func TestLockAndSend_ReuseDegradesToEmptyURL(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	ctx := context.Background()
	_, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)

	f.provider.retrieveErr = errors.New("stripe: 503")
	results, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Reused)
	assert.Equal(t, "", results[0].CheckoutURL)
}

func TestLockAndSend_MissingURLOnCreateIsUpstream(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	f.provider.emptyURL = true

	_, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	var sessions int64
	f.db.Model(&domain.CheckoutSession{}).Count(&sessions)
	assert.Zero(t, sessions)
	assert.Zero(t, f.sender.count())
}

func TestLockAndSend_SkipsPaidParticipants(t *testing.T) {
	f := setupCheckout(t, 900, "a@example.com", "b@example.com", "c@example.com")
	ctx := context.Background()
	_, err := f.gifts.LockAndAssign(ctx, f.giftID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Invitee{}).Where("email = ?", "b@example.com").
		Update("status", domain.InviteePaid).Error)

	results, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a@example.com", results[0].Email)
	assert.Equal(t, "c@example.com", results[1].Email)
	assert.Equal(t, 2, f.provider.createCount())
}

func TestLockAndSend_EmailFailureKeepsSession(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	f.sender.err = errors.New("brevo send failed: status 500")

	results, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Reused)

	var sess domain.CheckoutSession
	require.NoError(t, f.db.First(&sess).Error)
	assert.Equal(t, results[0].ProviderSessionID, sess.ProviderSessionID)
}

func TestLockAndSend_NoSenderConfigured(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	f.orch.Sender = nil

	results, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestLockAndSend_ConcurrentWriterSessionBecomesCanonical(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	// Simulate another instance persisting its session while ours is being created.
	f.provider.onCreate = func(in provider.CreateSessionInput) {
		var inv domain.Invitee
		require.NoError(t, f.db.Where("email = ?", in.Recipient).First(&inv).Error)
		require.NoError(t, f.db.Create(&domain.CheckoutSession{
			InviteeID:         inv.ID,
			ProviderSessionID: "cs_other_instance",
			Status:            domain.SessionCreated,
			CreatedAt:         time.Now().UTC(),
		}).Error)
	}

	results, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Reused)
	assert.Equal(t, "cs_other_instance", results[0].ProviderSessionID)
	assert.Zero(t, f.sender.count())
}

func TestLockAndSend_NoParticipantsIsConflict(t *testing.T) {
	f := setupCheckout(t, 500)
	_, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestLockAndSend_InviteeLockHeldIsConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := setupCheckout(t, 500, "a@example.com")
	f.orch.Locker = &cache.RedisLocker{
		Client: client,
		Prefix: "lock:checkout:",
		Wait:   100 * time.Millisecond,
		Retry:  10 * time.Millisecond,
	}

	_, err := f.gifts.LockAndAssign(context.Background(), f.giftID)
	require.NoError(t, err)
	var inv domain.Invitee
	require.NoError(t, f.db.First(&inv).Error)
	require.NoError(t, mr.Set("lock:checkout:invitee:"+inv.ID.String(), "someone-else"))

	_, err = f.orch.LockAndSend(context.Background(), f.giftID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Zero(t, f.provider.createCount())

	mr.Del("lock:checkout:invitee:" + inv.ID.String())
	results, err := f.orch.LockAndSend(context.Background(), f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, mr.Exists("lock:checkout:invitee:"+inv.ID.String()))
}

func TestLockAndSend_PaymentAfterSnapshotIsNotResent(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	ctx := context.Background()
	first, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.orch.Locker = &hookLocker{onAcquire: func(string) {
		now := time.Now().UTC()
		require.NoError(t, f.db.Model(&domain.CheckoutSession{}).
			Where("provider_session_id = ?", first[0].ProviderSessionID).
			Updates(map[string]interface{}{"status": domain.SessionPaid, "paid_at": now}).Error)
		require.NoError(t, f.db.Model(&domain.Invitee{}).
			Where("email = ?", "a@example.com").
			Updates(map[string]interface{}{"status": domain.InviteePaid, "paid_at": now}).Error)
	}}

	results, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, f.provider.createCount())
	assert.Equal(t, 1, f.sender.count())

	var sessions int64
	f.db.Model(&domain.CheckoutSession{}).Count(&sessions)
	assert.EqualValues(t, 1, sessions)
}

func TestLockAndSend_PaidSessionIsNeverReplaced(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	ctx := context.Background()
	first, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Session paid while the invitee row still lags behind.
	require.NoError(t, f.db.Model(&domain.CheckoutSession{}).
		Where("provider_session_id = ?", first[0].ProviderSessionID).
		Update("status", domain.SessionPaid).Error)

	results, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, f.provider.createCount())
	assert.Equal(t, 1, f.sender.count())
}

func TestLockAndSend_ExpiredSessionIsReplaced(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	ctx := context.Background()
	first, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.CheckoutSession{}).
		Where("provider_session_id = ?", first[0].ProviderSessionID).
		Update("status", domain.SessionExpired).Error)

	results, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Reused)
	assert.NotEqual(t, first[0].ProviderSessionID, results[0].ProviderSessionID)
	assert.Equal(t, 2, f.sender.count())
}

func TestLockAndSend_LogsCarryRequestTrace(t *testing.T) {
	f := setupCheckout(t, 500, "a@example.com")
	f.sender.err = errors.New("brevo send failed: status 500")

	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("trace_id", "trace-123").Logger()
	ctx := logger.WithContext(context.Background())

	_, err := f.orch.LockAndSend(ctx, f.giftID)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Payment email failed")
	assert.Contains(t, buf.String(), `"trace_id":"trace-123"`)
}
