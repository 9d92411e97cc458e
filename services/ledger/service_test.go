package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payout-controlplane/pkg/db/option"
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn func(tx *gorm.DB) repository.Repository[T]
	findFn    func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn  func(ctx context.Context, resource *T) error
	updateFn  func(ctx context.Context, resourceID string, resource any) error
	countFn   func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error { return nil }

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error { return nil }

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t)})
}

func seedUser(t *testing.T, svc *Service, id string, balance int64) *User {
	t.Helper()
	u := &User{
		ID:           id,
		Username:     id,
		ReferralCode: "REF" + id,
		Balance:      decimal.NewFromInt(balance),
		TotalEarned:  decimal.NewFromInt(balance),
		IsActive:     true,
	}
	require.NoError(t, svc.DB().Create(u).Error)
	return u
}

func requireIdentity(t *testing.T, u *User) {
	t.Helper()
	require.True(t, u.Balance.Equal(u.TotalEarned.Sub(u.TotalWithdrawn)),
		"balance %s != earned %s - withdrawn %s", u.Balance, u.TotalEarned, u.TotalWithdrawn)
}

func TestNewService(t *testing.T) {
	svc := newTestService(t)

	require.NotNil(t, svc.users)
	require.NotNil(t, svc.journal)
	require.NotEmpty(t, svc.NextID())
}

func TestGetUserNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetUser(context.Background(), "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))

	_, err = svc.GetUser(context.Background(), "")
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
}

func TestCreditUpdatesTotals(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUser(t, svc, "u1", 0)

	entry, err := svc.Credit(ctx, nil, Movement{UserID: "u1", Amount: decimal.NewFromInt(100), Kind: KindEarning, ReferenceID: "s1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Seq)
	require.Equal(t, genesisHash, entry.PreviousHash)

	_, err = svc.Credit(ctx, nil, Movement{UserID: "u1", Amount: decimal.NewFromInt(10), Kind: KindCommission, ReferenceID: "c1"})
	require.NoError(t, err)

	u, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(110)))
	require.True(t, u.TotalEarned.Equal(decimal.NewFromInt(110)))
	require.True(t, u.MLMEarnings.Equal(decimal.NewFromInt(10)))
	requireIdentity(t, u)
}

func TestCreditRejectsNonPositive(t *testing.T) {
	svc := newTestService(t)
	seedUser(t, svc, "u1", 0)

	_, err := svc.Credit(context.Background(), nil, Movement{UserID: "u1", Amount: decimal.Zero, Kind: KindEarning})
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
}

func TestCreditMissingUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Credit(context.Background(), nil, Movement{UserID: "ghost", Amount: decimal.NewFromInt(1), Kind: KindEarning})
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUser(t, svc, "u1", 600)

	_, err := svc.Debit(ctx, nil, Movement{UserID: "u1", Amount: decimal.NewFromInt(500), Kind: KindWithdrawal, ReferenceID: "w1"})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, nil, Movement{UserID: "u1", Amount: decimal.NewFromInt(101), Kind: KindWithdrawal, ReferenceID: "w2"})
	require.Equal(t, errutil.StatusInsufficientFunds, errutil.KindOf(err))

	_, err = svc.Debit(ctx, nil, Movement{UserID: "ghost", Amount: decimal.NewFromInt(1), Kind: KindWithdrawal})
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))

	u, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(100)))
	require.True(t, u.TotalWithdrawn.Equal(decimal.NewFromInt(500)))
	requireIdentity(t, u)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUser(t, svc, "u1", 1000)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.DB().Transaction(func(tx *gorm.DB) error {
				_, err := svc.Debit(ctx, tx, Movement{UserID: "u1", Amount: decimal.NewFromInt(300), Kind: KindWithdrawal})
				return err
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, success)
	u, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(100)))
	requireIdentity(t, u)
}

func TestTransitionStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUser(t, svc, "u1", 0)

	sub := &Submission{ID: "s1", UserID: "u1", Category: "gmail", Sequence: 1, AccountCount: 1, Status: StatusPending, Channel: ChannelBot}
	require.NoError(t, svc.DB().Create(sub).Error)

	err := svc.TransitionStatus(ctx, nil, &Submission{}, "s1", StatusApproved, map[string]any{"admin_notes": "ok"})
	require.NoError(t, err)

	err = svc.TransitionStatus(ctx, nil, &Submission{}, "s1", StatusRejected, nil)
	require.Equal(t, errutil.StatusAlreadyProcessed, errutil.KindOf(err))

	err = svc.TransitionStatus(ctx, nil, &Submission{}, "missing", StatusApproved, nil)
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))

	var stored Submission
	require.NoError(t, svc.DB().First(&stored, "id = ?", "s1").Error)
	require.Equal(t, StatusApproved, stored.Status)
	require.Equal(t, "ok", stored.AdminNotes)
}

func TestReferrerOf(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUser(t, svc, "root", 0)
	child := seedUser(t, svc, "child", 0)
	parent := "root"
	require.NoError(t, svc.DB().Model(child).Update("referrer_id", parent).Error)

	ref, found, err := svc.ReferrerOf(ctx, nil, "child")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "root", *ref)

	ref, found, err = svc.ReferrerOf(ctx, nil, "root")
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, ref)

	_, found, err = svc.ReferrerOf(ctx, nil, "ghost")
	require.NoError(t, err)
	require.False(t, found)
}

func TestJournalChain(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUser(t, svc, "u1", 0)

	for i := 0; i < 3; i++ {
		_, err := svc.Credit(ctx, nil, Movement{UserID: "u1", Amount: decimal.RequireFromString("12.5"), Kind: KindEarning})
		require.NoError(t, err)
	}
	_, err := svc.Debit(ctx, nil, Movement{UserID: "u1", Amount: decimal.NewFromInt(7), Kind: KindWithdrawal})
	require.NoError(t, err)

	valid, err := svc.VerifyChain(ctx, "u1")
	require.NoError(t, err)
	require.True(t, valid)

	entries, info, err := svc.ListEntries(ctx, "u1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, info.HasMore)

	require.NoError(t, svc.DB().Model(&JournalEntry{}).Where("user_id = ? AND seq = ?", "u1", 2).Update("amount", "999").Error)
	valid, err = svc.VerifyChain(ctx, "u1")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestVerifyChainWithMock(t *testing.T) {
	first := &JournalEntry{ID: "e1", UserID: "u1", Seq: 1, Direction: Credit, Kind: KindEarning, Amount: decimal.NewFromInt(100), PreviousHash: genesisHash, CreatedAt: time.Now()}
	first.Hash = first.GenerateHash()

	second := &JournalEntry{ID: "e2", UserID: "u1", Seq: 2, Direction: Debit, Kind: KindWithdrawal, Amount: decimal.NewFromInt(50), PreviousHash: first.Hash, CreatedAt: time.Now()}
	second.Hash = second.GenerateHash()

	svc := &Service{
		journal: &repoMock[JournalEntry]{
			findFn: func(ctx context.Context, _ *JournalEntry, opts ...option.QueryOption) ([]*JournalEntry, error) {
				return []*JournalEntry{first, second}, nil
			},
		},
	}

	valid, err := svc.VerifyChain(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, valid)

	second.PreviousHash = "tampered"
	valid, err = svc.VerifyChain(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, valid)
}
