package account

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/notification"
	"payout-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSequence struct {
	mu sync.Mutex
	n  int
}

func (f *fakeSequence) NextSubmissionSequence(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeSequence) NextReferralCode(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("CODE%04d", f.n), nil
}

func (f *fakeSequence) SeedSubmissionSequence(ctx context.Context, floor int64) error {
	return nil
}

type fakeNotifier struct {
	events []notification.Event
}

func (f *fakeNotifier) Notify(ctx context.Context, event notification.Event) {
	f.events = append(f.events, event)
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Service
	notifier *fakeNotifier
	svc      *Service
}

func newFixture(t *testing.T, schedule commission.Schedule) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, ledger.Models()...)
	l := ledger.NewService(ledger.ServiceParams{DB: db, Node: testutil.NewNode(t)})

	f := &fixture{db: db, ledger: l, notifier: &fakeNotifier{}}
	f.svc = NewService(ServiceParams{
		DB:       db,
		Ledger:   l,
		Engine:   commission.NewEngine(commission.EngineParams{DB: db, Ledger: l, Schedule: schedule}),
		Sequence: &fakeSequence{},
		Notifier: f.notifier,
	})
	return f
}

func (f *fixture) register(t *testing.T, username, code string) *RegisterResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterRequest{
		Username:     username,
		Email:        username + "@example.com",
		Password:     "secret123",
		ReferralCode: code,
	})
	require.NoError(t, err)
	return res
}

func TestRegisterWithoutReferral(t *testing.T) {
	f := newFixture(t, commission.DefaultSchedule())

	res := f.register(t, "alice", "")
	require.NotEmpty(t, res.User.ID)
	require.Equal(t, "CODE0001", res.User.ReferralCode)
	require.Nil(t, res.ReferrerID)
	require.False(t, res.BonusBooked)
	require.NotEqual(t, "secret123", res.User.PasswordHash)
}

func TestRegisterWithReferralBooksBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())

	alice := f.register(t, "alice", "")
	bob := f.register(t, "bob", alice.User.ReferralCode)

	require.True(t, bob.BonusBooked)
	require.Equal(t, alice.User.ID, *bob.ReferrerID)

	a, err := f.ledger.GetUser(ctx, alice.User.ID)
	require.NoError(t, err)
	require.True(t, a.Balance.Equal(decimal.NewFromInt(20)))
	require.True(t, a.MLMEarnings.Equal(decimal.NewFromInt(20)))
	require.Equal(t, 1, a.TotalReferrals)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, notification.ReferralJoined, f.notifier.events[0].Type)
	require.Equal(t, alice.User.ID, f.notifier.events[0].UserID)
}

func TestRegisterUnknownReferralCodeWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())

	_, err := f.svc.Register(ctx, RegisterRequest{Username: "bob", Password: "secret123", ReferralCode: "NOPE0000"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	var count int64
	require.NoError(t, f.db.Model(&ledger.User{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRegisterKeepsUserWhenBonusFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())

	alice := f.register(t, "alice", "")
	// the bonus event table is gone, so the second transaction fails
	require.NoError(t, f.db.Migrator().DropTable(&ledger.CommissionEvent{}))

	bob, err := f.svc.Register(ctx, RegisterRequest{Username: "bob", Password: "secret123", ReferralCode: alice.User.ReferralCode})
	require.NoError(t, err)
	require.False(t, bob.BonusBooked)

	stored, err := f.ledger.GetUser(ctx, bob.User.ID)
	require.NoError(t, err)
	require.Equal(t, alice.User.ID, *stored.ReferrerID)

	a, err := f.ledger.GetUser(ctx, alice.User.ID)
	require.NoError(t, err)
	require.True(t, a.Balance.IsZero())
	require.Zero(t, a.TotalReferrals)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())
	f.register(t, "alice", "")

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing username", RegisterRequest{Password: "secret123"}},
		{"missing password", RegisterRequest{Username: "bob"}},
		{"short password", RegisterRequest{Username: "bob", Password: "123"}},
		{"duplicate username", RegisterRequest{Username: "alice", Password: "secret123"}},
		{"duplicate email", RegisterRequest{Username: "bob", Email: "ALICE@example.com", Password: "secret123"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.req)
			require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
		})
	}
}

func TestRegisterFromBotWithoutPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())

	res, err := f.svc.Register(ctx, RegisterRequest{Username: "tg_1", TelegramID: "1001"})
	require.NoError(t, err)
	require.Equal(t, "1001", *res.User.TelegramID)

	_, err = f.svc.Register(ctx, RegisterRequest{Username: "tg_2", TelegramID: "1001"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	_, err = f.svc.Authenticate(ctx, "tg_1", "anything")
	require.Equal(t, errutil.StatusUnauthorized, errutil.KindOf(err))
}

func TestRegisterReferral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())

	alice := f.register(t, "alice", "")
	bob := f.register(t, "bob", "")

	event, err := f.svc.RegisterReferral(ctx, alice.User.ID, bob.User.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.CommissionTypeReferral, event.Type)

	stored, err := f.ledger.GetUser(ctx, bob.User.ID)
	require.NoError(t, err)
	require.Equal(t, alice.User.ID, *stored.ReferrerID)

	_, err = f.svc.RegisterReferral(ctx, alice.User.ID, bob.User.ID)
	require.Equal(t, errutil.StatusAlreadyProcessed, errutil.KindOf(err))

	// bob is below alice, so alice cannot join under bob
	_, err = f.svc.RegisterReferral(ctx, bob.User.ID, alice.User.ID)
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	_, err = f.svc.RegisterReferral(ctx, alice.User.ID, alice.User.ID)
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())
	alice := f.register(t, "alice", "")

	user, err := f.svc.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	require.NotNil(t, user.LastLogin)

	user, err = f.svc.Authenticate(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, alice.User.ID, user.ID)

	_, err = f.svc.Authenticate(ctx, "alice", "wrong-password")
	require.Equal(t, errutil.StatusUnauthorized, errutil.KindOf(err))

	_, err = f.svc.Authenticate(ctx, "nobody", "secret123")
	require.Equal(t, errutil.StatusUnauthorized, errutil.KindOf(err))

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionBan})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, "alice", "secret123")
	require.Equal(t, errutil.StatusForbidden, errutil.KindOf(err))
}

func TestManageUserFlags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())
	alice := f.register(t, "alice", "")

	u, err := f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionSetPremium})
	require.NoError(t, err)
	require.True(t, u.IsPremium)

	u, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionBan})
	require.NoError(t, err)
	require.True(t, u.IsBanned)

	u, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionUnban})
	require.NoError(t, err)
	require.False(t, u.IsBanned)

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionResetPassword, NewPassword: "another-secret"})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, "alice", "another-secret")
	require.NoError(t, err)

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: "delete"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: "ghost", Action: ActionBan})
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
}

func TestManageUserAdjustBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, commission.DefaultSchedule())
	alice := f.register(t, "alice", "")

	u, err := f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionAdjustBalance, Operation: OperationAdd, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(300)))

	u, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionAdjustBalance, Operation: OperationSubtract, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(200)))
	require.True(t, u.Balance.Equal(u.TotalEarned.Sub(u.TotalWithdrawn)))

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionAdjustBalance, Operation: OperationSubtract, Amount: decimal.NewFromInt(1000)})
	require.Equal(t, errutil.StatusInsufficientFunds, errutil.KindOf(err))

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionAdjustBalance, Operation: OperationSet, Amount: decimal.NewFromInt(50)})
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	_, err = f.svc.ManageUser(ctx, ManageRequest{UserID: alice.User.ID, Action: ActionAdjustBalance, Operation: OperationAdd})
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))

	valid, err := f.ledger.VerifyChain(ctx, alice.User.ID)
	require.NoError(t, err)
	require.True(t, valid)
}
