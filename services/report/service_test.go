package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var day = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db  *gorm.DB
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, ledger.Models()...)
	l := ledger.NewService(ledger.ServiceParams{DB: db, Node: testutil.NewNode(t)})
	return &fixture{
		db:  db,
		svc: NewService(ServiceParams{DB: db, Ledger: l, Schedule: commission.DefaultSchedule()}),
	}
}

type userOpt func(u *ledger.User)

func referredBy(id string) userOpt {
	return func(u *ledger.User) { u.ReferrerID = &id }
}

func earned(total, mlm int64) userOpt {
	return func(u *ledger.User) {
		u.TotalEarned = decimal.NewFromInt(total)
		u.Balance = decimal.NewFromInt(total)
		u.MLMEarnings = decimal.NewFromInt(mlm)
	}
}

func (f *fixture) user(t *testing.T, id string, opts ...userOpt) *ledger.User {
	t.Helper()
	u := &ledger.User{
		ID:           id,
		Username:     id,
		ReferralCode: "REF" + id,
		IsActive:     true,
		CreatedAt:    day,
		UpdatedAt:    day,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) submission(t *testing.T, id string, status ledger.Status, declared, approved int, earning int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&ledger.Submission{
		ID:            id,
		UserID:        "a",
		Category:      "gmail",
		Sequence:      int64(len(id)) + at.Unix(),
		AccountCount:  declared,
		ApprovedCount: approved,
		TotalEarning:  decimal.NewFromInt(earning),
		Status:        status,
		Channel:       ledger.ChannelAPI,
		CreatedAt:     at,
	}).Error)
}

func (f *fixture) withdrawal(t *testing.T, id string, status ledger.Status, amount int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&ledger.Withdrawal{
		ID:            id,
		UserID:        "a",
		Amount:        decimal.NewFromInt(amount),
		PaymentMethod: "bkash",
		Status:        status,
		CreatedAt:     at,
	}).Error)
}

func TestSystemStats(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a", earned(1000, 0))
	f.user(t, "b", earned(500, 50), func(u *ledger.User) { u.IsPremium = true })
	f.user(t, "c", func(u *ledger.User) { u.IsBanned = true })

	f.submission(t, "s1", ledger.StatusPending, 10, 0, 0, day)
	f.submission(t, "s22", ledger.StatusApproved, 10, 8, 80, day)
	f.withdrawal(t, "w1", ledger.StatusPending, 500, day)
	f.withdrawal(t, "w2", ledger.StatusRejected, 700, day)

	stats, err := f.svc.SystemStats(context.Background())
	require.NoError(t, err)

	require.Equal(t, UserCounts{Total: 3, Active: 2, Premium: 1, Banned: 1}, stats.Users)
	require.Equal(t, StatusCounts{Pending: 1, Approved: 1}, stats.Submissions)
	require.Equal(t, StatusCounts{Pending: 1, Rejected: 1}, stats.Withdrawals)
	require.EqualValues(t, 2, stats.Withdrawals.Total())

	require.True(t, stats.Financials.TotalEarned.Equal(decimal.NewFromInt(1500)))
	require.True(t, stats.Financials.TotalWithdrawn.IsZero())
	require.True(t, stats.Financials.OutstandingBalance.Equal(decimal.NewFromInt(1500)))
	require.True(t, stats.Financials.PendingWithdrawals.Equal(decimal.NewFromInt(500)))
}

func TestSystemStatsEmpty(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.SystemStats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Users.Total)
	require.True(t, stats.Financials.PendingWithdrawals.IsZero())
}

func TestRangeReport(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a")
	f.user(t, "old", func(u *ledger.User) { u.CreatedAt = day.AddDate(0, 0, -30) })

	f.submission(t, "s1", ledger.StatusApproved, 10, 8, 80, day)
	f.submission(t, "s22", ledger.StatusRejected, 5, 0, 0, day.Add(time.Hour))
	f.submission(t, "s333", ledger.StatusApproved, 100, 100, 1000, day.AddDate(0, 0, -5))
	f.withdrawal(t, "w1", ledger.StatusPending, 500, day)
	f.withdrawal(t, "w2", ledger.StatusApproved, 600, day.AddDate(0, 0, 2))

	start := day.Truncate(24 * time.Hour)
	report, err := f.svc.RangeReport(context.Background(), start, start.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.EqualValues(t, 2, report.Submissions)
	require.EqualValues(t, 15, report.DeclaredAccounts)
	require.EqualValues(t, 8, report.ApprovedAccounts)
	require.True(t, report.Earnings.Equal(decimal.NewFromInt(80)))
	require.EqualValues(t, 1, report.WithdrawalRequests)
	require.True(t, report.WithdrawalAmount.Equal(decimal.NewFromInt(500)))
	require.EqualValues(t, 1, report.NewUsers)
}

func TestRangeReportRejectsEmptyWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RangeReport(context.Background(), day, day)
	require.Equal(t, errutil.StatusValidationFailed, errutil.KindOf(err))
}

func TestUserMLMStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a", earned(0, 45), func(u *ledger.User) { u.TotalReferrals = 1 })
	f.user(t, "b", referredBy("a"), earned(100, 0))
	f.user(t, "b2", referredBy("a"), earned(30, 0))
	f.user(t, "c", referredBy("b"), earned(1000, 0))

	for i, ev := range []ledger.CommissionEvent{
		{ID: "e1", UserID: "a", SourceUserID: "b", Type: ledger.CommissionTypeReferral, Level: 1, Amount: decimal.NewFromInt(20)},
		{ID: "e2", UserID: "a", SourceUserID: "c", Type: ledger.LevelType(2), Level: 2, Amount: decimal.NewFromInt(25)},
	} {
		ev.Rate = decimal.NewFromInt(int64(i))
		ev.CreatedAt = day
		require.NoError(t, f.db.Create(&ev).Error)
	}

	stats, err := f.svc.UserMLMStats(ctx, "a")
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.DirectReferrals)
	require.Equal(t, 1, stats.TotalReferrals)
	require.Equal(t, "REFa", stats.ReferralCode)
	require.True(t, stats.EarningsByType["referral"].Equal(decimal.NewFromInt(20)))
	require.True(t, stats.EarningsByType["level2"].Equal(decimal.NewFromInt(25)))
	require.True(t, stats.TotalCommission.Equal(decimal.NewFromInt(45)))
	require.Equal(t, 3, stats.DownlineSize)
	require.True(t, stats.DownlineEarnings.Equal(decimal.NewFromInt(1130)))
	require.Len(t, stats.Levels, 2)
	require.Equal(t, 2, stats.Levels[0].Users)
	require.True(t, stats.Levels[1].Earnings.Equal(decimal.NewFromInt(1000)))

	_, err = f.svc.UserMLMStats(ctx, "ghost")
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
}

func TestTeamEarningsStopsAtMaxLevels(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u0")
	// a chain deeper than the schedule allows; every member earned 10
	prev := "u0"
	for i := 1; i <= 8; i++ {
		id := "u" + string(rune('0'+i))
		f.user(t, id, referredBy(prev), earned(10, 0))
		prev = id
	}

	total, err := f.svc.TeamEarnings(context.Background(), "u0")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(50)), total.String())
}

func TestDownlineSurvivesCycle(t *testing.T) {
	f := newFixture(t)
	f.user(t, "x")
	f.user(t, "y", referredBy("x"), earned(10, 0))
	require.NoError(t, f.db.Model(&ledger.User{}).Where("id = ?", "x").Update("referrer_id", "y").Error)

	total, err := f.svc.TeamEarnings(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(10)))
}

func TestGenealogy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a")
	f.user(t, "b", referredBy("a"))
	f.user(t, "b2", referredBy("a"))
	f.user(t, "c", referredBy("b"))
	f.user(t, "d", referredBy("c"))

	tree, err := f.svc.Genealogy(ctx, "a", 0)
	require.NoError(t, err)
	require.Equal(t, "a", tree.ID)
	require.Zero(t, tree.Depth)
	require.EqualValues(t, 2, tree.Referrals)
	require.Len(t, tree.Children, 2)

	var b *Node
	for _, child := range tree.Children {
		if child.ID == "b" {
			b = child
		}
	}
	require.NotNil(t, b)
	require.Equal(t, 1, b.Depth)
	require.Len(t, b.Children, 1)

	c := b.Children[0]
	require.Equal(t, 2, c.Depth)
	require.Empty(t, c.Children)
	// d sits below the depth limit but still counts as a referral of c
	require.EqualValues(t, 1, c.Referrals)

	_, err = f.svc.Genealogy(ctx, "ghost", 3)
	require.Equal(t, errutil.StatusNotFound, errutil.KindOf(err))
}

func TestTopEarners(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a", earned(0, 45))
	f.user(t, "b", referredBy("a"), earned(100, 100))
	f.user(t, "c", referredBy("b"), earned(1000, 0))

	earners, err := f.svc.TopEarners(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, earners, 2)
	require.Equal(t, "b", earners[0].ID)
	require.True(t, earners[0].TeamEarnings.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, "a", earners[1].ID)
	require.True(t, earners[1].TeamEarnings.Equal(decimal.NewFromInt(1100)))
}
