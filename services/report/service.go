package report

import (
	"context"
	"time"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Service answers read-only aggregate queries. Nothing here writes.
type Service struct {
	db       *gorm.DB
	ledger   *ledger.Service
	schedule commission.Schedule
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Ledger   *ledger.Service
	Schedule commission.Schedule
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		ledger:   p.Ledger,
		schedule: p.Schedule,
	}
}

type sumRow struct {
	Total decimal.Decimal
}

type statusRow struct {
	Status ledger.Status
	Count  int64
}

func (s *Service) statusCounts(ctx context.Context, model any) (StatusCounts, error) {
	var rows []statusRow
	if err := s.db.WithContext(ctx).Model(model).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return StatusCounts{}, err
	}

	var out StatusCounts
	for _, r := range rows {
		switch r.Status {
		case ledger.StatusPending:
			out.Pending = r.Count
		case ledger.StatusApproved:
			out.Approved = r.Count
		case ledger.StatusRejected:
			out.Rejected = r.Count
		}
	}
	return out, nil
}

func (s *Service) userCounts(ctx context.Context) (UserCounts, error) {
	var out UserCounts
	err := s.db.WithContext(ctx).Model(&ledger.User{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_active = ? AND is_banned = ? THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN is_premium = ? THEN 1 ELSE 0 END), 0) AS premium,
			COALESCE(SUM(CASE WHEN is_banned = ? THEN 1 ELSE 0 END), 0) AS banned`,
			true, false, true, true).
		Scan(&out).Error
	return out, err
}

func (s *Service) financials(ctx context.Context) (Financials, error) {
	var out Financials
	err := s.db.WithContext(ctx).Model(&ledger.User{}).
		Select(`COALESCE(SUM(total_earned), 0) AS total_earned,
			COALESCE(SUM(total_withdrawn), 0) AS total_withdrawn,
			COALESCE(SUM(balance), 0) AS outstanding_balance`).
		Scan(&out).Error
	if err != nil {
		return out, err
	}

	var pending sumRow
	err = s.db.WithContext(ctx).Model(&ledger.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", ledger.StatusPending).
		Scan(&pending).Error
	out.PendingWithdrawals = pending.Total
	return out, err
}

// SystemStats runs the aggregate queries concurrently.
func (s *Service) SystemStats(ctx context.Context) (*SystemStats, error) {
	out := &SystemStats{GeneratedAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Users, err = s.userCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Submissions, err = s.statusCounts(gctx, &ledger.Submission{})
		return err
	})
	g.Go(func() (err error) {
		out.Withdrawals, err = s.statusCounts(gctx, &ledger.Withdrawal{})
		return err
	})
	g.Go(func() (err error) {
		out.Financials, err = s.financials(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.FromContext(ctx).Error("failed to compute system stats", zap.Error(err))
		return nil, errutil.Persistence("failed to compute system stats", err)
	}
	return out, nil
}

type submissionTotals struct {
	Submissions      int64
	DeclaredAccounts int64
}

type approvalTotals struct {
	ApprovedAccounts int64
	Earnings         decimal.Decimal
}

type withdrawalTotals struct {
	WithdrawalRequests int64
	WithdrawalAmount   decimal.Decimal
}

// RangeReport aggregates activity created in [start, end).
func (s *Service) RangeReport(ctx context.Context, start, end time.Time) (*RangeReport, error) {
	if !end.After(start) {
		return nil, errutil.ValidationFailed("end must be after start", nil)
	}

	out := &RangeReport{Start: start, End: end}
	window := func() *gorm.DB {
		return s.db.WithContext(ctx).Where("created_at >= ? AND created_at < ?", start, end)
	}

	var (
		subs        submissionTotals
		approved    approvalTotals
		withdrawals withdrawalTotals
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return window().Model(&ledger.Submission{}).
			Select("COUNT(*) AS submissions, COALESCE(SUM(account_count), 0) AS declared_accounts").
			Scan(&subs).Error
	})
	g.Go(func() error {
		return window().Model(&ledger.Submission{}).
			Where("status = ?", ledger.StatusApproved).
			Select("COALESCE(SUM(approved_count), 0) AS approved_accounts, COALESCE(SUM(total_earning), 0) AS earnings").
			Scan(&approved).Error
	})
	g.Go(func() error {
		return window().Model(&ledger.Withdrawal{}).
			Select("COUNT(*) AS withdrawal_requests, COALESCE(SUM(amount), 0) AS withdrawal_amount").
			Scan(&withdrawals).Error
	})
	g.Go(func() error {
		return window().Model(&ledger.User{}).Count(&out.NewUsers).Error
	})

	if err := g.Wait(); err != nil {
		logger.FromContext(ctx).Error("failed to compute range report", zap.Error(err))
		return nil, errutil.Persistence("failed to compute range report", err)
	}

	out.Submissions = subs.Submissions
	out.DeclaredAccounts = subs.DeclaredAccounts
	out.ApprovedAccounts = approved.ApprovedAccounts
	out.Earnings = approved.Earnings
	out.WithdrawalRequests = withdrawals.WithdrawalRequests
	out.WithdrawalAmount = withdrawals.WithdrawalAmount
	return out, nil
}

// downline walks the referral tree below rootID level by level, at most
// depth levels deep. A visited set keeps a corrupted graph from looping.
func (s *Service) downline(ctx context.Context, rootID string, depth int) ([][]*ledger.User, error) {
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}

	var levels [][]*ledger.User
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var users []*ledger.User
		if err := s.db.WithContext(ctx).Model(&ledger.User{}).
			Where("referrer_id IN ?", frontier).
			Order("created_at asc").
			Find(&users).Error; err != nil {
			return nil, err
		}

		current := make([]*ledger.User, 0, len(users))
		next := make([]string, 0, len(users))
		for _, u := range users {
			if _, seen := visited[u.ID]; seen {
				continue
			}
			visited[u.ID] = struct{}{}
			current = append(current, u)
			next = append(next, u.ID)
		}
		if len(current) == 0 {
			break
		}
		levels = append(levels, current)
		frontier = next
	}
	return levels, nil
}

type earningRow struct {
	Type  string
	Total decimal.Decimal
}

// UserMLMStats summarizes a user's commissions and downline down to the
// configured number of levels.
func (s *Service) UserMLMStats(ctx context.Context, userID string) (*MLMStats, error) {
	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &MLMStats{
		UserID:           user.ID,
		ReferralCode:     user.ReferralCode,
		TotalReferrals:   user.TotalReferrals,
		MLMEarnings:      user.MLMEarnings,
		EarningsByType:   map[string]decimal.Decimal{},
		TotalCommission:  decimal.Zero,
		DownlineEarnings: decimal.Zero,
	}

	if err := s.db.WithContext(ctx).Model(&ledger.User{}).
		Where("referrer_id = ?", user.ID).
		Count(&out.DirectReferrals).Error; err != nil {
		return nil, errutil.Persistence("failed to count referrals", err)
	}

	var rows []earningRow
	if err := s.db.WithContext(ctx).Model(&ledger.CommissionEvent{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", user.ID).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, errutil.Persistence("failed to sum commissions", err)
	}
	for _, r := range rows {
		out.EarningsByType[r.Type] = r.Total
		out.TotalCommission = out.TotalCommission.Add(r.Total)
	}

	levels, err := s.downline(ctx, user.ID, s.schedule.MaxLevels)
	if err != nil {
		return nil, errutil.Persistence("failed to walk downline", err)
	}
	for i, members := range levels {
		ls := LevelStats{Level: i + 1, Users: len(members), Earnings: decimal.Zero}
		for _, m := range members {
			ls.Earnings = ls.Earnings.Add(m.TotalEarned)
		}
		out.Levels = append(out.Levels, ls)
		out.DownlineSize += ls.Users
		out.DownlineEarnings = out.DownlineEarnings.Add(ls.Earnings)
	}

	return out, nil
}

// TeamEarnings is the sum of total_earned across the downline.
func (s *Service) TeamEarnings(ctx context.Context, userID string) (decimal.Decimal, error) {
	levels, err := s.downline(ctx, userID, s.schedule.MaxLevels)
	if err != nil {
		return decimal.Zero, errutil.Persistence("failed to walk downline", err)
	}

	total := decimal.Zero
	for _, members := range levels {
		for _, m := range members {
			total = total.Add(m.TotalEarned)
		}
	}
	return total, nil
}

type referralCount struct {
	ReferrerID string
	Count      int64
}

// Genealogy returns the referral tree rooted at userID. The root has depth 0
// and the tree holds maxDepth levels including the root.
func (s *Service) Genealogy(ctx context.Context, userID string, maxDepth int) (*Node, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultGenealogyDepth
	}

	root, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	levels, err := s.downline(ctx, root.ID, maxDepth-1)
	if err != nil {
		return nil, errutil.Persistence("failed to walk genealogy", err)
	}

	nodes := map[string]*Node{root.ID: newNode(root, 0)}
	ids := []string{root.ID}
	for depth, members := range levels {
		for _, m := range members {
			n := newNode(m, depth+1)
			nodes[m.ID] = n
			ids = append(ids, m.ID)
			if parent, ok := nodes[*m.ReferrerID]; ok {
				parent.Children = append(parent.Children, n)
			}
		}
	}

	var counts []referralCount
	if err := s.db.WithContext(ctx).Model(&ledger.User{}).
		Select("referrer_id, COUNT(*) AS count").
		Where("referrer_id IN ?", ids).
		Group("referrer_id").
		Scan(&counts).Error; err != nil {
		return nil, errutil.Persistence("failed to count referrals", err)
	}
	for _, c := range counts {
		if n, ok := nodes[c.ReferrerID]; ok {
			n.Referrals = c.Count
		}
	}

	return nodes[root.ID], nil
}

func newNode(u *ledger.User, depth int) *Node {
	return &Node{
		ID:          u.ID,
		Username:    u.Username,
		TotalEarned: u.TotalEarned,
		MLMEarnings: u.MLMEarnings,
		Depth:       depth,
		JoinedAt:    u.CreatedAt,
	}
}

// TopEarners ranks users by mlm_earnings.
func (s *Service) TopEarners(ctx context.Context, limit int) ([]Earner, error) {
	if limit <= 0 {
		limit = DefaultTopEarners
	}
	if limit > MaxTopEarners {
		limit = MaxTopEarners
	}

	var users []*ledger.User
	if err := s.db.WithContext(ctx).Model(&ledger.User{}).
		Order("mlm_earnings desc").
		Order("id asc").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, errutil.Persistence("failed to rank earners", err)
	}

	out := make([]Earner, 0, len(users))
	for _, u := range users {
		team, err := s.TeamEarnings(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Earner{
			ID:             u.ID,
			Username:       u.Username,
			MLMEarnings:    u.MLMEarnings,
			TotalEarned:    u.TotalEarned,
			TotalReferrals: u.TotalReferrals,
			TeamEarnings:   team,
		})
	}
	return out, nil
}
