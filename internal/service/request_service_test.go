package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"github.com/xela07ax/getmoney-core/internal/infra"
	"go.uber.org/zap"
)

// fakeRepo — потокобезопасное in-memory хранилище с той же семантикой,
// что у условного UPDATE в Postgres: проверка allowed-набора и запись
// выполняются под одной блокировкой.
type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*domain.Request
	clock  func() time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID: 1,
		items:  map[int64]*domain.Request{},
		clock:  time.Now,
	}
}

func (f *fakeRepo) Create(_ context.Context, req *domain.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock()
	req.ID = f.nextID
	f.nextID++
	req.CreatedAt = now
	req.UpdatedAt = now

	cp := *req
	f.items[req.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRepo) FindActive(_ context.Context, requesterID *int64) ([]*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]*domain.Request, 0)
	for _, req := range f.items {
		if !req.Status.IsActive() {
			continue
		}
		if requesterID != nil && req.RequesterID != *requesterID {
			continue
		}
		cp := *req
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (f *fakeRepo) FindForMonth(_ context.Context, requesterID int64, from, to time.Time) ([]*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]*domain.Request, 0)
	for _, req := range f.items {
		if req.RequesterID != requesterID {
			continue
		}
		if req.CreatedAt.Before(from) || !req.CreatedAt.Before(to) {
			continue
		}
		cp := *req
		results = append(results, &cp)
	}
	// Двухкорзинная сортировка: активные раньше финальных, внутри — новые сверху
	sort.SliceStable(results, func(i, j int) bool {
		fi, fj := results[i].Status.IsFinal(), results[j].Status.IsFinal()
		if fi != fj {
			return !fi
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (f *fakeRepo) Transition(
	_ context.Context,
	id int64,
	target domain.RequestStatus,
	allowed []domain.RequestStatus,
	eta *time.Time,
	approverComment *string,
) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	match := false
	for _, s := range allowed {
		if req.Status == s {
			match = true
			break
		}
	}
	if !match {
		return nil, nil
	}

	req.Status = target
	if eta != nil {
		req.Eta = eta
	}
	if approverComment != nil {
		req.ApproverComment = approverComment
	}
	req.UpdatedAt = f.clock()

	cp := *req
	return &cp, nil
}

func (f *fakeRepo) UpdateMessageRefs(_ context.Context, id int64, requesterMsgID, approverMsgID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.items[id]
	if !ok {
		return nil // no-op, как у настоящего репозитория
	}
	if requesterMsgID != nil {
		req.RequesterMsgID = requesterMsgID
	}
	if approverMsgID != nil {
		req.ApproverMsgID = approverMsgID
	}
	return nil
}

// seed кладет заявку с нужным статусом и датой напрямую, минуя сервис.
func (f *fakeRepo) seed(requesterID, amount int64, status domain.RequestStatus, createdAt time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.items[id] = &domain.Request{
		ID:          id,
		RequesterID: requesterID,
		Amount:      amount,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	return id
}

type fakeNotifier struct {
	mu        sync.Mutex
	events    []string
	reminders []int64
}

func (n *fakeNotifier) RequestEvent(_ context.Context, requestID int64, status domain.RequestStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, string(status))
	return nil
}

func (n *fakeNotifier) Reminder(_ context.Context, requestID int64, _ domain.RequestStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, requestID)
	return nil
}

func workflowConfig() infra.WorkflowConfig {
	return infra.WorkflowConfig{
		Timezone:      "Europe/Moscow",
		MinAmount:     100,
		MaxAmount:     10_000_000,
		CommentMaxLen: 500,
	}
}

func newTestService(t *testing.T, repo *fakeRepo) (*RequestService, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	svc, err := NewRequestService(repo, notifier, nil, zap.NewNop(), nil, workflowConfig())
	require.NoError(t, err)
	return svc, notifier
}

func strPtr(s string) *string { return &s }

func TestCreateValidatesAmountBounds(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())
	ctx := context.Background()

	tests := []struct {
		name   string
		amount int64
		ok     bool
	}{
		{"lower boundary", 100, true},
		{"upper boundary", 10_000_000, true},
		{"below minimum", 99, false},
		{"above maximum", 10_000_001, false},
		{"zero", 0, false},
		{"negative", -500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := svc.Create(ctx, 1, tt.amount, nil)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, domain.StatusPending, req.Status)
				assert.Equal(t, tt.amount, req.Amount)
				assert.NotZero(t, req.ID)
			} else {
				assert.ErrorIs(t, err, domain.ErrValidation)
			}
		})
	}
}

func TestCreateRejectsOversizedComment(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())

	long := make([]rune, 501)
	for i := range long {
		long[i] = 'ж'
	}
	comment := string(long)

	_, err := svc.Create(context.Background(), 1, 500, &comment)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFullLifecycleConfirmPath(t *testing.T) {
	svc, notifier := newTestService(t, newFakeRepo())
	ctx := context.Background()

	req, err := svc.Create(ctx, 1, 5000, strPtr("на подарок"))
	require.NoError(t, err)

	eta := svc.EtaFromOption(domain.EtaOptionToday)
	req, err = svc.Approve(ctx, req.ID, eta, strPtr("вечером"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, req.Status)
	require.NotNil(t, req.Eta)
	assert.True(t, eta.Equal(*req.Eta))

	req, err = svc.MarkSent(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, req.Status)
	// ETA не очищается после ухода из approved — остается в истории
	assert.NotNil(t, req.Eta)

	req, err = svc.ConfirmReceipt(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, req.Status)
	assert.True(t, req.Status.IsFinal())

	assert.Equal(t, []string{"pending", "approved", "sent", "confirmed"}, notifier.events)
}

func TestDisputeRecoveryPath(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())
	ctx := context.Background()

	req, err := svc.Create(ctx, 1, 3000, nil)
	require.NoError(t, err)

	// Прямая отправка, минуя одобрение
	req, err = svc.MarkSent(ctx, req.ID)
	require.NoError(t, err)

	req, err = svc.DisputeReceipt(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, req.Status)

	// Повторная отправка после спора
	req, err = svc.MarkSent(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, req.Status)

	req, err = svc.ConfirmReceipt(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, req.Status)
}

func TestTransitionsFromWrongStateAreDeclined(t *testing.T) {
	ctx := context.Background()

	type op struct {
		name string
		call func(svc *RequestService, id int64) error
	}
	ops := []op{
		{"approve", func(svc *RequestService, id int64) error {
			_, err := svc.Approve(ctx, id, time.Now(), nil)
			return err
		}},
		{"reject", func(svc *RequestService, id int64) error {
			_, err := svc.Reject(ctx, id, nil)
			return err
		}},
		{"mark_sent", func(svc *RequestService, id int64) error {
			_, err := svc.MarkSent(ctx, id)
			return err
		}},
		{"confirm_receipt", func(svc *RequestService, id int64) error {
			_, err := svc.ConfirmReceipt(ctx, id)
			return err
		}},
		{"dispute_receipt", func(svc *RequestService, id int64) error {
			_, err := svc.DisputeReceipt(ctx, id)
			return err
		}},
		{"cancel", func(svc *RequestService, id int64) error {
			_, err := svc.Cancel(ctx, id)
			return err
		}},
	}

	// Для каждой операции пробуем все статусы вне ее allowed-набора
	allowed := map[string][]domain.RequestStatus{
		"approve":         domain.AllowedSources(domain.StatusApproved),
		"reject":          domain.AllowedSources(domain.StatusRejected),
		"mark_sent":       domain.AllowedSources(domain.StatusSent),
		"confirm_receipt": domain.AllowedSources(domain.StatusConfirmed),
		"dispute_receipt": domain.AllowedSources(domain.StatusDisputed),
		"cancel":          domain.AllowedSources(domain.StatusCancelled),
	}

	for _, o := range ops {
		for _, status := range domain.AllStatuses {
			legal := false
			for _, s := range allowed[o.name] {
				if s == status {
					legal = true
					break
				}
			}
			if legal {
				continue
			}

			t.Run(o.name+" from "+string(status), func(t *testing.T) {
				repo := newFakeRepo()
				svc, _ := newTestService(t, repo)
				id := repo.seed(1, 1000, status, time.Now())

				err := o.call(svc, id)
				assert.ErrorIs(t, err, domain.ErrDeclined)

				// Статус в хранилище не изменился
				stored, getErr := repo.GetByID(ctx, id)
				require.NoError(t, getErr)
				assert.Equal(t, status, stored.Status)
			})
		}
	}
}

func TestTransitionOnMissingRequestIsDeclined(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())

	_, err := svc.Approve(context.Background(), 777, time.Now(), nil)
	assert.ErrorIs(t, err, domain.ErrDeclined)
}

func TestConcurrentApproveExactlyOneWins(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	req, err := svc.Create(ctx, 1, 1000, nil)
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	results := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Approve(ctx, req.ID, time.Now(), nil)
		}(i)
	}
	wg.Wait()

	wins, declines := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, domain.ErrDeclined)
			declines++
		}
	}
	assert.Equal(t, 1, wins, "exactly one approve must succeed")
	assert.Equal(t, racers-1, declines)

	stored, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
}

func TestMonthlyStatsOverlappingBuckets(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)

	msk := svc.Location()
	created := time.Date(2024, 6, 10, 12, 0, 0, 0, msk)

	repo.seed(1, 500, domain.StatusPending, created)
	repo.seed(1, 1000, domain.StatusApproved, created)
	repo.seed(1, 2000, domain.StatusSent, created)
	repo.seed(1, 3000, domain.StatusConfirmed, created)
	repo.seed(1, 4000, domain.StatusRejected, created)

	stats, err := svc.MonthlyStats(context.Background(), 1, 2024, 6)
	require.NoError(t, err)

	assert.Equal(t, int64(10500), stats.Requested)
	assert.Equal(t, int64(6000), stats.Approved) // approved + sent + confirmed
	assert.Equal(t, int64(3000), stats.Confirmed)
	assert.Equal(t, int64(4000), stats.Rejected)
}

func TestMonthlyStatsIgnoresOtherMonthsAndRequesters(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	msk := svc.Location()

	repo.seed(1, 1000, domain.StatusConfirmed, time.Date(2024, 6, 10, 12, 0, 0, 0, msk))
	repo.seed(1, 2000, domain.StatusConfirmed, time.Date(2024, 5, 31, 23, 59, 0, 0, msk)) // прошлый месяц
	repo.seed(1, 4000, domain.StatusConfirmed, time.Date(2024, 7, 1, 0, 0, 0, 0, msk))    // следующий
	repo.seed(2, 8000, domain.StatusConfirmed, time.Date(2024, 6, 10, 12, 0, 0, 0, msk))  // чужая

	stats, err := svc.MonthlyStats(context.Background(), 1, 2024, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stats.Requested)
	assert.Equal(t, int64(1000), stats.Confirmed)
}

func TestListForMonthTwoBucketOrder(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	msk := svc.Location()

	day := func(d int) time.Time { return time.Date(2024, 6, d, 12, 0, 0, 0, msk) }

	// Перемешанный порядок создания: финальные и активные чередуются
	idRejected := repo.seed(1, 100, domain.StatusRejected, day(5))
	idPending := repo.seed(1, 200, domain.StatusPending, day(3))
	idConfirmed := repo.seed(1, 300, domain.StatusConfirmed, day(10))
	idSent := repo.seed(1, 400, domain.StatusSent, day(8))
	idCancelled := repo.seed(1, 500, domain.StatusCancelled, day(1))

	list, err := svc.ListForMonth(context.Background(), 1, 2024, 6)
	require.NoError(t, err)
	require.Len(t, list, 5)

	got := make([]int64, 0, len(list))
	for _, r := range list {
		got = append(got, r.ID)
	}

	// Активные (новые сверху), затем финальные (новые сверху)
	assert.Equal(t, []int64{idSent, idPending, idConfirmed, idRejected, idCancelled}, got)
}

func TestListActiveFiltersAndOrders(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	msk := svc.Location()

	day := func(d int) time.Time { return time.Date(2024, 6, d, 12, 0, 0, 0, msk) }

	idOld := repo.seed(1, 100, domain.StatusPending, day(1))
	idNew := repo.seed(1, 200, domain.StatusDisputed, day(20))
	repo.seed(1, 300, domain.StatusConfirmed, day(25)) // финальная — не в списке
	idOther := repo.seed(2, 400, domain.StatusSent, day(10))

	all, err := svc.ListActive(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, idNew, all[0].ID)
	assert.Equal(t, idOther, all[1].ID)
	assert.Equal(t, idOld, all[2].ID)

	requester := int64(1)
	mine, err := svc.ListActive(context.Background(), &requester)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, []int64{idNew, idOld}, []int64{mine[0].ID, mine[1].ID})
}

func TestRemind(t *testing.T) {
	repo := newFakeRepo()
	svc, notifier := newTestService(t, repo)
	ctx := context.Background()

	idPending := repo.seed(1, 100, domain.StatusPending, time.Now())
	idSent := repo.seed(1, 200, domain.StatusSent, time.Now())

	require.NoError(t, svc.Remind(ctx, idPending))
	assert.Equal(t, []int64{idPending}, notifier.reminders)

	// sent — напоминание неуместно, это ход запросившего
	assert.ErrorIs(t, svc.Remind(ctx, idSent), domain.ErrDeclined)
	// Несуществующая заявка — тот же отказ
	assert.ErrorIs(t, svc.Remind(ctx, 999), domain.ErrDeclined)
}

func TestUpdateMessageRefs(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	id := repo.seed(1, 100, domain.StatusPending, time.Now())

	msgID := int64(42)
	require.NoError(t, svc.UpdateMessageRefs(ctx, id, &msgID, nil))

	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.RequesterMsgID)
	assert.Equal(t, int64(42), *stored.RequesterMsgID)
	assert.Nil(t, stored.ApproverMsgID)

	// Отсутствующая заявка — тихий no-op
	assert.NoError(t, svc.UpdateMessageRefs(ctx, 999, &msgID, nil))
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())

	_, err := svc.Get(context.Background(), 123)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
