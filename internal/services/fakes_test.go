package services

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coinwork/backend/internal/ledger"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/notify"
)

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error)       { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error                 { return nil }
func (noopTx) Rollback(context.Context) error               { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// recordingTx remembers how the transaction ended.
type recordingTx struct {
	noopTx
	committed  bool
	rolledBack bool
}

func (tx *recordingTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

// Rollback after Commit is a no-op, as in pgx.
func (tx *recordingTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type txPool struct {
	mu  sync.Mutex
	txs []*recordingTx
}

func (p *txPool) Begin(context.Context) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := &recordingTx{}
	p.txs = append(p.txs, tx)
	return tx, nil
}

func (p *txPool) last() *recordingTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.txs) == 0 {
		return nil
	}
	return p.txs[len(p.txs)-1]
}

// --- users ---

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUsers) add(role models.Role, balance int) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &models.User{ID: id, Role: role, CoinBalance: balance}
	return id
}

func (f *fakeUsers) balance(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].CoinBalance
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.GetByIDForUpdate(ctx, nil, id)
}

func (f *fakeUsers) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) DeductCoins(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.CoinBalance < amount {
		return 0, pgx.ErrNoRows
	}
	u.CoinBalance -= amount
	return u.CoinBalance, nil
}

func (f *fakeUsers) AddCoins(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	u.CoinBalance += amount
	return u.CoinBalance, nil
}

type fakeEntries struct {
	mu      sync.Mutex
	entries []*models.CoinLedgerEntry
}

func (f *fakeEntries) CreateTx(_ context.Context, _ pgx.Tx, e *models.CoinLedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeEntries) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.CoinLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.CoinLedgerEntry{}
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- tasks ---

type fakeTasks struct {
	mu          sync.Mutex
	seq         int64
	tasks       map[uuid.UUID]*models.Task
	createErr   error
	createCalls int
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[uuid.UUID]*models.Task)}
}

func (f *fakeTasks) CreateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	t.Seq = f.seq
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTasks) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return f.GetByIDForUpdate(ctx, nil, id)
}

func (f *fakeTasks) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) DecrementRequiredWorkers(_ context.Context, _ pgx.Tx, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	if t.RequiredWorkers > 0 {
		t.RequiredWorkers--
	}
	return t.RequiredWorkers, nil
}

func (f *fakeTasks) UpdateDetails(_ context.Context, _ pgx.Tx, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tasks[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Title = t.Title
	stored.Detail = t.Detail
	stored.SubmissionInfo = t.SubmissionInfo
	stored.UpdatedAt = time.Now()
	t.UpdatedAt = stored.UpdatedAt
	return nil
}

func (f *fakeTasks) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeTasks) snapshot(keep func(*models.Task) bool) []*models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Task{}
	for _, t := range f.tasks {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (f *fakeTasks) List(context.Context) ([]*models.Task, error) {
	return f.snapshot(func(*models.Task) bool { return true }), nil
}

func (f *fakeTasks) ListByBuyerID(_ context.Context, buyerID uuid.UUID) ([]*models.Task, error) {
	return f.snapshot(func(t *models.Task) bool { return t.BuyerID == buyerID }), nil
}

func (f *fakeTasks) OpenTasks(context.Context) iter.Seq2[*models.Task, error] {
	return func(yield func(*models.Task, error) bool) {
		open := f.snapshot(func(t *models.Task) bool { return t.RequiredWorkers > 0 })
		sort.SliceStable(open, func(i, j int) bool {
			if !open[i].CompletionDate.Equal(open[j].CompletionDate) {
				return open[i].CompletionDate.After(open[j].CompletionDate)
			}
			return open[i].Seq < open[j].Seq
		})
		for _, t := range open {
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (f *fakeTasks) slots(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id].RequiredWorkers
}

// --- submissions ---

type fakeSubmissions struct {
	mu           sync.Mutex
	subs         map[uuid.UUID]*models.Submission
	setStatusErr error
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{subs: make(map[uuid.UUID]*models.Submission)}
}

func (f *fakeSubmissions) CreateTx(_ context.Context, _ pgx.Tx, s *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.CreatedAt = time.Now()
	cp := *s
	f.subs[s.ID] = &cp
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return f.GetByIDForUpdate(ctx, nil, id)
}

func (f *fakeSubmissions) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) SetStatus(_ context.Context, _ pgx.Tx, s *models.Submission, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	now := time.Now()
	stored := f.subs[s.ID]
	stored.Status = status
	stored.DecidedAt = &now
	s.Status = status
	s.DecidedAt = &now
	return nil
}

func (f *fakeSubmissions) RejectPendingForTask(_ context.Context, _ pgx.Tx, taskID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.subs {
		if s.TaskID == taskID && s.Status == models.SubmissionPending {
			s.Status = models.SubmissionRejected
			n++
		}
	}
	return n, nil
}

func (f *fakeSubmissions) filter(keep func(*models.Submission) bool) []*models.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Submission{}
	for _, s := range f.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeSubmissions) ListByWorkerID(_ context.Context, workerID uuid.UUID) ([]*models.Submission, error) {
	return f.filter(func(s *models.Submission) bool { return s.WorkerID == workerID }), nil
}

func (f *fakeSubmissions) ListByBuyerID(_ context.Context, buyerID uuid.UUID, status string) ([]*models.Submission, error) {
	return f.filter(func(s *models.Submission) bool {
		return s.BuyerID == buyerID && (status == "" || s.Status == status)
	}), nil
}

func (f *fakeSubmissions) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id].Status
}

// --- withdrawals ---

type fakeWithdrawals struct {
	mu        sync.Mutex
	list      []*models.Withdrawal
	createErr error
}

func (f *fakeWithdrawals) CreateTx(_ context.Context, _ pgx.Tx, w *models.Withdrawal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	w.CreatedAt = time.Now()
	cp := *w
	f.list = append(f.list, &cp)
	return nil
}

func (f *fakeWithdrawals) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.list {
		if w.ID == id {
			cp := *w
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeWithdrawals) Decide(_ context.Context, _ pgx.Tx, w *models.Withdrawal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	w.DecidedAt = &now
	for i, stored := range f.list {
		if stored.ID == w.ID {
			cp := *w
			f.list[i] = &cp
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeWithdrawals) ListByWorkerID(_ context.Context, workerID uuid.UUID) ([]*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Withdrawal{}
	for _, w := range f.list {
		if w.WorkerID == workerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWithdrawals) ListByStatus(_ context.Context, status string) ([]*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Withdrawal{}
	for _, w := range f.list {
		if status == "" || w.Status == status {
			out = append(out, w)
		}
	}
	return out, nil
}

// --- payments ---

type fakePayments struct {
	mu   sync.Mutex
	list []*models.Payment
}

func (f *fakePayments) CreateTx(_ context.Context, _ pgx.Tx, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.list = append(f.list, &cp)
	return nil
}

func (f *fakePayments) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Payment{}
	for _, p := range f.list {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- events ---

type recordedEvents struct {
	mu     sync.Mutex
	events []notify.EventArgs
}

func (r *recordedEvents) insert(_ context.Context, _ pgx.Tx, args notify.EventArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, args)
	return nil
}

func (r *recordedEvents) all() []notify.EventArgs {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventArgs, len(r.events))
	copy(out, r.events)
	return out
}

// --- wiring ---

type testEnv struct {
	users       *fakeUsers
	entries     *fakeEntries
	tasks       *fakeTasks
	submissions *fakeSubmissions
	withdrawals *fakeWithdrawals
	payments    *fakePayments
	events      *recordedEvents
	pool        *txPool

	taskSvc       *TaskService
	submissionSvc *SubmissionService
	withdrawalSvc *WithdrawalService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:       newFakeUsers(),
		entries:     &fakeEntries{},
		tasks:       newFakeTasks(),
		submissions: newFakeSubmissions(),
		withdrawals: &fakeWithdrawals{},
		payments:    &fakePayments{},
		events:      &recordedEvents{},
		pool:        &txPool{},
	}
	l := ledger.New(env.users, env.entries)
	env.taskSvc = NewTaskService(env.pool, env.tasks, env.submissions, l, nil)
	env.submissionSvc = NewSubmissionService(env.pool, env.tasks, env.submissions, l, env.events.insert, nil)
	env.withdrawalSvc = NewWithdrawalService(env.pool, env.withdrawals, l, env.events.insert, nil)
	return env
}

func (env *testEnv) ledger() *ledger.Ledger {
	return ledger.New(env.users, env.entries)
}

func taskInput(workers, pay int) CreateTaskInput {
	return CreateTaskInput{
		Title:           "Watch and review",
		RequiredWorkers: workers,
		PayableAmount:   pay,
		CompletionDate:  time.Now().Add(72 * time.Hour),
	}
}
