package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/events"
	"github.com/vietguard/vietguard-api/internal/notify"
	"github.com/vietguard/vietguard-api/internal/platform/memory"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/store"
)

var errUnavailable = errors.New("scanner unavailable")

// fakeScanner answers status polls from a queue per external id. When the
// queue holds one entry it is repeated.
type fakeScanner struct {
	mu          sync.Mutex
	statuses    map[string][]string
	statusErrs  map[string][]error
	artifactErr error
	block       chan struct{}
	panicOn     string

	statusCalls   int
	artifactCalls int
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{
		statuses:   make(map[string][]string),
		statusErrs: make(map[string][]error),
	}
}

func (f *fakeScanner) script(externalID string, statuses []string, errs []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[externalID] = statuses
	f.statusErrs[externalID] = errs
}

func (f *fakeScanner) GetStatus(ctx context.Context, externalID string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	if externalID == f.panicOn {
		panic("scanner exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++

	statuses, errs := f.statuses[externalID], f.statusErrs[externalID]
	var (
		status string
		err    error
	)
	if len(statuses) > 0 {
		status = statuses[0]
		if len(statuses) > 1 {
			f.statuses[externalID] = statuses[1:]
		}
	}
	if len(errs) > 0 {
		err = errs[0]
		f.statusErrs[externalID] = errs[1:]
	}
	return status, err
}

func (f *fakeScanner) GetArtifact(ctx context.Context, externalID string) (*scanapi.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifactCalls++
	if f.artifactErr != nil {
		return nil, f.artifactErr
	}
	return scanapi.NewArtifact(externalID, []byte("%PDF-1.7 report")), nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *fakeDispatcher) Send(ctx context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDispatcher) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.sent...)
}

type fakeLinks struct{}

func (fakeLinks) IssueLink(ctx context.Context, taskID uuid.UUID) (string, time.Time, error) {
	return "https://vg.example.com/api/service/app-total-go/download/" + taskID.String(),
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

// recordingHandler collects transition events.
type recordingHandler struct {
	mu     sync.Mutex
	events []*events.TaskTransitionEvent
}

func (h *recordingHandler) HandleEvent(ctx context.Context, e *events.TaskTransitionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

// barrierTasks makes every caller of ListPollable wait until n callers
// have listed, so concurrent ticks observe the same tasks.
type barrierTasks struct {
	*memory.TaskStore
	wg *sync.WaitGroup
}

func (b barrierTasks) ListPollable(ctx context.Context) ([]domain.ScanTask, error) {
	tasks, err := b.TaskStore.ListPollable(ctx)
	b.wg.Done()
	b.wg.Wait()
	return tasks, err
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		Enabled:     true,
		Interval:    time.Second,
		Concurrency: 4,
		MailTimeout: time.Second,
	}
}

func seedInProgress(t *testing.T, s *memory.Store, email, externalID string) *domain.ScanTask {
	t.Helper()
	ctx := context.Background()

	m, err := s.Members().GetByName(ctx, email)
	if errors.Is(err, store.ErrMemberNotFound) {
		m, err = domain.NewMember(email)
		require.NoError(t, err)
		require.NoError(t, s.Members().Create(ctx, m))
	} else {
		require.NoError(t, err)
	}

	task, err := domain.NewScanTask(m.ID, "app.apk", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, s.Tasks().Create(ctx, task))
	applied, err := s.Tasks().Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusInProgress,
		store.TaskUpdate{ExternalID: externalID})
	require.NoError(t, err)
	require.True(t, applied)
	return task
}

func getTask(t *testing.T, s *memory.Store, id uuid.UUID) *domain.ScanTask {
	t.Helper()
	task, err := s.Tasks().GetByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func TestTick_NormalFlow(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	task := seedInProgress(t, s, "owner@example.com", "20343")

	scanner := newFakeScanner()
	scanner.script("20343", []string{"Success"}, nil)
	mailer := &fakeDispatcher{}
	handler := &recordingHandler{}
	emitter := events.NewInMemoryEventEmitter(discard)
	emitter.RegisterHandler(handler)

	r := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard,
		WithLinkIssuer(fakeLinks{}), WithEmitter(emitter))

	sum, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Polled: 1, Succeeded: 1, Notified: 1}, sum)

	got := getTask(t, s, task.ID)
	assert.Equal(t, domain.TaskStatusSucceeded, got.Status)
	assert.Equal(t, "Success", got.RemoteStatus)
	assert.Equal(t, "analysis-result-20343.pdf", got.ArtifactName)
	assert.Equal(t, "application/pdf", got.ArtifactType)

	msgs := mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "owner@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "20343")
	assert.Contains(t, msgs[0].HTMLBody, "/download/"+task.ID.String())
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "analysis-result-20343.pdf", msgs[0].Attachments[0].FileName)
	assert.Equal(t, "application/pdf", msgs[0].Attachments[0].ContentType)

	require.Len(t, handler.events, 1)
	assert.Equal(t, task.ID, handler.events[0].TaskID)
	assert.Equal(t, domain.TaskStatusSucceeded, handler.events[0].To)
}

func TestTick_SucceededTaskIsNotPolledAgain(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedInProgress(t, s, "owner@example.com", "1")

	scanner := newFakeScanner()
	scanner.script("1", []string{"completed"}, nil)
	mailer := &fakeDispatcher{}
	r := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard)

	for i := 0; i < 3; i++ {
		_, err := r.Tick(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, mailer.messages(), 1)
	assert.Equal(t, 1, scanner.statusCalls)
}

func TestTick_ConcurrentTicksDispatchAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	const taskCount = 5
	scanner := newFakeScanner()
	for i := 0; i < taskCount; i++ {
		id := uuid.NewString()
		seedInProgress(t, s, "owner@example.com", id)
		scanner.script(id, []string{"Success"}, nil)
	}
	mailer := &fakeDispatcher{}

	// Two reconcilers stand in for two replicas sharing one store.
	const replicas = 2
	var barrier sync.WaitGroup
	barrier.Add(replicas)
	tasks := barrierTasks{TaskStore: s.Tasks(), wg: &barrier}

	var wg sync.WaitGroup
	sums := make([]Summary, replicas)
	for i := 0; i < replicas; i++ {
		r := NewReconciler(tasks, scanner, mailer, testConfig(), discard)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sum, err := r.Tick(ctx)
			assert.NoError(t, err)
			sums[i] = sum
		}(i)
	}
	wg.Wait()

	assert.Len(t, mailer.messages(), taskCount)
	assert.Equal(t, taskCount, sums[0].Succeeded+sums[1].Succeeded)
	assert.Equal(t, taskCount, scanner.artifactCalls)
}

func TestTick_ArtifactFailureDispatchesNothing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	task := seedInProgress(t, s, "owner@example.com", "77")

	scanner := newFakeScanner()
	scanner.script("77", []string{"Success"}, nil)
	scanner.artifactErr = &scanapi.APIError{StatusCode: 500}
	mailer := &fakeDispatcher{}

	var barrier sync.WaitGroup
	barrier.Add(2)
	tasks := barrierTasks{TaskStore: s.Tasks(), wg: &barrier}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		r := NewReconciler(tasks, scanner, mailer, testConfig(), discard)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Tick(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Empty(t, mailer.messages())
	assert.Equal(t, 1, scanner.artifactCalls)
	assert.Equal(t, domain.TaskStatusSucceeded, getTask(t, s, task.ID).Status)

	// A later tick does not retry the delivery.
	r := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard)
	_, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, mailer.messages())
}

func TestTick_TransientFailureThenRecovery(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	task := seedInProgress(t, s, "owner@example.com", "5")

	scanner := newFakeScanner()
	scanner.script("5", []string{"", "Success"}, []error{errUnavailable})
	mailer := &fakeDispatcher{}
	r := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard)

	sum, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errors)
	got := getTask(t, s, task.ID)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	assert.Equal(t, 1, got.PollFailures)
	assert.Empty(t, mailer.messages())

	sum, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, domain.TaskStatusSucceeded, getTask(t, s, task.ID).Status)
	assert.Len(t, mailer.messages(), 1)
}

func TestTick_FailsAfterMaxPollFailures(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	task := seedInProgress(t, s, "owner@example.com", "6")

	scanner := newFakeScanner()
	scanner.script("6", nil, []error{errUnavailable, errUnavailable})
	mailer := &fakeDispatcher{}
	cfg := testConfig()
	cfg.MaxPollFailures = 2
	cfg.NotifyOnFailure = true
	r := NewReconciler(s.Tasks(), scanner, mailer, cfg, discard)

	_, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, getTask(t, s, task.ID).Status)

	sum, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, domain.TaskStatusFailed, getTask(t, s, task.ID).Status)

	msgs := mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "VietGuardScan - Quét không thành công (Task ID: 6)", msgs[0].Subject)
}

func TestTick_RemoteFailure(t *testing.T) {
	tests := []struct {
		name   string
		notify bool
		want   int
	}{
		{"without notification", false, 0},
		{"with notification", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			task := seedInProgress(t, s, "owner@example.com", "8")
			scanner := newFakeScanner()
			scanner.script("8", []string{"Cancelled"}, nil)
			mailer := &fakeDispatcher{}
			cfg := testConfig()
			cfg.NotifyOnFailure = tt.notify

			sum, err := NewReconciler(s.Tasks(), scanner, mailer, cfg, discard).Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, sum.Failed)
			assert.Equal(t, domain.TaskStatusFailed, getTask(t, s, task.ID).Status)
			assert.Len(t, mailer.messages(), tt.want)
			assert.Zero(t, scanner.artifactCalls)
		})
	}
}

func TestTick_RunningStatusIsRecorded(t *testing.T) {
	s := memory.New()
	task := seedInProgress(t, s, "owner@example.com", "9")
	scanner := newFakeScanner()
	scanner.script("9", []string{"Analyzing"}, nil)
	mailer := &fakeDispatcher{}

	_, err := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard).Tick(context.Background())
	require.NoError(t, err)

	got := getTask(t, s, task.ID)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	assert.Equal(t, "Analyzing", got.RemoteStatus)
	assert.Empty(t, mailer.messages())
}

func TestTick_MailFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	task := seedInProgress(t, s, "owner@example.com", "10")
	scanner := newFakeScanner()
	scanner.script("10", []string{"Success"}, nil)
	mailer := &fakeDispatcher{err: errors.New("relay down")}
	r := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard)

	sum, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Zero(t, sum.Notified)
	assert.Equal(t, domain.TaskStatusSucceeded, getTask(t, s, task.ID).Status)

	mailer.err = nil
	_, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, mailer.messages())
}

func TestTick_SkipsWhileRunning(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedInProgress(t, s, "owner@example.com", "11")
	scanner := newFakeScanner()
	scanner.script("11", []string{"Running"}, nil)
	scanner.block = make(chan struct{})
	r := NewReconciler(s.Tasks(), scanner, &fakeDispatcher{}, testConfig(), discard)

	done := make(chan Summary)
	go func() {
		sum, _ := r.Tick(ctx)
		done <- sum
	}()
	require.Eventually(t, func() bool { return r.running.Load() }, time.Second, 5*time.Millisecond)

	sum, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Skipped)

	close(scanner.block)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Polled)
}

func TestTick_RecoversFromPanics(t *testing.T) {
	s := memory.New()
	seedInProgress(t, s, "owner@example.com", "boom")
	other := seedInProgress(t, s, "owner@example.com", "12")
	scanner := newFakeScanner()
	scanner.panicOn = "boom"
	scanner.script("12", []string{"Success"}, nil)
	mailer := &fakeDispatcher{}

	sum, err := NewReconciler(s.Tasks(), scanner, mailer, testConfig(), discard).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, domain.TaskStatusSucceeded, getTask(t, s, other.ID).Status)
}

func TestTick_CancelledContextStartsNothing(t *testing.T) {
	s := memory.New()
	seedInProgress(t, s, "owner@example.com", "13")
	scanner := newFakeScanner()
	scanner.script("13", []string{"Success"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := NewReconciler(s.Tasks(), scanner, &fakeDispatcher{}, testConfig(), discard).Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Polled)
	assert.Zero(t, scanner.statusCalls)
}

func TestNewReconciler_RequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() {
		NewReconciler(nil, newFakeScanner(), &fakeDispatcher{}, testConfig(), discard)
	})
}
