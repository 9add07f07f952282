package investigation

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "investigator/internal/domain/investigation"
	"investigator/internal/ports"
)

func TestEnqueueDeduplicates(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	steps := []struct {
		repo  string
		issue int
		reinv bool
		want  domain.EnqueueStatus
	}{
		{repo: "acme/widgets", issue: 1, want: domain.EnqueueQueued},
		{repo: "acme/widgets", issue: 1, want: domain.EnqueueAlreadyQueued},
		{repo: "acme/widgets", issue: 1, reinv: true, want: domain.EnqueueAlreadyQueued},
		{repo: "acme/widgets", issue: 2, reinv: true, want: domain.EnqueueQueued},
		{repo: "acme/tools", issue: 1, want: domain.EnqueueQueued},
	}
	for _, step := range steps {
		got, err := env.svc.Enqueue(ctx, step.repo, step.issue, step.reinv)
		if err != nil {
			t.Fatalf("Enqueue(%s, %d) error = %v", step.repo, step.issue, err)
		}
		if got.Status != step.want {
			t.Fatalf("Enqueue(%s, %d, %v) = %q, want %q", step.repo, step.issue, step.reinv, got.Status, step.want)
		}
	}

	q := env.queue(t)
	if len(q) != 3 {
		t.Fatalf("queue length = %d, want 3", len(q))
	}
	if !q[1].IsReinvestigation || q[0].IsReinvestigation {
		t.Fatalf("queue flags = %+v", q)
	}
	if !q[0].EnqueuedAt.Equal(testNow) {
		t.Fatalf("enqueuedAt = %s", q[0].EnqueuedAt)
	}
	if len(env.notifier.notices) != 3 {
		t.Fatalf("notices = %d, want 3", len(env.notifier.notices))
	}
}

func TestEnqueueRespectsLedger(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	if err := env.svc.RecordInvestigation(ctx, "acme/widgets", 7, testNow); err != nil {
		t.Fatalf("RecordInvestigation() error = %v", err)
	}

	got, err := env.svc.Enqueue(ctx, "acme/widgets", 7, false)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if got.Status != domain.EnqueueAlreadyInvestigated {
		t.Fatalf("Enqueue() = %q, want already_investigated", got.Status)
	}
	if len(env.queue(t)) != 0 {
		t.Fatalf("queue must stay empty")
	}

	got, err = env.svc.Enqueue(ctx, "acme/widgets", 7, true)
	if err != nil {
		t.Fatalf("Enqueue(reinvestigation) error = %v", err)
	}
	if got.Status != domain.EnqueueQueued {
		t.Fatalf("Enqueue(reinvestigation) = %q, want queued", got.Status)
	}
}

func TestEnqueueAllDeduplicatesWithinBatch(t *testing.T) {
	env := setupService(t)

	results, err := env.svc.EnqueueAll(context.Background(), []EnqueueRequest{
		{Repository: "acme/widgets", IssueNumber: 1},
		{Repository: " acme/widgets ", IssueNumber: 1, IsReinvestigation: true},
		{Repository: "acme/widgets", IssueNumber: 2},
	})
	if err != nil {
		t.Fatalf("EnqueueAll() error = %v", err)
	}
	want := []domain.EnqueueStatus{domain.EnqueueQueued, domain.EnqueueAlreadyQueued, domain.EnqueueQueued}
	for i, result := range results {
		if result.Status != want[i] {
			t.Fatalf("result[%d] = %q, want %q", i, result.Status, want[i])
		}
	}
	if len(env.queue(t)) != 2 {
		t.Fatalf("queue length = %d, want 2", len(env.queue(t)))
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	if _, err := env.svc.Enqueue(ctx, "", 1, false); !errors.Is(err, domain.ErrRepositoryRequired) {
		t.Fatalf("Enqueue(empty repo) error = %v", err)
	}
	if _, err := env.svc.Enqueue(ctx, "widgets", 1, false); !errors.Is(err, domain.ErrInvalidRepository) {
		t.Fatalf("Enqueue(bad repo) error = %v", err)
	}
	if _, err := env.svc.Enqueue(ctx, "acme/widgets", 0, false); !errors.Is(err, domain.ErrInvalidIssueNumber) {
		t.Fatalf("Enqueue(issue 0) error = %v", err)
	}
	if env.document(t, ports.DocumentQueue).Found {
		t.Fatalf("invalid input must not write the queue")
	}
}

func TestEnqueueConcurrentCallersQueueOnce(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	const callers = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		queued int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := env.svc.Enqueue(ctx, "acme/widgets", 42, i%2 == 0)
			if err != nil {
				t.Errorf("Enqueue() error = %v", err)
				return
			}
			if got.Added() {
				mu.Lock()
				queued++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if queued != 1 {
		t.Fatalf("queued results = %d, want 1", queued)
	}
	if len(env.queue(t)) != 1 {
		t.Fatalf("queue length = %d, want 1", len(env.queue(t)))
	}
}

func TestPopIsFIFO(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	for _, issue := range []int{3, 1, 2} {
		if _, err := env.svc.Enqueue(ctx, "acme/widgets", issue, false); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", issue, err)
		}
	}

	for _, want := range []int{3, 1, 2} {
		item, ok, err := env.svc.Pop(ctx)
		if err != nil || !ok {
			t.Fatalf("Pop() = %v, %v", ok, err)
		}
		if item.IssueNumber != want {
			t.Fatalf("Pop() issue = %d, want %d", item.IssueNumber, want)
		}
	}

	if _, ok, err := env.svc.Pop(ctx); err != nil || ok {
		t.Fatalf("Pop() on empty queue = %v, %v", ok, err)
	}
}

func TestCorruptQueueReadsAsEmpty(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.putDocument(t, ports.DocumentQueue, "{not json", 0)

	queued, err := env.svc.IsQueued(ctx, "acme/widgets", 1)
	if err != nil || queued {
		t.Fatalf("IsQueued() = %v, %v", queued, err)
	}

	got, err := env.svc.Enqueue(ctx, "acme/widgets", 1, false)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if got.Status != domain.EnqueueQueued {
		t.Fatalf("Enqueue() = %q", got.Status)
	}
	if n, _ := env.svc.QueueLength(ctx); n != 1 {
		t.Fatalf("QueueLength() = %d, want 1", n)
	}
}

func TestEnqueueSurvivesNotifierFailure(t *testing.T) {
	env := setupService(t)
	env.notifier.err = errors.New("nats down")

	got, err := env.svc.Enqueue(context.Background(), "acme/widgets", 1, false)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !got.Added() {
		t.Fatalf("Enqueue() = %q", got.Status)
	}
}
