package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/internal/workflow"
)

func seedTask(t *testing.T, db store.TaskStore, typ domain.TaskType, priority int, created time.Time, topic string) *domain.WorkflowTask {
	t.Helper()
	task, err := domain.NewTask(string(typ)+": "+topic, typ, priority, domain.TaskInput{Topic: topic, Tags: []string{}}, string(typ))
	require.NoError(t, err)
	task.CreatedAt, task.UpdatedAt = created, created
	_, err = db.Create(context.Background(), task)
	require.NoError(t, err)
	return task
}

func TestDrainer_PriorityOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// 12 aggregate tasks: priorities cycle 1..4, arrival order by index.
	for i := 0; i < 12; i++ {
		seedTask(t, db, domain.TypeAggregate, i%4+1, base.Add(time.Duration(i)*time.Second), string(rune('a'+i)))
	}
	agg := &stubCapability{name: "aggregate", taskType: domain.TypeAggregate,
		result: domain.Succeeded(domain.AggregateResult{ResearchID: "n-1", ItemCount: 3})}

	d := workflow.NewDrainer(db, registry(agg), commonOpts(newClock(), nil)...)
	n, err := d.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.PendingBatchSize, n)

	var got []string
	for _, in := range agg.inputs() {
		got = append(got, in.Topic)
	}
	// priority 4: d h l, 3: c g k, 2: b f j, 1: a (first arrival only)
	assert.Equal(t, []string{"d", "h", "l", "c", "g", "k", "b", "f", "j", "a"}, got)

	pending, err := db.Count(ctx, store.TaskFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
	completed, err := db.Find(ctx, store.TaskFilter{Status: domain.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 10)
	for _, task := range completed {
		require.NotNil(t, task.CompletedAt)
		assert.Equal(t, "n-1", task.Output.ArtifactID())
	}
}

func TestDrainer_SkipsUnregisteredAndRecordsFailure(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()
	review := seedTask(t, db, domain.TypeReview, 9, now, "review me")
	publish := seedTask(t, db, domain.TypePublish, 5, now, "publish me")

	pub := &stubCapability{name: "publish", taskType: domain.TypePublish, result: domain.Failed("webhook returned status 502")}
	sink := &recordingSink{}
	d := workflow.NewDrainer(db, registry(pub), commonOpts(newClock(), sink)...)

	n, err := d.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := db.GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	got, err = db.GetByID(ctx, publish.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "webhook returned status 502", got.LastError())
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, []string{"pending>running", "running>failed"}, sink.transitions(publish.ID))

	// Nothing new to drain for the registered capability on the next call.
	n, err = d.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pub.inputs(), 1)
}

func TestDrainer_TaskLease(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()
	a := seedTask(t, db, domain.TypeAggregate, 5, now, "a")
	b := seedTask(t, db, domain.TypeAggregate, 5, now.Add(time.Second), "b")

	agg := &stubCapability{name: "aggregate", taskType: domain.TypeAggregate,
		result: domain.Succeeded(domain.AggregateResult{ResearchID: "n"})}
	locker := &stubLocker{deny: map[string]bool{"task:" + a.ID: true}}
	opts := append(commonOpts(newClock(), nil), workflow.WithTaskLease(locker))
	d := workflow.NewDrainer(db, registry(agg), opts...)

	n, err := d.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, agg.inputs(), 1)
	assert.Equal(t, "b", agg.inputs()[0].Topic)
	assert.Equal(t, []string{"task:" + b.ID}, locker.released)

	got, err := db.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestDrainer_StaleSnapshotSkipped(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()
	first := seedTask(t, db, domain.TypeAggregate, 9, now, "first")
	second := seedTask(t, db, domain.TypeAggregate, 1, now, "second")

	clock := newClock()
	admin := workflow.NewAdmin(db, commonOpts(clock, nil)...)
	agg := &stubCapability{name: "aggregate", taskType: domain.TypeAggregate,
		result: domain.Succeeded(domain.AggregateResult{ResearchID: "n"})}
	agg.onExecute = func(ctx context.Context) {
		// Cancel the lower-priority task while the first one runs.
		if len(agg.inputs()) == 1 {
			_, err := admin.Cancel(ctx, second.ID)
			require.NoError(t, err)
		}
	}

	n, err := workflow.NewDrainer(db, registry(agg), commonOpts(clock, nil)...).ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, agg.inputs(), 1)

	got, err := db.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	got, err = db.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestDrainer_TaskCreatedMidDrainWaitsForNextCall(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()
	seedTask(t, db, domain.TypeAggregate, 5, now, "a")
	seedTask(t, db, domain.TypeAggregate, 4, now, "b")

	clock := newClock()
	admin := workflow.NewAdmin(db, commonOpts(clock, nil)...)
	agg := &stubCapability{name: "aggregate", taskType: domain.TypeAggregate,
		result: domain.Succeeded(domain.AggregateResult{ResearchID: "n"})}
	var late *domain.WorkflowTask
	agg.onExecute = func(ctx context.Context) {
		if late == nil {
			var err error
			late, err = admin.Submit(ctx, "", domain.TypeAggregate, domain.MaxPriority, domain.TaskInput{Topic: "late", Tags: []string{}})
			require.NoError(t, err)
		}
	}

	d := workflow.NewDrainer(db, registry(agg), commonOpts(clock, nil)...)
	n, err := d.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NotNil(t, late)

	got, err := db.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	var topics []string
	for _, in := range agg.inputs() {
		topics = append(topics, in.Topic)
	}
	assert.Equal(t, []string{"a", "b"}, topics)

	n, err = d.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = db.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}
