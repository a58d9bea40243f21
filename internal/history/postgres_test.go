package history_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/studylab/leitner/internal/history"
)

func openPostgresLogs(t *testing.T) *history.PostgresLogs {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("history_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)

	logs, err := history.NewPostgresLogs(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresLogs() error = %v", err)
	}
	return logs
}

func TestPostgresLogs(t *testing.T) {
	logs := openPostgresLogs(t)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		rec := history.ProgressRecord{Subject: "math", Timestamp: ts(day), Accuracy: float64(day * 25)}
		if err := logs.Progress.Append(ctx, rec); err != nil {
			t.Fatalf("Progress.Append() error = %v", err)
		}
		mis := history.MistakeRecord{Subject: "math", Question: "q", CorrectAnswer: "a", Timestamp: ts(day)}
		if err := logs.Mistakes.Append(ctx, mis); err != nil {
			t.Fatalf("Mistakes.Append() error = %v", err)
		}
	}

	progress, err := logs.Progress.ListBySubject(ctx, "math", 0)
	if err != nil {
		t.Fatalf("Progress.ListBySubject() error = %v", err)
	}
	if len(progress) != 3 || !progress[0].Timestamp.Equal(ts(1)) {
		t.Errorf("progress = %+v, want 3 records oldest first", progress)
	}

	recent, err := logs.Progress.ListBySubject(ctx, "math", 2)
	if err != nil {
		t.Fatalf("Progress.ListBySubject() error = %v", err)
	}
	if len(recent) != 2 || !recent[0].Timestamp.Equal(ts(2)) {
		t.Errorf("progress limit=2 = %+v, want most recent two oldest first", recent)
	}

	mistakes, err := logs.Mistakes.ListBySubject(ctx, "math", 0)
	if err != nil {
		t.Fatalf("Mistakes.ListBySubject() error = %v", err)
	}
	if len(mistakes) != 3 || !mistakes[0].Timestamp.Equal(ts(3)) {
		t.Errorf("mistakes = %+v, want 3 records newest first", mistakes)
	}
}
