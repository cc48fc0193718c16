//go:build integration

package storage

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/HatiCode/loadcast/pkg/database"
	"github.com/HatiCode/loadcast/pkg/forecast"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("loadcast_test"),
		postgres.WithUsername("loadcast"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	p, _ := strconv.Atoi(port.Port())

	cfg := database.Config{
		Host:     host,
		Port:     p,
		Name:     "loadcast_test",
		User:     "loadcast",
		Password: "test-password",
		SSLMode:  "disable",
	}
	if err := database.Migrate(cfg, nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	pool, err := database.Connect(ctx, cfg, database.RetryConfig{MaxAttempts: 3, Delay: time.Second}, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t))
	ctx := context.Background()

	t.Run("append keeps history", func(t *testing.T) {
		first, second := uuid.NewString(), uuid.NewString()
		if err := s.Append(ctx, first, run(7, 50000)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := s.Append(ctx, second, run(7, 60000)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		points, err := s.List(ctx, forecast.Page{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(points) != 14 {
			t.Fatalf("len(points) = %d, want 14", len(points))
		}
		if !points[0].Timestamp.Equal(day(1)) || points[0].Predicted != 50000 || points[1].Predicted != 60000 {
			t.Errorf("unexpected ordering: %+v %+v", points[0], points[1])
		}

		page, _ := s.List(ctx, forecast.Page{Limit: 4, Offset: 12})
		if len(page) != 2 {
			t.Errorf("paged len = %d, want 2", len(page))
		}
	})

	t.Run("append rejects malformed request id", func(t *testing.T) {
		if err := s.Append(ctx, "req-1", run(3, 1)); err == nil {
			t.Fatal("Append() with a non-uuid id should fail")
		}
		if points, _ := s.List(ctx, forecast.Page{}); len(points) != 14 {
			t.Errorf("len(points) = %d after rejected append, want 14", len(points))
		}
	})

	t.Run("ledger", func(t *testing.T) {
		id := uuid.NewString()
		rec := forecast.Record{ID: id, HorizonDays: 30, CacheKey: "v1:abc", Status: forecast.StatusPending}
		if err := s.CreateRequest(ctx, rec); err != nil {
			t.Fatalf("CreateRequest() error = %v", err)
		}
		if err := s.UpdateStatus(ctx, id, forecast.StatusDone, ""); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}

		got, err := s.GetRequest(ctx, id)
		if err != nil {
			t.Fatalf("GetRequest() error = %v", err)
		}
		if got.ID != id || got.Status != forecast.StatusDone || got.HorizonDays != 30 {
			t.Errorf("GetRequest() = %+v", got)
		}

		if _, err := s.GetRequest(ctx, uuid.NewString()); !errors.Is(err, forecast.ErrNotFound) {
			t.Errorf("GetRequest(unknown) error = %v", err)
		}
		if _, err := s.GetRequest(ctx, "not-a-uuid"); !errors.Is(err, forecast.ErrNotFound) {
			t.Errorf("GetRequest(malformed) error = %v", err)
		}
		if err := s.UpdateStatus(ctx, uuid.NewString(), forecast.StatusFailed, "x"); !errors.Is(err, forecast.ErrNotFound) {
			t.Errorf("UpdateStatus(unknown) error = %v", err)
		}
	})

	t.Run("daily load replace", func(t *testing.T) {
		rows := []forecast.DailyLoad{
			{Day: day(0), AvgLoadMW: 50000},
			{Day: day(1), AvgLoadMW: 51000},
		}
		if err := s.ReplaceDailyLoad(ctx, rows); err != nil {
			t.Fatalf("ReplaceDailyLoad() error = %v", err)
		}
		if err := s.ReplaceDailyLoad(ctx, rows[1:]); err != nil {
			t.Fatalf("ReplaceDailyLoad() error = %v", err)
		}

		got, err := s.ListDailyLoad(ctx)
		if err != nil {
			t.Fatalf("ListDailyLoad() error = %v", err)
		}
		if len(got) != 1 || !got[0].Day.Equal(day(1)) || got[0].AvgLoadMW != 51000 {
			t.Errorf("ListDailyLoad() = %+v", got)
		}

		dup := []forecast.DailyLoad{{Day: day(5)}, {Day: day(5)}}
		if err := s.ReplaceDailyLoad(ctx, dup); err == nil {
			t.Error("ReplaceDailyLoad() accepted duplicate days")
		}
		if got, _ := s.ListDailyLoad(ctx); len(got) != 1 {
			t.Errorf("failed replace was not rolled back, %d rows", len(got))
		}
	})
}
