package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
)

type fakeExpirer struct {
	results []int
	errAt   int
	calls   int
	cutoffs []time.Time
	limits  []int
}

func (f *fakeExpirer) ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	f.limits = append(f.limits, limit)
	idx := f.calls - 1
	n := 0
	if idx < len(f.results) {
		n = f.results[idx]
	}
	if f.errAt == f.calls {
		return n, errors.New("row failed")
	}
	return n, nil
}

func newExpiryJob(t *testing.T, expirer *fakeExpirer, ttl time.Duration, batch int) *reservationExpiryJob {
	t.Helper()
	jobIface, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    testLogger(),
		Expirer:   expirer,
		TTL:       ttl,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	return jobIface.(*reservationExpiryJob)
}

func TestReservationExpiryJobUsesTTLCutoff(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	expirer := &fakeExpirer{results: []int{3}}
	job := newExpiryJob(t, expirer, 48*time.Hour, 10)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected a single short batch, got %d calls", expirer.calls)
	}
	if want := now.Add(-48 * time.Hour); !expirer.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, expirer.cutoffs[0])
	}
	if expirer.limits[0] != 10 {
		t.Fatalf("expected batch size 10, got %d", expirer.limits[0])
	}
}

func TestReservationExpiryJobDrainsFullBatches(t *testing.T) {
	expirer := &fakeExpirer{results: []int{2, 2, 1}}
	job := newExpiryJob(t, expirer, 0, 2)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", expirer.calls)
	}
}

func TestReservationExpiryJobStopsOnError(t *testing.T) {
	expirer := &fakeExpirer{results: []int{2, 1, 2}, errAt: 2}
	job := newExpiryJob(t, expirer, 0, 2)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if expirer.calls != 2 {
		t.Fatalf("expected to stop after failing batch, got %d calls", expirer.calls)
	}
}

func TestReservationExpiryJobRequiresExpirer(t *testing.T) {
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without expirer")
	}
}

type fakeReconciler struct {
	drifts []inventory.Drift
	err    error
}

func (f fakeReconciler) ReconcileAll(context.Context) ([]inventory.Drift, error) {
	return f.drifts, f.err
}

func TestLedgerDriftJob(t *testing.T) {
	if _, err := NewLedgerDriftJob(LedgerDriftJobParams{Reconciler: fakeReconciler{}}); err == nil {
		t.Fatal("expected logger to be required")
	}
	if _, err := NewLedgerDriftJob(LedgerDriftJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected reconciler to be required")
	}

	cases := []struct {
		name    string
		rec     fakeReconciler
		wantErr bool
	}{
		{name: "in sync", rec: fakeReconciler{}},
		{name: "drift", rec: fakeReconciler{drifts: []inventory.Drift{{ItemID: uuid.New(), Stock: 4, Expected: 5, Delta: -1}}}, wantErr: true},
		{name: "query failure", rec: fakeReconciler{err: errors.New("db down")}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := NewLedgerDriftJob(LedgerDriftJobParams{Logger: testLogger(), Reconciler: tc.rec})
			if err != nil {
				t.Fatalf("NewLedgerDriftJob: %v", err)
			}
			err = job.Run(context.Background())
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
		})
	}
}
