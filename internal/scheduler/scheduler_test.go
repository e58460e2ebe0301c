package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"safetyreports/internal/types"
)

func TestRegister_Idempotent(t *testing.T) {
	env := newTestEnv()
	sch := weeklySchedule()

	for i := 0; i < 3; i++ {
		if err := env.scheduler.Register(sch); err != nil {
			t.Fatalf("Register #%d: %v", i+1, err)
		}
	}

	if ids := env.scheduler.Entries(); len(ids) != 1 {
		t.Errorf("entries = %v, want one", ids)
	}
	if n := len(env.scheduler.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
}

func TestRegister_ReplacesTrigger(t *testing.T) {
	env := newTestEnv()
	env.scheduler.cron.Start()
	defer env.scheduler.cron.Stop()

	sch := weeklySchedule()
	if err := env.scheduler.Register(sch); err != nil {
		t.Fatalf("Register: %v", err)
	}
	before, ok := env.scheduler.NextRun(sch.ID)
	if !ok {
		t.Fatal("no next run after Register")
	}

	sch.Frequency = types.FrequencyDaily
	sch.DayOfWeek = nil
	sch.Time = "07:30"
	if err := env.scheduler.Register(sch); err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	after, ok := env.scheduler.NextRun(sch.ID)
	if !ok {
		t.Fatal("no next run after re-Register")
	}
	if after.Equal(before) {
		t.Errorf("next run unchanged after replacing trigger: %v", after)
	}
	if h, m := after.In(chicago()).Hour(), after.In(chicago()).Minute(); h != 7 || m != 30 {
		t.Errorf("next run at %02d:%02d Chicago, want 07:30", h, m)
	}
	if n := len(env.scheduler.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
}

func TestRegister_InactiveClearsTrigger(t *testing.T) {
	env := newTestEnv()
	sch := weeklySchedule()
	if err := env.scheduler.Register(sch); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sch.IsActive = false
	if err := env.scheduler.Register(sch); err != nil {
		t.Fatalf("Register inactive: %v", err)
	}
	if ids := env.scheduler.Entries(); len(ids) != 0 {
		t.Errorf("entries = %v, want none", ids)
	}
	if n := len(env.scheduler.cron.Entries()); n != 0 {
		t.Errorf("cron entries = %d, want 0", n)
	}
}

func TestRegister_InvalidRecurrence(t *testing.T) {
	env := newTestEnv()
	sch := weeklySchedule()
	sch.DayOfWeek = nil

	if err := env.scheduler.Register(sch); err == nil {
		t.Fatal("expected error for weekly schedule without day_of_week")
	}
	if ids := env.scheduler.Entries(); len(ids) != 0 {
		t.Errorf("entries = %v, want none", ids)
	}
}

func TestRegister_ConcurrentSameID(t *testing.T) {
	env := newTestEnv()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sch := weeklySchedule()
			sch.Time = fmt.Sprintf("07:%02d", i)
			_ = env.scheduler.Register(sch)
		}()
	}
	wg.Wait()

	if n := len(env.scheduler.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1 (leaked triggers)", n)
	}
}

func TestUnregister(t *testing.T) {
	env := newTestEnv()
	if err := env.scheduler.Register(weeklySchedule()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	env.scheduler.Unregister("sch_weekly")
	env.scheduler.Unregister("sch_weekly")
	env.scheduler.Unregister("sch_never_registered")

	if ids := env.scheduler.Entries(); len(ids) != 0 {
		t.Errorf("entries = %v, want none", ids)
	}
	if _, ok := env.scheduler.NextRun("sch_weekly"); ok {
		t.Error("NextRun reported a trigger after Unregister")
	}
}

func TestUnregister_DoesNotAbortInFlightRun(t *testing.T) {
	env := newTestEnv(weeklySchedule())
	env.deliverer.entered = make(chan struct{}, 1)
	env.deliverer.block = make(chan struct{})
	if err := env.scheduler.Register(weeklySchedule()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.scheduler.Execute(context.Background(), "sch_weekly", types.TriggerScheduled)
		done <- err
	}()
	<-env.deliverer.entered

	env.scheduler.Unregister("sch_weekly")
	close(env.deliverer.block)

	if err := <-done; err != nil {
		t.Errorf("in-flight run failed after Unregister: %v", err)
	}
	if runs := env.store.runs(); len(runs) != 1 || runs[0].Status != types.RunStatusSuccess {
		t.Errorf("recorded runs = %+v", runs)
	}
}

func TestStart_LoadsActiveSchedulesOnce(t *testing.T) {
	inactive := weeklySchedule()
	inactive.ID = "sch_paused"
	inactive.IsActive = false
	env := newTestEnv(weeklySchedule(), inactive)

	ctx := context.Background()
	if err := env.scheduler.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.scheduler.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := env.scheduler.Stop(stopCtx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	if env.store.listCalls != 1 {
		t.Errorf("ListActive calls = %d, want 1", env.store.listCalls)
	}
	ids := env.scheduler.Entries()
	if len(ids) != 1 || ids[0] != "sch_weekly" {
		t.Errorf("entries = %v, want [sch_weekly]", ids)
	}
	next, ok := env.scheduler.NextRun("sch_weekly")
	if !ok {
		t.Fatal("no next run")
	}
	local := next.In(chicago())
	if local.Weekday() != time.Sunday || local.Hour() != 7 || local.Minute() != 0 {
		t.Errorf("next run = %v, want Sunday 07:00 Chicago", local)
	}
}

func TestFire_SkipsOverlappingRun(t *testing.T) {
	env := newTestEnv(weeklySchedule())
	env.deliverer.entered = make(chan struct{}, 1)
	env.deliverer.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.scheduler.fire("sch_weekly")
	}()
	<-env.deliverer.entered

	// A second firing while the first is in flight returns without running.
	env.scheduler.fire("sch_weekly")
	if n := len(env.deliverer.sent()); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}

	close(env.deliverer.block)
	<-done
	if runs := env.store.runs(); len(runs) != 1 {
		t.Errorf("recorded runs = %d, want 1", len(runs))
	}
	if len(env.history.started) != 1 || env.history.started[0] != types.TriggerScheduled {
		t.Errorf("history triggers = %v", env.history.started)
	}
}
