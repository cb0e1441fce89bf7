package corevm

import "testing"

func TestPopRescueOrEnsureRunsEnsuresThenStopsAtRescue(t *testing.T) {
	frame := &CallFrame{}
	frame.PushUnwindSite(NewUnwindSite(0, UnwindEnsure))
	frame.PushUnwindSite(NewUnwindSite(0, UnwindEnsure))
	frame.PushUnwindSite(NewUnwindSite(42, UnwindRescue))
	frame.PushUnwindSite(NewUnwindSite(0, UnwindEnsure)) // above the rescue site; runs first

	var ran []int
	handlerIP, ok := frame.PopRescueOrEnsure(func(site *UnwindSite) {
		ran = append(ran, site.HandlerIP)
	})

	if !ok {
		t.Fatal("expected a rescue site to be found")
	}
	if handlerIP != 42 {
		t.Errorf("handlerIP = %d, want 42", handlerIP)
	}
	if len(ran) != 1 {
		t.Errorf("ensure sites run = %d, want 1 (only the one above the rescue site)", len(ran))
	}
}

func TestPopRescueOrEnsureExhaustsStackWithoutRescue(t *testing.T) {
	frame := &CallFrame{}
	frame.PushUnwindSite(NewUnwindSite(0, UnwindEnsure))
	frame.PushUnwindSite(NewUnwindSite(0, UnwindEnsure))

	ran := 0
	_, ok := frame.PopRescueOrEnsure(func(site *UnwindSite) {
		ran++
	})

	if ok {
		t.Error("expected no rescue site to be found")
	}
	if ran != 2 {
		t.Errorf("ensure sites run = %d, want 2", ran)
	}
}
