package engine

import (
	"testing"
	"time"

	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
	"github.com/taskfleet/clustersched/schederr"
)

func TestRegistryAddOfferDuplicateRejected(t *testing.T) {
	r := newRegistry()
	o := sched.Offer{Id: "o1", Hostname: "h1"}
	if err := r.addOffer(o, false); err != nil {
		t.Fatalf("first addOffer: %v", err)
	}
	err := r.addOffer(o, false)
	if !schederr.Is(err, schederr.DuplicateOffer) {
		t.Fatalf("expected DuplicateOffer, got %v", err)
	}
}

func TestRegistrySingleOfferPerHostReplacesPrior(t *testing.T) {
	r := newRegistry()
	o1 := sched.Offer{Id: "o1", Hostname: "h1", Resources: resource.Vector{CPU: 1}}
	o2 := sched.Offer{Id: "o2", Hostname: "h1", Resources: resource.Vector{CPU: 2}}
	if err := r.addOffer(o1, true); err != nil {
		t.Fatalf("addOffer o1: %v", err)
	}
	if err := r.addOffer(o2, true); err != nil {
		t.Fatalf("addOffer o2: %v", err)
	}
	h, ok := r.hostByHostname("h1")
	if !ok {
		t.Fatal("expected h1 to exist")
	}
	ids := h.OfferIds()
	if len(ids) != 1 || ids[0] != "o2" {
		t.Fatalf("expected only o2 to remain, got %v", ids)
	}
	if _, ok := r.hostnameForVmId(""); ok {
		t.Error("unexpected vmId mapping for empty vmId")
	}
}

func TestRegistryExpireStaleOffersRespectsTTL(t *testing.T) {
	r := newRegistry()
	now := time.Now()
	fresh := sched.Offer{Id: "fresh", Hostname: "h1", OfferedAt: now}
	stale := sched.Offer{Id: "stale", Hostname: "h1", OfferedAt: now.Add(-time.Hour)}
	if err := r.addOffer(fresh, false); err != nil {
		t.Fatalf("addOffer fresh: %v", err)
	}
	if err := r.addOffer(stale, false); err != nil {
		t.Fatalf("addOffer stale: %v", err)
	}
	expired := r.expireStaleOffers(now, 10*time.Minute)
	if len(expired) != 1 || expired[0].OfferId != "stale" {
		t.Fatalf("expected only the stale offer to expire, got %+v", expired)
	}
	h, _ := r.hostByHostname("h1")
	ids := h.OfferIds()
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Fatalf("expected the fresh offer to remain held, got %v", ids)
	}
}

func TestRegistryCandidateHostsFiltersDisabledAndEmpty(t *testing.T) {
	r := newRegistry()
	now := time.Now()
	if err := r.addOffer(sched.Offer{Id: "o1", Hostname: "h1"}, false); err != nil {
		t.Fatalf("addOffer: %v", err)
	}
	r.getOrCreate("h2") // no offers at all
	r.getOrCreate("h1").Disable(now.Add(time.Hour))

	candidates := r.candidateHosts(now)
	for _, h := range candidates {
		if h.Hostname() == "h1" || h.Hostname() == "h2" {
			t.Errorf("did not expect %s among candidates", h.Hostname())
		}
	}
}

func TestRegistryCandidateHostsFiltersByActiveGroup(t *testing.T) {
	r := newRegistry()
	now := time.Now()
	if err := r.addOffer(sched.Offer{Id: "o1", Hostname: "h1"}, false); err != nil {
		t.Fatalf("addOffer: %v", err)
	}
	if err := r.addOffer(sched.Offer{Id: "o2", Hostname: "h2"}, false); err != nil {
		t.Fatalf("addOffer: %v", err)
	}
	r.getOrCreate("h1").SetGroup("groupA")
	r.getOrCreate("h2").SetGroup("groupB")
	r.setActiveGroups([]string{"groupA"})

	candidates := r.candidateHosts(now)
	if len(candidates) != 1 || candidates[0].Hostname() != "h1" {
		t.Fatalf("expected only h1 as a candidate, got %v", candidates)
	}
}

func TestRegistrySweepReclaimsIdleHosts(t *testing.T) {
	r := newRegistry()
	r.getOrCreate("idle")
	r.getOrCreate("busy").MarkRunning("t1", &sched.TaskRequest{Id: "t1"})

	dropped := r.sweep(time.Now())
	if len(dropped) != 1 || dropped[0] != "idle" {
		t.Fatalf("expected only the idle host to be swept, got %v", dropped)
	}
	if _, ok := r.hostByHostname("idle"); ok {
		t.Error("expected idle host to be removed from the registry")
	}
	if _, ok := r.hostByHostname("busy"); !ok {
		t.Error("expected busy host to remain")
	}
}

func TestRegistryRejectIdleOffersRemovesOnlyNamedHosts(t *testing.T) {
	r := newRegistry()
	if err := r.addOffer(sched.Offer{Id: "o1", Hostname: "h1"}, false); err != nil {
		t.Fatalf("addOffer h1: %v", err)
	}
	if err := r.addOffer(sched.Offer{Id: "o2", Hostname: "h2"}, false); err != nil {
		t.Fatalf("addOffer h2: %v", err)
	}

	rejected := r.rejectIdleOffers([]string{"h1"})
	if len(rejected) != 1 || rejected[0].OfferId != "o1" || rejected[0].Hostname != "h1" {
		t.Fatalf("expected only h1's offer rejected, got %+v", rejected)
	}
	h1, _ := r.hostByHostname("h1")
	if h1.HasOffers() {
		t.Error("expected h1 to hold no offers after rejection")
	}
	h2, _ := r.hostByHostname("h2")
	if !h2.HasOffers() {
		t.Error("expected h2's offer to be untouched")
	}
	if _, ok := r.hostnameByOfferId["o1"]; ok {
		t.Error("expected o1 to be removed from the offer id index")
	}
}

func TestRegistrySweepThrottledByInterval(t *testing.T) {
	r := newRegistry()
	r.getOrCreate("idle")
	now := time.Now()
	r.sweep(now)
	r.getOrCreate("idle2")
	dropped := r.sweep(now.Add(time.Second))
	if dropped != nil {
		t.Fatalf("expected sweep to be throttled within the sweep interval, got %v", dropped)
	}
}
