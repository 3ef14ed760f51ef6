package engine

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/taskfleet/clustersched/common"
	"github.com/taskfleet/clustersched/host"
	"github.com/taskfleet/clustersched/sched"
	"github.com/taskfleet/clustersched/schederr"
)

// registry is the Offer Store and Host View combined: both operate on
// the same per-host aggregate, so one map of hostname to *host.Host
// backs both. It tracks the offerId/vmId indirections needed to
// resolve a mutation request down to the host that owns it, and the
// active-group filter that limits which hosts are offered to the
// evaluator during a round.
//
// Every method here runs under the engine's state guard except
// hostByHostname, which the Mutation API's unassignTask also calls
// without the guard (per the mutation contract's one exception). hostsMu
// guards only the hosts map itself so that exception is safe: reads of
// the map never race the writes getOrCreate and sweep perform while a
// round holds the guard.
type registry struct {
	hostsMu sync.RWMutex
	hosts   map[string]*host.Host

	hostnameByOfferId map[string]string
	hostnameByVmId    map[string]string

	activeGroupAttributeName string
	activeGroups              map[string]bool // nil means all groups active

	lastSweep time.Time
}

func newRegistry() *registry {
	return &registry{
		hosts:             make(map[string]*host.Host),
		hostnameByOfferId: make(map[string]string),
		hostnameByVmId:    make(map[string]string),
	}
}

func (r *registry) getOrCreate(hostname string) *host.Host {
	r.hostsMu.Lock()
	defer r.hostsMu.Unlock()
	h, ok := r.hosts[hostname]
	if !ok {
		h = host.New(hostname)
		r.hosts[hostname] = h
	}
	return h
}

// addOffer ingests a single offer. A duplicate offer id is a usage
// error: the caller (the round orchestrator) decides whether to abort
// the whole batch or only this offer.
func (r *registry) addOffer(o sched.Offer, singleOfferPerHost bool) error {
	if _, exists := r.hostnameByOfferId[o.Id]; exists {
		return schederr.New(schederr.DuplicateOffer, offerIdErr(o.Id))
	}
	if o.OfferedAt.IsZero() {
		o.OfferedAt = time.Now()
	}
	h := r.getOrCreate(o.Hostname)
	if r.activeGroupAttributeName != "" {
		if g, ok := o.Attributes[r.activeGroupAttributeName]; ok {
			h.SetGroup(g)
		}
	}
	if singleOfferPerHost {
		if old := h.OfferIds(); len(old) == 1 {
			delete(r.hostnameByOfferId, old[0])
		}
		h.ReplaceOffer(o)
	} else if !h.AddOffer(o) {
		return schederr.New(schederr.DuplicateOffer, offerIdErr(o.Id))
	}
	r.hostnameByOfferId[o.Id] = o.Hostname
	if o.VmId != "" {
		r.hostnameByVmId[o.VmId] = o.Hostname
	}
	return nil
}

type offerIdErr string

func (e offerIdErr) Error() string { return "duplicate offer id: " + string(e) }

// expireById removes a single offer. Returns the hostname it belonged
// to so the caller can fire the reject callback.
func (r *registry) expireById(offerId string) (string, bool) {
	hostname, ok := r.hostnameByOfferId[offerId]
	if !ok {
		return "", false
	}
	h, ok := r.hosts[hostname]
	if !ok {
		return "", false
	}
	if _, removed := h.RemoveOffer(offerId); removed {
		delete(r.hostnameByOfferId, offerId)
		return hostname, true
	}
	return "", false
}

// expireAllForHost removes every offer held by hostname, returning
// their ids so the caller can fire reject callbacks for each.
func (r *registry) expireAllForHost(hostname string) []string {
	h, ok := r.hosts[hostname]
	if !ok {
		return nil
	}
	ids := h.OfferIds()
	for _, id := range ids {
		h.RemoveOffer(id)
		delete(r.hostnameByOfferId, id)
	}
	return ids
}

// expireAll removes every offer on every host, returning (offerId,
// hostname) pairs.
func (r *registry) expireAll() []offerHostPair {
	var out []offerHostPair
	for hostname, h := range r.hosts {
		for _, id := range h.OfferIds() {
			h.RemoveOffer(id)
			delete(r.hostnameByOfferId, id)
			out = append(out, offerHostPair{OfferId: id, Hostname: hostname})
		}
	}
	return out
}

type offerHostPair struct {
	OfferId  string
	Hostname string
}

func (r *registry) hostnameForVmId(vmId string) (string, bool) {
	hostname, ok := r.hostnameByVmId[vmId]
	return hostname, ok
}

// hostByHostname is the one registry accessor the Mutation API's
// unassignTask calls without holding the state guard; hostsMu is what
// makes that safe against a concurrent round's getOrCreate or sweep.
func (r *registry) hostByHostname(hostname string) (*host.Host, bool) {
	r.hostsMu.RLock()
	defer r.hostsMu.RUnlock()
	h, ok := r.hosts[hostname]
	return h, ok
}

func (r *registry) hostByVmId(vmId string) (*host.Host, bool) {
	hostname, ok := r.hostnameByVmId[vmId]
	if !ok {
		return nil, false
	}
	return r.hostByHostname(hostname)
}

// candidateHosts returns hosts eligible for assignment this round:
// not disabled, holding at least one offer, and a member of an active
// group when a group filter is in effect.
func (r *registry) candidateHosts(now time.Time) []*host.Host {
	out := make([]*host.Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		if h.Disabled(now) || !h.HasOffers() {
			continue
		}
		if r.activeGroups != nil && !r.activeGroups[h.Group()] {
			continue
		}
		out = append(out, h)
	}
	return out
}

// expireStaleOffers drops offers older than ttl across every host,
// returning removed (offerId, hostname) pairs for the reject callback.
func (r *registry) expireStaleOffers(now time.Time, ttl time.Duration) []offerHostPair {
	var out []offerHostPair
	for hostname, h := range r.hosts {
		for _, id := range h.OfferIds() {
			o, ok := h.RemoveOffer(id)
			if !ok {
				continue
			}
			if now.Sub(o.OfferedAt) <= ttl {
				// not actually stale; put it back.
				h.AddOffer(o)
				continue
			}
			delete(r.hostnameByOfferId, id)
			out = append(out, offerHostPair{OfferId: id, Hostname: hostname})
		}
	}
	return out
}

// rejectIdleOffers drops every offer held by the named hosts, returning
// (offerId, hostname) pairs for the reject callback. The caller has
// already decided hostnames are idle this round; this just performs
// the removal and index bookkeeping, mirroring expireStaleOffers.
func (r *registry) rejectIdleOffers(hostnames []string) []offerHostPair {
	var out []offerHostPair
	for _, hostname := range hostnames {
		h, ok := r.hosts[hostname]
		if !ok {
			continue
		}
		for _, id := range h.OfferIds() {
			if _, removed := h.RemoveOffer(id); removed {
				delete(r.hostnameByOfferId, id)
				out = append(out, offerHostPair{OfferId: id, Hostname: hostname})
			}
		}
	}
	return out
}

// sweep drops hosts that are reclaimable at now (no offers, nothing
// running, not disabled), at most once per
// common.DefaultHostSweepInterval. How long a host has been in that
// state is not considered. Returns the hostnames dropped.
func (r *registry) sweep(now time.Time) []string {
	if !r.lastSweep.IsZero() && now.Sub(r.lastSweep) < common.DefaultHostSweepInterval {
		return nil
	}
	r.lastSweep = now
	var dropped []string
	for hostname, h := range r.hosts {
		if !h.Reclaimable(now) {
			continue
		}
		dropped = append(dropped, hostname)
	}
	r.hostsMu.Lock()
	for _, hostname := range dropped {
		delete(r.hosts, hostname)
		log.WithField("hostname", hostname).Debug("swept idle host from registry")
	}
	r.hostsMu.Unlock()
	return dropped
}

func (r *registry) setActiveGroupAttributeName(name string) {
	r.activeGroupAttributeName = name
}

func (r *registry) setActiveGroups(groups []string) {
	if groups == nil {
		r.activeGroups = nil
		return
	}
	m := make(map[string]bool, len(groups))
	for _, g := range groups {
		m[strings.TrimSpace(g)] = true
	}
	r.activeGroups = m
}

func (r *registry) all() map[string]*host.Host {
	return r.hosts
}
