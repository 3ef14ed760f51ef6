package main

import (
	"fmt"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/taskfleet/clustersched/autoscale"
	"github.com/taskfleet/clustersched/common"
	"github.com/taskfleet/clustersched/engine"
	"github.com/taskfleet/clustersched/resource"
	"github.com/taskfleet/clustersched/sched"
)

// roundCmd builds a fresh Scheduler, ingests the offers and task
// requests supplied on the command line, and runs exactly one
// scheduling round against them, printing the result. Every --offer
// and --task flag is a comma-separated key=value list, parsed the
// same way host attribute strings are throughout this module.
type roundCmd struct {
	offers             []string
	tasks              []string
	singleOfferPerHost bool
	leaseExpirySecs    int
	autoscaleAttr      string
	autoscaleWebhook   string
}

func (c *roundCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "round",
		Short: "run one scheduling round against synthetic offers and tasks",
	}
	r.Flags().StringArrayVar(&c.offers, "offer", nil,
		`an offer as "hostname=h1,vmId=vm1,cpu=4,memMB=4096,networkMbps=1000,diskMB=10000,ports=100"; repeatable`)
	r.Flags().StringArrayVar(&c.tasks, "task", nil,
		`a task request as "id=t1,group=g1,cpu=1,memMB=512"; repeatable`)
	r.Flags().BoolVar(&c.singleOfferPerHost, "single-offer-per-host", false,
		"treat each --offer as a complete replacement view of its host rather than an increment")
	r.Flags().IntVar(&c.leaseExpirySecs, "lease-expiry-secs", 120, "offer expiry, in seconds")
	r.Flags().StringVar(&c.autoscaleAttr, "autoscale-attr", "", "host attribute naming the autoscale group")
	r.Flags().StringVar(&c.autoscaleWebhook, "autoscale-webhook", "", "URL to POST autoscale actions to")
	return r
}

func (c *roundCmd) run(cmd *cobra.Command, args []string) error {
	opts := []engine.Option{
		engine.WithLeaseOfferExpirySecs(c.leaseExpirySecs),
		engine.WithSingleOfferPerHost(c.singleOfferPerHost),
		engine.WithLeaseRejectCallback(func(offerId, hostname string, reason sched.RejectReason) {
			log.WithFields(log.Fields{"offerId": offerId, "hostname": hostname, "reason": reason}).Info("offer rejected")
		}),
	}
	if c.autoscaleWebhook != "" {
		if c.autoscaleAttr == "" {
			return fmt.Errorf("--autoscale-webhook requires --autoscale-attr")
		}
		hook := autoscale.NewWebhook(c.autoscaleWebhook)
		opts = append(opts,
			engine.WithAutoScaleByAttributeName(c.autoscaleAttr),
			engine.WithAutoscalerCallback(hook.Callback),
		)
	}

	cfg, err := engine.NewConfig(opts...)
	if err != nil {
		return err
	}
	s := engine.New(cfg, nil)

	offers, err := parseOffers(c.offers)
	if err != nil {
		return err
	}
	tasks, err := parseTasks(c.tasks)
	if err != nil {
		return err
	}

	result, err := s.ScheduleOnce(tasks, offers)
	if err != nil {
		return err
	}

	fmt.Println("--- scheduling result ---")
	spew.Dump(result)

	hosts, err := s.GetHostCurrentStates()
	if err != nil {
		return err
	}
	fmt.Println("--- host states ---")
	spew.Dump(hosts)

	status, err := s.GetResourceStatus()
	if err != nil {
		return err
	}
	fmt.Println("--- resource status ---")
	spew.Dump(status)

	return nil
}

func parseOffers(raw []string) ([]sched.Offer, error) {
	offers := make([]sched.Offer, 0, len(raw))
	for _, r := range raw {
		fields := common.SplitCommaSepToMap(r)
		hostname, ok := fields["hostname"]
		if !ok {
			return nil, fmt.Errorf("offer %q missing required field hostname", r)
		}
		v, attrs, err := parseResourceVector(fields, "hostname", "vmId")
		if err != nil {
			return nil, fmt.Errorf("offer %q: %v", r, err)
		}
		id := fields["id"]
		if id == "" {
			id = common.GenUUID()
		}
		offers = append(offers, sched.Offer{
			Id:         id,
			Hostname:   hostname,
			VmId:       fields["vmId"],
			Resources:  v,
			Attributes: attrs,
		})
	}
	return offers, nil
}

func parseTasks(raw []string) ([]*sched.TaskRequest, error) {
	tasks := make([]*sched.TaskRequest, 0, len(raw))
	for _, r := range raw {
		fields := common.SplitCommaSepToMap(r)
		v, _, err := parseResourceVector(fields, "id", "group")
		if err != nil {
			return nil, fmt.Errorf("task %q: %v", r, err)
		}
		id := fields["id"]
		if id == "" {
			id = common.GenUUID()
		}
		tasks = append(tasks, &sched.TaskRequest{
			Id:        id,
			GroupName: fields["group"],
			Resources: v,
		})
	}
	return tasks, nil
}

// parseResourceVector pulls the five resource dimensions out of fields,
// returning whatever is left (minus skipKeys) as an attribute map.
func parseResourceVector(fields map[string]string, skipKeys ...string) (resource.Vector, map[string]string, error) {
	skip := map[string]bool{"id": true}
	for _, k := range skipKeys {
		skip[k] = true
	}

	var v resource.Vector
	resourceKeys := map[string]*float64{
		"cpu":         &v.CPU,
		"memMB":       &v.MemoryMB,
		"networkMbps": &v.NetworkMbps,
		"diskMB":      &v.DiskMB,
	}
	for key, dst := range resourceKeys {
		skip[key] = true
		if raw, ok := fields[key]; ok {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return resource.Vector{}, nil, fmt.Errorf("field %s: %v", key, err)
			}
			*dst = f
		}
	}
	skip["ports"] = true
	if raw, ok := fields["ports"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return resource.Vector{}, nil, fmt.Errorf("field ports: %v", err)
		}
		v.Ports = n
	}

	attrs := map[string]string{}
	for k, val := range fields {
		if !skip[k] {
			attrs[k] = val
		}
	}
	return v, attrs, nil
}
