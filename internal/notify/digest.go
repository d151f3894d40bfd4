package notify

import (
	"context"
	"log"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/store"
	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the
// duration until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Digest posts periodic activity summaries to the hub's adapters. A period
// with no completed runs is skipped rather than posting an empty digest.
type Digest struct {
	store *store.Store
	hub   *Hub

	dailyExpr  string
	weeklyExpr string
}

// DigestOpts holds parameters for creating a Digest.
type DigestOpts struct {
	Store  *store.Store
	Hub    *Hub
	Daily  string // 5-field cron expression, empty disables
	Weekly string
}

// NewDigest creates a Digest scheduler.
func NewDigest(opts DigestOpts) *Digest {
	return &Digest{
		store:      opts.Store,
		hub:        opts.Hub,
		dailyExpr:  opts.Daily,
		weeklyExpr: opts.Weekly,
	}
}

// Run blocks until ctx is cancelled, firing digests on their schedules.
func (d *Digest) Run(ctx context.Context) {
	if d.dailyExpr != "" {
		go d.loop(ctx, d.dailyExpr, "daily", 24*time.Hour)
	}
	if d.weeklyExpr != "" {
		go d.loop(ctx, d.weeklyExpr, "weekly", 7*24*time.Hour)
	}
	<-ctx.Done()
}

// loop fires one digest per cron occurrence.
func (d *Digest) loop(ctx context.Context, expr, period string, window time.Duration) {
	for {
		wait := nextCronDuration(expr)
		if wait == 0 {
			log.Printf("notify: digest %s: bad cron expression %q", period, expr)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			d.fire(period, window)
		}
	}
}

// fire posts one digest covering the trailing window.
func (d *Digest) fire(period string, window time.Duration) {
	sum, err := d.store.ActivitySince(time.Now().Add(-window))
	if err != nil {
		log.Printf("notify: digest %s: %v", period, err)
		return
	}
	if sum.Blocks == 0 {
		return
	}

	formatted := FormatDigest(period, sum)
	d.hub.mu.Lock()
	adapters := append([]Adapter(nil), d.hub.adapters...)
	d.hub.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, a := range adapters {
		if err := a.Send(ctx, formatted); err != nil {
			log.Printf("notify: digest send: %v", err)
		}
	}
}
