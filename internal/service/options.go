package service

import (
	"time"

	"cloud.google.com/go/civil"
)

// DefaultDemandLookaheadDays is the demand window used for status and alerts
const DefaultDemandLookaheadDays = 7

// Options configures the calendar and demand window shared by the services
type Options struct {
	// DemandLookaheadDays is the number of days after today included in
	// the pending-demand window used for status resolution and alerts.
	DemandLookaheadDays int
	Location            *time.Location
	Now                 func() time.Time
	SyncLockTTL         time.Duration
}

func (o Options) withDefaults() Options {
	if o.DemandLookaheadDays <= 0 {
		o.DemandLookaheadDays = DefaultDemandLookaheadDays
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SyncLockTTL <= 0 {
		o.SyncLockTTL = 10 * time.Second
	}
	return o
}

// Today is the current calendar date in the bakery's timezone
func (o Options) Today() civil.Date {
	return civil.DateOf(o.Now().In(o.Location))
}

// DemandWindow is [today, today+lookahead]
func (o Options) DemandWindow() (civil.Date, civil.Date) {
	today := o.Today()
	return today, today.AddDays(o.DemandLookaheadDays)
}
