package common

import (
	"time"
)

// DefaultLeaseOfferExpiry is how long an unconsumed offer is held
// before a scheduling round's start-of-round expiry pass rejects it back.
const DefaultLeaseOfferExpiry = 120 * time.Second

// DefaultHostSweepInterval bounds how often the idle-host reclaim
// sweep runs, independent of round frequency.
const DefaultHostSweepInterval = 60 * time.Second

const DefaultHostsPerEvaluatorBatch = 10
const DefaultHostsPerEvaluatorWorker = 30
