package controller

import "time"

// RateKeeper measures how often Inc is called over a rolling window.
type RateKeeper struct {
	window time.Duration
	now    func() time.Time
	start  time.Time
	count  int
	rate   float64
}

// NewRateKeeper creates a keeper reporting once per window.
func NewRateKeeper(window time.Duration) *RateKeeper {
	k := &RateKeeper{window: window, now: time.Now}
	k.start = k.now()

	return k
}

// Inc counts one event. It returns true when the window elapsed, after
// updating Rate and starting a new window.
func (k *RateKeeper) Inc() bool {
	k.count++

	elapsed := k.now().Sub(k.start)
	if elapsed < k.window {
		return false
	}

	k.rate = float64(k.count) / elapsed.Seconds()
	k.count = 0
	k.start = k.start.Add(elapsed)

	return true
}

// Rate returns the events per second measured over the last full window.
func (k *RateKeeper) Rate() float64 { return k.rate }
