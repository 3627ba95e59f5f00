package ibgateway

import (
	"time"

	"github.com/benagen/slobtrading/internal/broker"
	"github.com/benagen/slobtrading/internal/domain"
)

// aggregator folds successive same-minute ticks into a Bar, emitting it
// when a tick from the next minute arrives. One aggregator per
// subscribed symbol. Spec §4.13: "tick -> bar aggregation is the
// gateway's responsibility for live mode".
type aggregator struct {
	minute time.Time
	bar    domain.Bar
	open   bool
}

// Add folds tick into the current minute bucket. When tick belongs to a
// later minute, the prior bucket's closed Bar is returned and a new
// bucket is started.
func (a *aggregator) Add(t broker.Tick) (closed domain.Bar, ok bool) {
	minute := t.Timestamp.Truncate(time.Minute)

	if !a.open {
		a.start(minute, t)
		return domain.Bar{}, false
	}

	if minute.Equal(a.minute) {
		a.fold(t)
		return domain.Bar{}, false
	}

	closed = a.bar
	a.start(minute, t)
	return closed, true
}

func (a *aggregator) start(minute time.Time, t broker.Tick) {
	a.minute = minute
	a.open = true
	a.bar = domain.Bar{
		Timestamp: minute,
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    t.Size,
	}
}

func (a *aggregator) fold(t broker.Tick) {
	if t.Price > a.bar.High {
		a.bar.High = t.Price
	}
	if t.Price < a.bar.Low {
		a.bar.Low = t.Price
	}
	a.bar.Close = t.Price
	a.bar.Volume += t.Size
}
