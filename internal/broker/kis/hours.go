package kis

import (
	"time"

	"kis-trader/internal/types"
)

// tradingHours selects the order kind from the market's local clock.
// Inside regular hours orders go out immediately; outside them they are
// queued as reserved orders with an end date. The domestic market has an
// extra after-hours window that trades at the closing price.
type tradingHours struct {
	loc        *time.Location
	openMin    int // minutes from midnight, inclusive
	closeMin   int // inclusive
	closingMin int // after-hours closing-price window start, 0 = none
	closingEnd int
}

func domesticHours() tradingHours {
	return tradingHours{
		loc:        time.FixedZone("KST", 9*3600),
		openMin:    9 * 60,
		closeMin:   15*60 + 30,
		closingMin: 15*60 + 40,
		closingEnd: 16 * 60,
	}
}

func overseasHours() tradingHours {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	return tradingHours{
		loc:      loc,
		openMin:  9*60 + 30,
		closeMin: 16 * 60,
	}
}

func (h tradingHours) kindAt(t time.Time) types.OrderKind {
	lt := t.In(h.loc)
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return types.KindReserved
	}

	m := lt.Hour()*60 + lt.Minute()
	if m >= h.openMin && m <= h.closeMin {
		return types.KindMarket
	}
	if h.closingMin > 0 && m >= h.closingMin && m <= h.closingEnd {
		return types.KindClosing
	}
	return types.KindReserved
}

// reservedEndDate is how long a queued order stays valid before the broker
// drops it.
func (h tradingHours) reservedEndDate(t time.Time) string {
	return t.In(h.loc).AddDate(0, 0, 30).Format("20060102")
}
