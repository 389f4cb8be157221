package astidab

import (
	"time"

	"github.com/icza/bitio"
)

// DabTime is the ensemble date and time as announced by FIG0/10, combined
// with the local time offset from FIG0/9. The offset has a 30 minute
// granularity (sign + half hour count).
type DabTime struct {
	Year    int
	Month   int
	Day     int
	Hour    int
	Minutes int
	Seconds int

	HourOffset   int // signed hours part of the local time offset
	MinuteOffset int // 0 or 30
}

// Time converts to a time.Time carrying the announced local time offset.
func (t DabTime) Time() time.Time {
	offset := t.HourOffset*3600 + t.MinuteOffset*60
	if t.HourOffset < 0 {
		offset = t.HourOffset*3600 - t.MinuteOffset*60
	}
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minutes, t.Seconds, 0, time.FixedZone("", offset))
}

// mjdToGregorian converts a Modified Julian Date to a Gregorian calendar
// date using the proleptic conversion from the Julian day number
// (JD = MJD + 2400001).
func mjdToGregorian(mjd int) (year, month, day int) {
	j := mjd + 2400001 + 32044
	g := j / 146097
	dg := j % 146097
	c := (dg/36524 + 1) * 3 / 4
	dc := dg - c*36524
	b := dc / 1461
	db := dc % 1461
	a := (db/365 + 1) * 3 / 4
	da := db - a*365
	y := g*400 + c*100 + b*4 + a
	m := (da*5+308)/153 - 2
	d := da - (m+4)*153/5 + 122
	year = y - 4800 + (m+2)/12
	month = (m+2)%12 + 1
	day = d + 1
	return
}

// parseTimeAndDate parses the FIG0/10 date and time field. Seconds are reset
// to zero whenever the decoded minute differs from the previously stored one,
// so a minute rollover without an explicit seconds field doesn't leave a
// stale seconds value behind.
func parseTimeAndDate(r *bitio.CountReader, t *DabTime) error {
	_ = r.TryReadBool() // Rfu
	t.Year, t.Month, t.Day = mjdToGregorian(int(r.TryReadBits(17)))
	_ = r.TryReadBool() // Leap second indicator
	_ = r.TryReadBool() // Rfa
	utcFlag := r.TryReadBool()
	t.Hour = int(r.TryReadBits(5))
	if minutes := int(r.TryReadBits(6)); minutes != t.Minutes {
		t.Minutes = minutes
		t.Seconds = 0
	}
	if utcFlag {
		t.Seconds = int(r.TryReadBits(6))
	}
	return r.TryError
}
