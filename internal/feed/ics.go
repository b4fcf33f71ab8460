package feed

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

const (
	defaultHorizonDays            = 30
	defaultMaxOccurrencesPerEvent = 500

	recordDateLayout = "01-02-2006"
	recordTimeLayout = "15:04"
)

// ICSOptions controls how an iCalendar body becomes records.
type ICSOptions struct {
	// Location is the display timezone for record date/time. Nil means UTC.
	Location *time.Location
	// HorizonDays / BackfillDays bound the window [now-backfill, now+horizon].
	HorizonDays  int
	BackfillDays int
	// MaxOccurrencesPerEvent caps RRULE expansion.
	MaxOccurrencesPerEvent int
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// icsEvent is the subset of a VEVENT needed to produce records.
type icsEvent struct {
	uid         string
	summary     string
	description string
	start       time.Time
	end         time.Time
	allDay      bool
	rrule       string
	exDates     []time.Time
	recurrence  *time.Time
	order       int
}

type occurrence struct {
	ev     icsEvent
	start  time.Time
	allDay bool
}

// DecodeICS parses an iCalendar body and expands it into records within
// the configured window, ordered by start time. Ties keep feed order.
func DecodeICS(body []byte, opts ICSOptions) ([]model.Record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = defaultHorizonDays
	}
	if opts.BackfillDays < 0 {
		opts.BackfillDays = 0
	}
	if opts.MaxOccurrencesPerEvent <= 0 {
		opts.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var base []icsEvent
	overrides := make(map[string][]icsEvent)
	for i, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, i)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent skipped", "err", perr, "index", i)
			continue
		}
		if ev.recurrence != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		base = append(base, ev)
	}

	current := now().In(opts.Location)
	rangeStart := current.AddDate(0, 0, -opts.BackfillDays)
	rangeEnd := current.AddDate(0, 0, opts.HorizonDays)

	var occs []occurrence
	for _, ev := range base {
		occs = append(occs, expandEvent(ev, overrides[ev.uid], rangeStart, rangeEnd, opts.MaxOccurrencesPerEvent)...)
	}

	sort.SliceStable(occs, func(i, j int) bool {
		if occs[i].start.Equal(occs[j].start) {
			return occs[i].ev.order < occs[j].ev.order
		}
		return occs[i].start.Before(occs[j].start)
	})

	records := make([]model.Record, 0, len(occs))
	for _, o := range occs {
		local := o.start.In(opts.Location)
		if o.allDay {
			// A DATE value names a calendar day, not an instant; keep its wall-clock date.
			y, m, d := o.start.Date()
			local = time.Date(y, m, d, 0, 0, 0, 0, opts.Location)
		}
		rec := model.Record{
			Title:       o.ev.summary,
			Date:        local.Format(recordDateLayout),
			Description: o.ev.description,
		}
		if !o.allDay {
			rec.Time = local.Format(recordTimeLayout)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseVEvent(ve *ical.VEvent, order int) (icsEvent, error) {
	out := icsEvent{order: order}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.uid = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.start = start

	// A missing DTEND is a zero-length event.
	if end, err := ve.GetEndAt(); err == nil {
		out.end = end
	} else {
		out.end = start
	}

	// VALUE=DATE or no 'T' in the value -> all-day.
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.allDay = true
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.allDay = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, start.Location()); err == nil {
			out.recurrence = &t
		}
	}

	return out, nil
}

func expandEvent(ev icsEvent, overrides []icsEvent, rangeStart, rangeEnd time.Time, maxOcc int) []occurrence {
	if ev.rrule == "" {
		if ev.end.Before(rangeStart) || rangeEnd.Before(ev.start) {
			return nil
		}
		return []occurrence{withOverride(ev, ev.start, overrides)}
	}

	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "uid", ev.uid, "rrule", ev.rrule)
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	starts := set.Between(rangeStart.In(ev.start.Location()), rangeEnd.In(ev.start.Location()), true)
	if len(starts) > maxOcc {
		appLog.Warn("ics occurrences truncated", "uid", ev.uid, "cap", maxOcc)
		starts = starts[:maxOcc]
	}

	out := make([]occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, withOverride(ev, s, overrides))
	}
	return out
}

// withOverride swaps in the override whose RECURRENCE-ID matches start.
func withOverride(ev icsEvent, start time.Time, overrides []icsEvent) occurrence {
	for _, ov := range overrides {
		if ov.recurrence != nil && ov.recurrence.Equal(start) {
			ov.order = ev.order
			return occurrence{ev: ov, start: ov.start, allDay: ov.allDay}
		}
	}
	return occurrence{ev: ev, start: start, allDay: ev.allDay}
}

// parseICSTime parses a bare DATE or DATE-TIME value. Floating times are
// interpreted in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
