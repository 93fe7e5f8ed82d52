// Package schedule turns a raw provider payload into the canonical
// ordered sequence of shift events the rest of the system operates on.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"roostersync/internal/logging"
	"roostersync/internal/model"
)

// ErrNoShiftMarkers is returned when the payload carries none of the
// structural markers of a schedule page. A recognizable page with zero
// shifts is a valid empty result, not this error.
var ErrNoShiftMarkers = errors.New("no shift markers found in payload")

// containerMarker is the element id wrapping each shift on the HTML
// schedule page, and pageMarker distinguishes an empty schedule page
// from a payload that is not a schedule at all.
const (
	containerMarker = `id="cwerken"`
	pageMarker      = "rooster"
)

// DescribeFunc looks up the free-text description for the shift on the
// given date. Failures degrade to an empty description.
type DescribeFunc func(date time.Time) (string, error)

// Options control a single Normalize call.
type Options struct {
	// Describe, when non-nil, is invoked once per shift to enrich it.
	Describe DescribeFunc

	// Location is the timezone shift wall-clock times are interpreted
	// in. Defaults to time.Local.
	Location *time.Location
}

// Normalizer parses raw schedule payloads. The patterns are compiled
// once in NewNormalizer and held by the instance, not in package-level
// singletons, so the dependency is explicit.
type Normalizer struct {
	datePattern *regexp.Regexp
	timePattern *regexp.Regexp
}

// NewNormalizer constructs a Normalizer with its patterns compiled.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		// detail(2024,1,10); carries the shift's date.
		datePattern: regexp.MustCompile(`detail\((\d+),(\d+),(\d+)\);`),
		// 22:00-<br>06:00 carries begin and end time-of-day.
		timePattern: regexp.MustCompile(`(\d+):(\d+)-<br>(\d+):(\d+)`),
	}
}

// Normalize parses the payload into an ordered sequence of events, each
// carrying a content hash. The payload is JSON for newer provider
// versions and an HTML page otherwise; the first non-space byte decides.
//
// A shift that fails to parse is logged and skipped; the call errors
// only when the payload has no schedule structure at all.
func (n *Normalizer) Normalize(payload []byte, opts Options) ([]model.Event, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	trimmed := strings.TrimLeftFunc(string(payload), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return n.normalizeJSON([]byte(trimmed), opts)
	}
	return n.normalizeHTML(trimmed, opts)
}

func (n *Normalizer) normalizeHTML(document string, opts Options) ([]model.Event, error) {
	chunks := strings.Split(document, containerMarker)
	if len(chunks) == 1 {
		if !strings.Contains(document, pageMarker) {
			return nil, ErrNoShiftMarkers
		}
		// Schedule page with no shifts: valid empty result.
		return []model.Event{}, nil
	}

	events := make([]model.Event, 0, len(chunks)-1)
	for _, chunk := range chunks[1:] {
		ev, err := n.parseShiftChunk(chunk, opts.Location)
		if err != nil {
			slog.Warn("skipping unparsable shift", logging.Err(err))
			continue
		}
		enrich(&ev, opts.Describe)
		events = append(events, ev)
	}
	return events, nil
}

// parseShiftChunk extracts one shift from the HTML following a container
// marker, applying the midnight rule.
func (n *Normalizer) parseShiftChunk(chunk string, loc *time.Location) (model.Event, error) {
	dm := n.datePattern.FindStringSubmatch(chunk)
	if dm == nil {
		return model.Event{}, errors.New("unable to find date")
	}
	tm := n.timePattern.FindStringSubmatch(chunk)
	if tm == nil {
		return model.Event{}, errors.New("unable to find times")
	}

	year, _ := strconv.Atoi(dm[1])
	month, _ := strconv.Atoi(dm[2])
	day, _ := strconv.Atoi(dm[3])

	beginHour, _ := strconv.Atoi(tm[1])
	beginMin, _ := strconv.Atoi(tm[2])
	endHour, _ := strconv.Atoi(tm[3])
	endMin, _ := strconv.Atoi(tm[4])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return model.Event{}, fmt.Errorf("invalid date %d-%d-%d", year, month, day)
	}
	if beginHour > 23 || endHour > 23 || beginMin > 59 || endMin > 59 {
		return model.Event{}, fmt.Errorf("invalid times %s:%s-%s:%s", tm[1], tm[2], tm[3], tm[4])
	}

	begin := time.Date(year, time.Month(month), day, beginHour, beginMin, 0, 0, loc)
	end := time.Date(year, time.Month(month), day, endHour, endMin, 0, 0, loc)
	// A shift whose end time-of-day precedes its begin time-of-day
	// crosses midnight; the end date advances one day. This is the only
	// thing distinguishing an overnight shift from a malformed one.
	if end.Before(begin) {
		end = end.AddDate(0, 0, 1)
	}

	return model.Event{
		Start:       begin,
		End:         end,
		ContentHash: model.ContentHashFor(begin, end),
	}, nil
}

// jsonSchedule is the typed intermediate representation of the newer
// provider payload.
type jsonSchedule struct {
	Shifts []jsonShift `json:"shifts"`
}

type jsonShift struct {
	// Date is the shift's calendar date, YYYY-MM-DD.
	Date string `json:"date"`
	// Begin and End are times of day, HH:MM.
	Begin string `json:"begin"`
	End   string `json:"end"`
	// Description is optional free text.
	Description string `json:"description"`
	// ID, when present, is the provider's own shift identity and wins
	// over the computed span hash.
	ID string `json:"id"`
}

func (n *Normalizer) normalizeJSON(payload []byte, opts Options) ([]model.Event, error) {
	var doc jsonSchedule
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode schedule JSON: %w", err)
	}
	if doc.Shifts == nil {
		return nil, ErrNoShiftMarkers
	}

	events := make([]model.Event, 0, len(doc.Shifts))
	for _, sh := range doc.Shifts {
		ev, err := parseJSONShift(sh, opts.Location)
		if err != nil {
			slog.Warn("skipping unparsable shift", logging.Err(err))
			continue
		}
		if ev.Description == "" {
			enrich(&ev, opts.Describe)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseJSONShift(sh jsonShift, loc *time.Location) (model.Event, error) {
	date, err := time.ParseInLocation("2006-01-02", sh.Date, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("shift date %q: %w", sh.Date, err)
	}
	beginTod, err := time.Parse("15:04", sh.Begin)
	if err != nil {
		return model.Event{}, fmt.Errorf("shift begin %q: %w", sh.Begin, err)
	}
	endTod, err := time.Parse("15:04", sh.End)
	if err != nil {
		return model.Event{}, fmt.Errorf("shift end %q: %w", sh.End, err)
	}

	begin := time.Date(date.Year(), date.Month(), date.Day(), beginTod.Hour(), beginTod.Minute(), 0, 0, loc)
	end := time.Date(date.Year(), date.Month(), date.Day(), endTod.Hour(), endTod.Minute(), 0, 0, loc)
	if end.Before(begin) {
		end = end.AddDate(0, 0, 1)
	}

	hash := sh.ID
	if hash == "" {
		hash = model.ContentHashFor(begin, end)
	}

	return model.Event{
		Start:       begin,
		End:         end,
		Description: sh.Description,
		ContentHash: hash,
	}, nil
}

// enrich fills the event description via the lookup, if configured. A
// lookup failure is logged and leaves the description empty; one bad
// shift never aborts the whole normalization.
func enrich(ev *model.Event, describe DescribeFunc) {
	if describe == nil {
		return
	}
	desc, err := describe(ev.Start)
	if err != nil {
		slog.Warn("failed to get description for an event, continuing anyway",
			logging.Err(err), slog.Time("start", ev.Start))
		return
	}
	ev.Description = desc
}
