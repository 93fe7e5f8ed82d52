// Package ics serializes the reconciled event sets into one calendar
// file per configured summary.
package ics

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"roostersync/internal/config"
	"roostersync/internal/logging"
	"roostersync/internal/model"
)

// uidNamespace seeds the deterministic per-event UIDs. Emitting the same
// event set twice must reproduce files byte for byte, so UIDs are v5
// UUIDs over the event identity rather than random.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("roostersync"))

// Emitter writes calendar files into a fixed output directory.
type Emitter struct {
	dir string
}

// NewEmitter creates an Emitter writing into dir.
func NewEmitter(dir string) *Emitter {
	return &Emitter{dir: dir}
}

// Dir returns the output directory.
func (e *Emitter) Dir() string {
	return e.dir
}

// Filename returns the output file name for the given summary index:
// the bare username for index 0, username plus index after that.
func Filename(username string, index int) string {
	if index == 0 {
		return username + ".ics"
	}
	return username + strconv.Itoa(index) + ".ics"
}

// Emit writes one fully overwritten calendar file per summary index.
// Writes are atomic; a failed write leaves the previous file intact.
func (e *Emitter) Emit(username string, perSummary [][]model.Event) error {
	tz, err := hostTimezone()
	if err != nil {
		return fmt.Errorf("resolve host timezone: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for i, events := range perSummary {
		cal := buildCalendar(tz, events)
		path := filepath.Join(e.dir, Filename(username, i))
		if err := config.WriteFileAtomic(path, []byte(cal.Serialize()), 0o644); err != nil {
			return fmt.Errorf("write calendar %s: %w", path, err)
		}
	}

	slog.Info("saved schedule", logging.User(username), slog.Int("calendars", len(perSummary)))
	return nil
}

func buildCalendar(tz string, events []model.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//roostersync//NL")
	cal.SetXWRTimezone(tz)

	for _, ev := range events {
		ve := cal.AddEvent(eventUID(ev))
		// DTSTAMP derives from the event start so re-emission of the
		// same input reproduces the previous file exactly.
		ve.SetDtStampTime(ev.Start.UTC())
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Summary)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
	}
	return cal
}

// eventUID derives a stable UID from the event's identity: the content
// hash when present, the span otherwise.
func eventUID(ev model.Event) string {
	identity := ev.ContentHash
	if identity == "" {
		identity = model.ContentHashFor(ev.Start, ev.End)
	}
	return uuid.NewSHA1(uidNamespace, []byte(identity)).String() + "@roostersync"
}

// hostTimezone resolves the host's IANA timezone identifier. Failure is
// fatal to the current emit only; the caller retries next cycle.
func hostTimezone() (string, error) {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz, nil
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name, nil
	}
	// Debian-style marker file, then the systemd symlink.
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := strings.TrimSpace(string(data)); tz != "" {
			return tz, nil
		}
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):], nil
		}
	}
	return "", errors.New("unable to determine host IANA timezone")
}
