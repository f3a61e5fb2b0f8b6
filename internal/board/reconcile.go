// Package board mirrors the remote patient queue: it polls the list,
// reconciles manually assigned priorities with model-predicted ones, and
// keeps a display-ready snapshot with discrepancy flags and wait times.
package board

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

// DefaultPriority is assumed when no numeric level can be parsed out of a
// priority label.
const DefaultPriority = 5

// borderColors maps the leading emoji of a priority label to its border
// color class. The emoji and the embedded number are independent tokens of
// the same label and are parsed independently.
var borderColors = map[string]string{
	"\U0001f534": "red",    // 🔴
	"\U0001f7e0": "orange", // 🟠
	"\U0001f7e1": "yellow", // 🟡
	"\U0001f7e2": "green",  // 🟢
	"\U0001f535": "blue",   // 🔵
}

var priorityNumberRe = regexp.MustCompile(`\d+`)

// ParsePriorityLabel extracts the border color class and the manual
// priority level from a label like "🟢 Prioridad 4 - Atención MENOS URGENTE".
// Unknown or missing emoji falls back to blue; a missing number falls back
// to DefaultPriority.
func ParsePriorityLabel(label string) (borderColor string, manual int) {
	borderColor = "blue"
	if fields := strings.Fields(label); len(fields) > 0 {
		if color, ok := borderColors[fields[0]]; ok {
			borderColor = color
		}
	}

	manual = DefaultPriority
	if m := priorityNumberRe.FindString(label); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			manual = n
		}
	}
	return borderColor, manual
}

// Entry is one patient annotated for display.
type Entry struct {
	Patient api.Patient `json:"patient"`

	ManualPriority int    `json:"manual_priority"`
	BorderColor    string `json:"border_color"`

	// AIPriority is the model's level; 0 means not computed.
	AIPriority int `json:"ai_priority"`

	// Discrepancy is set when the model's level is present and disagrees
	// with the manual one. An absent prediction is not a disagreement.
	Discrepancy bool `json:"discrepancy"`

	// WaitingTime is computed against render time, not fetch time.
	WaitingTime time.Duration `json:"waiting"`
}

// Reconcile annotates and orders patients for display: ascending by manual
// priority, ties keeping the service's order.
func Reconcile(patients []api.Patient, now time.Time) []Entry {
	entries := make([]Entry, 0, len(patients))
	for _, p := range patients {
		color, manual := ParsePriorityLabel(p.Prioridad)

		enqueued := p.Timestamp
		if enqueued == 0 {
			enqueued = now.Unix()
		}

		entries = append(entries, Entry{
			Patient:        p,
			ManualPriority: manual,
			BorderColor:    color,
			AIPriority:     p.PrioridadIA,
			Discrepancy:    p.PrioridadIA != 0 && p.PrioridadIA != manual,
			WaitingTime:    time.Duration(now.Unix()-enqueued) * time.Second,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ManualPriority < entries[j].ManualPriority
	})
	return entries
}

// FilterByName keeps entries whose patient name contains the query,
// case-insensitively. An empty query keeps everything. Pure view-layer
// filtering; never refetches.
func FilterByName(entries []Entry, query string) []Entry {
	if strings.TrimSpace(query) == "" {
		return entries
	}
	q := strings.ToLower(query)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Patient.Nombre), q) {
			out = append(out, e)
		}
	}
	return out
}

// AllPriorities is the sentinel level that disables the priority filter.
const AllPriorities = 0

// FilterByPriority keeps entries whose manual priority equals level.
// AllPriorities keeps everything.
func FilterByPriority(entries []Entry, level int) []Entry {
	if level == AllPriorities {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ManualPriority == level {
			out = append(out, e)
		}
	}
	return out
}
