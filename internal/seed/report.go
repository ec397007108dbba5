package seed

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"estatehub/pkg/domain"
)

// DefaultFailureCap bounds the failures retained per entity type.
const DefaultFailureCap = 3

// Failure is a retained per-record failure.
type Failure struct {
	Record domain.RawRecord `json:"record,omitempty"`
	Kind   string           `json:"kind"`
	Error  string           `json:"error"`
}

// LoadOutcome summarizes one entity type's pass. It is frozen once the
// pass completes.
type LoadOutcome struct {
	Entity      domain.EntityType `json:"entity"`
	Attempted   int               `json:"attempted"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Patched     int               `json:"patched,omitempty"`
	PatchFailed int               `json:"patchFailed,omitempty"`
	// Empty is set when the batch was absent or had no records.
	Empty      bool           `json:"empty,omitempty"`
	BatchError string         `json:"batchError,omitempty"`
	Sequence   int64          `json:"nextSequence,omitempty"`
	ByKind     map[string]int `json:"failuresByKind,omitempty"`
	Failures   []Failure      `json:"failures,omitempty"`
}

// ProgressLine renders the operator progress line for o.
func ProgressLine(o LoadOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d loaded", o.Entity, o.Succeeded)
	if o.Failed > 0 {
		fmt.Fprintf(&b, ", %d skipped, see errors", o.Failed)
	}
	if o.BatchError != "" {
		b.WriteString(", batch unreadable, see errors")
	}
	return b.String()
}

// outcomeTracker accumulates a LoadOutcome under concurrent workers.
type outcomeTracker struct {
	mu      sync.Mutex
	out     LoadOutcome
	cap     int
	patches []patchTarget
}

type patchTarget struct {
	key domain.Key
	raw domain.RawRecord
}

func newOutcomeTracker(entity domain.EntityType, failureCap int) *outcomeTracker {
	return &outcomeTracker{out: LoadOutcome{Entity: entity}, cap: failureCap}
}

func (o *outcomeTracker) attempt() {
	o.mu.Lock()
	o.out.Attempted++
	o.mu.Unlock()
}

func (o *outcomeTracker) succeed(key domain.Key, raw domain.RawRecord, keepForPatch bool) {
	o.mu.Lock()
	o.out.Succeeded++
	if keepForPatch {
		o.patches = append(o.patches, patchTarget{key: key, raw: raw})
	}
	o.mu.Unlock()
}

func (o *outcomeTracker) fail(raw domain.RawRecord, err error) {
	o.mu.Lock()
	o.out.Failed++
	o.retainLocked(raw, err)
	o.mu.Unlock()
}

func (o *outcomeTracker) patchResult(raw domain.RawRecord, err error) {
	o.mu.Lock()
	if err != nil {
		o.out.PatchFailed++
		o.retainLocked(raw, err)
	} else {
		o.out.Patched++
	}
	o.mu.Unlock()
}

func (o *outcomeTracker) retainLocked(raw domain.RawRecord, err error) {
	kind := Classify(err).String()
	if o.out.ByKind == nil {
		o.out.ByKind = make(map[string]int)
	}
	o.out.ByKind[kind]++
	if len(o.out.Failures) < o.cap {
		var rec domain.RawRecord
		if raw != nil {
			rec = raw.Clone()
		}
		o.out.Failures = append(o.out.Failures, Failure{Record: rec, Kind: kind, Error: err.Error()})
	}
}

// snapshot returns a copy of the current outcome.
func (o *outcomeTracker) snapshot() LoadOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.out
	out.Failures = append([]Failure(nil), o.out.Failures...)
	if o.out.ByKind != nil {
		out.ByKind = make(map[string]int, len(o.out.ByKind))
		for k, v := range o.out.ByKind {
			out.ByKind[k] = v
		}
	}
	return out
}

// RegistryCount is the number of registered identifiers for a type.
type RegistryCount struct {
	Entity     domain.EntityType `json:"entity"`
	SourceKeys int               `json:"sourceKeys"`
	StoreKeys  int               `json:"storeKeys"`
}

// Report is the structured result of a run.
type Report struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Phase      string          `json:"phase"`
	DryRun     bool            `json:"dryRun,omitempty"`
	Entities   []LoadOutcome   `json:"entities"`
	Registry   []RegistryCount `json:"registry"`
	Fatal      string          `json:"fatal,omitempty"`
}

// Outcome returns the outcome recorded for entity.
func (r *Report) Outcome(entity domain.EntityType) (LoadOutcome, bool) {
	for _, o := range r.Entities {
		if o.Entity == entity {
			return o, true
		}
	}
	return LoadOutcome{}, false
}

// Totals sums attempted, succeeded and failed over every type.
func (r *Report) Totals() (attempted, succeeded, failed int) {
	for _, o := range r.Entities {
		attempted += o.Attempted
		succeeded += o.Succeeded
		failed += o.Failed
	}
	return attempted, succeeded, failed
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Print writes the human-readable summary.
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tATTEMPTED\tLOADED\tSKIPPED\tREGISTERED")
	registered := make(map[domain.EntityType]int, len(r.Registry))
	for _, c := range r.Registry {
		registered[c.Entity] = c.SourceKeys
	}
	for _, o := range r.Entities {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", o.Entity, o.Attempted, o.Succeeded, o.Failed, registered[o.Entity])
	}
	attempted, succeeded, failed := r.Totals()
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t\n", attempted, succeeded, failed)
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, o := range r.Entities {
		if o.BatchError != "" {
			fmt.Fprintf(w, "%s batch: %s\n", o.Entity, o.BatchError)
		}
		for _, f := range o.Failures {
			fmt.Fprintf(w, "%s %s: %s\n", o.Entity, f.Kind, f.Error)
		}
		if hidden := o.Failed + o.PatchFailed - len(o.Failures); hidden > 0 {
			fmt.Fprintf(w, "%s: %d more failures not retained\n", o.Entity, hidden)
		}
	}
	status := "seed " + strings.ToLower(r.Phase)
	if r.DryRun {
		status += " (dry run)"
	}
	if r.Fatal != "" {
		status += ": " + r.Fatal
	}
	_, err := fmt.Fprintf(w, "%s in %s\n", status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return err
}
