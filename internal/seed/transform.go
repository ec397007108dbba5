package seed

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"estatehub/pkg/domain"
)

// Transformer turns raw snapshot records into normalized records. It holds
// no state besides the injected Resolver and a locked random source, so one
// instance is shared by all workers of a run.
type Transformer struct {
	reg Resolver

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTransformer returns a Transformer resolving references through reg.
// A nil rng is replaced by a randomly seeded source.
func NewTransformer(reg Resolver, rng *rand.Rand) *Transformer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Transformer{reg: reg, rng: rng}
}

// Transform normalizes raw with a throwaway Transformer.
func Transform(t EntityType, raw domain.RawRecord, reg Resolver) (domain.Record, error) {
	return NewTransformer(reg, nil).Transform(t, raw)
}

// Resolver exposes the registry for shape functions.
func (tr *Transformer) Resolver() Resolver { return tr.reg }

// Obfuscate offsets exact within domain.ObfuscationRadius on each axis.
func (tr *Transformer) Obfuscate(exact domain.Coordinates) domain.Coordinates {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return domain.Obfuscate(exact, tr.rng)
}

// Transform copies declared fields, rewrites non-deferred references and
// applies the type's shape function. Unknown raw fields are ignored.
func (tr *Transformer) Transform(t EntityType, raw domain.RawRecord) (domain.Record, error) {
	rec := domain.Record{Table: t.Table}
	for _, f := range t.Fields {
		v, present := raw[f.Name]
		if !present || v == nil {
			if f.Required {
				return domain.Record{}, malformedf("%s: missing required field %q", t.Name, f.Name)
			}
			continue
		}
		val, err := coerce(v, f.Kind)
		if err != nil {
			return domain.Record{}, malformed(err, fmt.Sprintf("%s field %q", t.Name, f.Name))
		}
		rec.Set(f.column(), val)
	}
	for _, ref := range t.References {
		if ref.Deferred {
			continue
		}
		key, ok, err := tr.resolveReference(t.Name, ref, raw)
		if err != nil {
			return domain.Record{}, err
		}
		if ok {
			rec.Set(ref.Column, key)
		}
	}
	if t.Shape != nil {
		if err := t.Shape(&rec, raw, tr); err != nil {
			return domain.Record{}, err
		}
	}
	return rec, nil
}

// resolveReference returns the store key for ref. ok is false when an
// optional reference is absent or unresolved.
func (tr *Transformer) resolveReference(owner domain.EntityType, ref Reference, raw domain.RawRecord) (domain.Key, bool, error) {
	sourceKey, field, present, err := referenceValue(ref, raw)
	if err != nil {
		return domain.Key{}, false, malformed(err, fmt.Sprintf("%s reference %q", owner, field))
	}
	if !present {
		if ref.Required {
			return domain.Key{}, false, unresolvedf("%s: missing required reference %s to %s", owner, ref.Field, ref.Target)
		}
		return domain.Key{}, false, nil
	}
	key, found := tr.reg.Resolve(ref.Target, sourceKey)
	if !found {
		if ref.Required {
			return domain.Key{}, false, unresolvedf("%s: %s %q does not resolve to a loaded %s", owner, field, sourceKey, ref.Target)
		}
		return domain.Key{}, false, nil
	}
	return key, true, nil
}

// referenceValue picks the first present field of ref, falling back to the
// derivation. field names where the value came from.
func referenceValue(ref Reference, raw domain.RawRecord) (value, field string, present bool, err error) {
	fields := append([]string{ref.Field}, ref.Fallbacks...)
	for _, name := range fields {
		v, ok, err := keyString(raw[name], ref.Numeric)
		if err != nil {
			return "", name, false, err
		}
		if ok {
			return v, name, true, nil
		}
	}
	if ref.Derive != nil {
		if v, ok := ref.Derive(raw); ok {
			return v, ref.Field + " (derived)", true, nil
		}
	}
	return "", ref.Field, false, nil
}

// keyString normalizes a key-shaped value. Absent, null and blank values
// report ok=false. Numbers are accepted only when numeric is set.
func keyString(v any, numeric bool) (string, bool, error) {
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case string:
		s := strings.TrimSpace(val)
		return s, s != "", nil
	case json.Number, float64, int, int64:
		if !numeric {
			return "", false, fmt.Errorf("numeric value %v where a string key is required", val)
		}
		if num, ok := val.(json.Number); ok && isDigits(string(num)) {
			return string(num), true, nil
		}
		n, err := intValue(val)
		if err != nil {
			return "", false, err
		}
		return strconv.FormatInt(n, 10), true, nil
	default:
		return "", false, fmt.Errorf("unsupported key type %T", v)
	}
}

func coerce(v any, kind FieldKind) (any, error) {
	switch kind {
	case FieldString:
		return stringValue(v)
	case FieldID:
		s, ok, err := keyString(v, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("blank identifier")
		}
		return s, nil
	case FieldInt:
		return intValue(v)
	case FieldFloat:
		return floatValue(v)
	case FieldBool:
		return boolValue(v)
	case FieldTime:
		return timeValue(v)
	default:
		return nil, fmt.Errorf("unknown field kind %d", kind)
	}
}

func stringValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func intValue(v any) (int64, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", val.String())
		}
		return integral(f)
	case float64:
		return integral(val)
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// isDigits reports whether s is a plain decimal integer literal.
func isDigits(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// integral converts f when it is a whole number inside the int64 range.
// float64(math.MaxInt64) rounds up to 2^63, hence the inclusive bound.
func integral(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	return int64(f), nil
}

func floatValue(v any) (float64, error) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", val.String())
		}
		return f, nil
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func boolValue(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return b, nil
}

func timeValue(v any) (string, error) {
	s, err := stringValue(v)
	if err != nil {
		return "", err
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("expected RFC 3339 timestamp: %w", err)
	}
	return ts.UTC().Format(time.RFC3339Nano), nil
}
