package seed

import (
	"slices"
	"strings"

	"estatehub/pkg/domain"
)

// Plan is a validated load order. Types load in Order and are wiped in
// Reverse.
type Plan struct {
	types []EntityType
	index map[domain.EntityType]int
}

// NewPlan validates types as a load order. When tables is non-empty every
// type must map to exactly one declared table with a matching key strategy,
// and every reference column must be a foreign key onto the target's table.
func NewPlan(types []EntityType, tables []domain.TableSpec) (*Plan, error) {
	p := &Plan{types: slices.Clone(types), index: make(map[domain.EntityType]int, len(types))}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(tables) > 0 {
		if err := p.checkTables(tables); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Order returns the types in load order.
func (p *Plan) Order() []EntityType { return slices.Clone(p.types) }

// Reverse returns the types children-first, the order used for wiping.
func (p *Plan) Reverse() []EntityType {
	out := slices.Clone(p.types)
	slices.Reverse(out)
	return out
}

// Lookup returns the type named name.
func (p *Plan) Lookup(name domain.EntityType) (EntityType, bool) {
	i, ok := p.index[name]
	if !ok {
		return EntityType{}, false
	}
	return p.types[i], true
}

// Validate asserts that names and tables are unique and that every
// non-deferred reference targets a type loaded earlier.
func (p *Plan) Validate() error {
	clear(p.index)
	tables := make(map[string]domain.EntityType, len(p.types))
	for i, t := range p.types {
		if t.Name == "" {
			return configurationErrorf("entity type at position %d has no name", i)
		}
		if _, dup := p.index[t.Name]; dup {
			return configurationErrorf("entity type %s declared twice", t.Name)
		}
		if t.Table == "" {
			return configurationErrorf("entity type %s has no store table", t.Name)
		}
		if other, dup := tables[t.Table]; dup {
			return configurationErrorf("entity types %s and %s share table %s", other, t.Name, t.Table)
		}
		tables[t.Table] = t.Name
		p.index[t.Name] = i
	}
	for i, t := range p.types {
		for _, ref := range t.References {
			if ref.Column == "" {
				return configurationErrorf("%s reference %s has no column", t.Name, ref.Field)
			}
			j, known := p.index[ref.Target]
			if !known {
				return configurationErrorf("%s references unknown entity type %s", t.Name, ref.Target)
			}
			if ref.Deferred {
				if ref.Required {
					return configurationErrorf("%s deferred reference %s cannot be required", t.Name, ref.Field)
				}
				continue
			}
			if j >= i {
				return configurationErrorf("%s references %s, which is not loaded before it", t.Name, ref.Target)
			}
		}
	}
	return nil
}

func (p *Plan) checkTables(specs []domain.TableSpec) error {
	for _, t := range p.types {
		spec, ok := domain.LookupTable(specs, t.Table)
		if !ok {
			return configurationErrorf("entity type %s: store has no table %s", t.Name, t.Table)
		}
		if spec.Keys != t.Keys {
			return configurationErrorf("entity type %s: table %s uses %s keys, plan declares %s", t.Name, t.Table, spec.Keys, t.Keys)
		}
		for _, ref := range t.References {
			target := p.types[p.index[ref.Target]]
			if !slices.Contains(spec.ForeignKeys, domain.ForeignKey{Column: ref.Column, RefTable: target.Table}) {
				return configurationErrorf("entity type %s: %s.%s is not a foreign key onto %s", t.Name, t.Table, ref.Column, target.Table)
			}
		}
	}
	return nil
}

// TopoSort orders types so that every non-deferred reference target precedes
// its referrer. Ties keep declaration order. A cycle is a configuration error
// naming its members.
func TopoSort(types []EntityType) ([]domain.EntityType, error) {
	pos := make(map[domain.EntityType]int, len(types))
	for i, t := range types {
		pos[t.Name] = i
	}
	indegree := make([]int, len(types))
	dependents := make([][]int, len(types))
	for i, t := range types {
		for _, ref := range t.References {
			if ref.Deferred {
				continue
			}
			j, ok := pos[ref.Target]
			if !ok {
				return nil, configurationErrorf("%s references unknown entity type %s", t.Name, ref.Target)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}
	done := make([]bool, len(types))
	order := make([]domain.EntityType, 0, len(types))
	for len(order) < len(types) {
		next := -1
		for i := range types {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var cycle []string
			for i, t := range types {
				if !done[i] {
					cycle = append(cycle, string(t.Name))
				}
			}
			return nil, configurationErrorf("reference cycle among %s; mark one side Deferred", strings.Join(cycle, ", "))
		}
		done[next] = true
		order = append(order, types[next].Name)
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return order, nil
}
