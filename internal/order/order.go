// Package order computes and validates dependency-respecting execution
// orders across the entity mappings of a definition.
package order

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/rowloom/rowloom/internal/mapping"
	"github.com/rowloom/rowloom/internal/schema"
)

// CycleError indicates the dependency graph contains a cycle.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(c, " -> ")
	}
	return "circular dependency between entity mappings: " + strings.Join(parts, "; ")
}

// Key names an entity mapping in the dependency graph. Pivot syncs are
// keyed by their pivot path so they never collide with entity mappings.
func Key(em mapping.EntityMapping) string {
	if em.Pivot != "" {
		return em.Pivot
	}
	return em.Entity
}

// Dependencies returns, per entity mapping, the entities it depends on:
// mappings whose target entity is referenced by one of its relations, or by
// either endpoint of its pivot sync. Only dependencies actually present in
// the definition count.
func Dependencies(def *mapping.Definition, catalog *schema.Catalog) map[string][]string {
	present := make(map[string]bool, len(def.Entities))
	for _, em := range def.Entities {
		if em.Pivot == "" {
			present[em.Entity] = true
		}
	}

	deps := make(map[string][]string, len(def.Entities))
	for _, em := range def.Entities {
		seen := make(map[string]bool)
		name := Key(em)

		add := func(target string) {
			if target != em.Entity && present[target] && !seen[target] {
				seen[target] = true
				deps[name] = append(deps[name], target)
			}
		}

		if em.Pivot != "" {
			if owner, relName, ok := strings.Cut(em.Pivot, "."); ok {
				add(owner)
				if rel := catalog.Relation(owner, relName); rel != nil {
					add(rel.Related)
				}
			}
			continue
		}

		for _, cm := range em.Columns {
			p, err := mapping.ParsePath(cm.Target)
			if err != nil || p.Relation == "" {
				continue
			}
			if rel := catalog.Relation(em.Entity, p.Relation); rel != nil {
				add(rel.Related)
			}
		}
	}
	return deps
}

// Suggest assigns execution orders with Kahn's algorithm: dependencies
// always receive a strictly lower order than their dependents. Orders are
// 1-based and unique. A cycle returns a CycleError listing the involved
// mappings.
func Suggest(def *mapping.Definition, catalog *schema.Catalog) (map[string]int, error) {
	deps := Dependencies(def, catalog)

	inDegree := make(map[string]int, len(def.Entities))
	dependents := make(map[string][]string)
	for _, em := range def.Entities {
		name := Key(em)
		inDegree[name] = len(deps[name])
		for _, d := range deps[name] {
			dependents[d] = append(dependents[d], name)
		}
	}

	var queue []string
	for e, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, e)
		}
	}
	sort.Strings(queue)

	orders := make(map[string]int, len(inDegree))
	next := 1
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		orders[node] = next
		next++

		var released []string
		for _, dep := range dependents[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Strings(released)
		queue = append(queue, released...)
	}

	if len(orders) != len(inDegree) {
		return orders, &CycleError{Cycles: DetectCircular(def, catalog)}
	}
	return orders, nil
}

// DetectCircular finds dependency cycles with a DFS that marks
// recursion-stack membership; every back-edge yields the cycle path.
func DetectCircular(def *mapping.Definition, catalog *schema.Catalog) [][]string {
	deps := Dependencies(def, catalog)

	names := make([]string, 0, len(def.Entities))
	for _, em := range def.Entities {
		names = append(names, Key(em))
	}
	sort.Strings(names)

	var cycles [][]string
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	var path []string

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		inStack[node] = true
		path = append(path, node)

		for _, dep := range deps[node] {
			if !visited[dep] {
				dfs(dep)
			} else if inStack[dep] {
				start := -1
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := make([]string, len(path)-start)
					copy(cycle, path[start:])
					cycles = append(cycles, cycle)
				}
			}
		}

		path = path[:len(path)-1]
		inStack[node] = false
	}

	for _, name := range names {
		if !visited[name] {
			dfs(name)
		}
	}
	return cycles
}

// Validate checks a definition's assigned execution orders against the
// dependency facts, reporting every violation: duplicate orders and any
// dependency ordered at or after its dependent.
func Validate(def *mapping.Definition, catalog *schema.Catalog) error {
	var errs *multierror.Error

	orders := make(map[string]int, len(def.Entities))
	byOrder := make(map[int]string)
	for _, em := range def.Entities {
		name := Key(em)
		orders[name] = em.ExecutionOrder
		if em.ExecutionOrder == 0 {
			// unassigned, Sorted falls back to Suggest
			continue
		}
		if other, dup := byOrder[em.ExecutionOrder]; dup {
			errs = multierror.Append(errs, fmt.Errorf(
				"entity mappings %q and %q share execution order %d",
				other, name, em.ExecutionOrder))
		}
		byOrder[em.ExecutionOrder] = name
	}

	deps := Dependencies(def, catalog)
	for _, em := range def.Entities {
		name := Key(em)
		if orders[name] == 0 {
			continue
		}
		for _, dep := range deps[name] {
			if orders[dep] == 0 {
				continue
			}
			if orders[dep] >= orders[name] {
				errs = multierror.Append(errs, fmt.Errorf(
					"entity mapping %q (order %d) depends on %q (order %d), which must come first",
					name, orders[name], dep, orders[dep]))
			}
		}
	}

	return errs.ErrorOrNil()
}

// Sorted returns the definition's entity mappings in execution order.
// Mappings without an explicit order are ordered by Suggest first.
func Sorted(def *mapping.Definition, catalog *schema.Catalog) ([]mapping.EntityMapping, error) {
	orders := make(map[string]int, len(def.Entities))
	explicit := true
	for _, em := range def.Entities {
		if em.ExecutionOrder == 0 {
			explicit = false
			break
		}
		orders[Key(em)] = em.ExecutionOrder
	}

	if !explicit {
		suggested, err := Suggest(def, catalog)
		if err != nil {
			return nil, err
		}
		orders = suggested
	}

	sorted := make([]mapping.EntityMapping, len(def.Entities))
	copy(sorted, def.Entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return orders[Key(sorted[i])] < orders[Key(sorted[j])]
	})
	return sorted, nil
}
