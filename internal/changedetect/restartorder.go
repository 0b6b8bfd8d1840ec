package changedetect

import "sort"

// DependencyGraph is service name -> the services it depends on, built
// from compose `depends_on` (array or map form, already normalized by
// internal/compose) and `links`.
type DependencyGraph map[string][]string

// Subgraph returns a copy of g restricted to the given subset of service
// names (and only the edges whose both ends are in the subset), per
// spec.md: "when caller requests a subset, filter the graph to the subset
// before sort."
func (g DependencyGraph) Subgraph(subset []string) DependencyGraph {
	keep := make(map[string]bool, len(subset))
	for _, s := range subset {
		keep[s] = true
	}
	out := make(DependencyGraph, len(subset))
	for name, deps := range g {
		if !keep[name] {
			continue
		}
		var filtered []string
		for _, d := range deps {
			if keep[d] {
				filtered = append(filtered, d)
			}
		}
		out[name] = filtered
	}
	return out
}

// RestartOrder topologically sorts g into batches of mutually-independent
// services: every service in batch N only depends on services in batches
// < N, so batch N can start/restart in any order (or in parallel) once all
// earlier batches are up. If a cycle is detected, every node still
// unplaced once no further progress can be made is emitted as one final
// batch, per spec.md's cycle-handling rule.
func RestartOrder(g DependencyGraph) [][]string {
	remaining := make(map[string][]string, len(g))
	for name, deps := range g {
		remaining[name] = append([]string(nil), deps...)
		// Ensure every dependency that isn't itself a key in g still gets a
		// node (a service may depend_on something outside the subset).
		for _, d := range deps {
			if _, ok := g[d]; !ok {
				if _, seen := remaining[d]; !seen {
					remaining[d] = nil
				}
			}
		}
	}

	var batches [][]string
	placed := make(map[string]bool, len(remaining))

	for len(placed) < len(remaining) {
		var batch []string
		for name, deps := range remaining {
			if placed[name] {
				continue
			}
			ready := true
			for _, d := range deps {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, name)
			}
		}

		if len(batch) == 0 {
			// Cycle: nothing is ready. Emit every remaining node as one
			// final batch rather than looping forever.
			var rest []string
			for name := range remaining {
				if !placed[name] {
					rest = append(rest, name)
				}
			}
			sort.Strings(rest)
			batches = append(batches, rest)
			break
		}

		sort.Strings(batch)
		batches = append(batches, batch)
		for _, name := range batch {
			placed[name] = true
		}
	}

	return batches
}
