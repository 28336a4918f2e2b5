package scheduler

const cpuPlacementCeiling = 80.0

// selectNode implements the placement policy: among nodes with status
// Online and CPU% < ceiling, pick the lowest observed CPU%, ties broken
// by registration order (candidates is already in registration order).
// If no Online candidate exists, Degraded nodes under the same ceiling
// are considered — spec.md §9 open question 2, resolved permissively
// only as a fallback so Online nodes are always preferred.
//
// exclude, when non-empty, is skipped unless it is the only candidate —
// used by the recovery engine to avoid re-placing onto the node that
// just failed, without starving a single-node deployment.
func selectNode(candidates []*Node, ceiling float64, exclude string) *Node {
	best := selectFromStatus(candidates, NodeOnline, ceiling, exclude)
	if best != nil {
		return best
	}
	return selectFromStatus(candidates, NodeDegraded, ceiling, exclude)
}

func selectFromStatus(candidates []*Node, status NodeStatus, ceiling float64, exclude string) *Node {
	var best *Node
	var bestExcluded *Node

	for _, n := range candidates {
		if n.Status != status || n.CPUPercent >= ceiling {
			continue
		}
		if n.Key() == exclude {
			if bestExcluded == nil || n.CPUPercent < bestExcluded.CPUPercent {
				bestExcluded = n
			}
			continue
		}
		if best == nil || n.CPUPercent < best.CPUPercent {
			best = n
		}
	}

	if best != nil {
		return best
	}
	// Only the excluded node qualifies — allow it so a single-node
	// deployment can still recover onto itself once healthy again.
	return bestExcluded
}
