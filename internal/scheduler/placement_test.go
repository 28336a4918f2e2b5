package scheduler

import "testing"

func onlineNode(host string, port int, cpu float64) *Node {
	return &Node{Host: host, Port: port, Status: NodeOnline, CPUPercent: cpu}
}

func TestSelectNodePrefersLowestCPU(t *testing.T) {
	candidates := []*Node{
		onlineNode("a", 1, 70),
		onlineNode("b", 2, 20),
		onlineNode("c", 3, 50),
	}

	got := selectNode(candidates, 80, "")
	if got == nil || got.Host != "b" {
		t.Fatalf("expected node b (lowest CPU), got %+v", got)
	}
}

func TestSelectNodeTieBreaksByRegistrationOrder(t *testing.T) {
	candidates := []*Node{
		onlineNode("a", 1, 30),
		onlineNode("b", 2, 30),
	}

	got := selectNode(candidates, 80, "")
	if got == nil || got.Host != "a" {
		t.Fatalf("expected first-registered node a on a tie, got %+v", got)
	}
}

func TestSelectNodeExcludesNodesOverCeiling(t *testing.T) {
	candidates := []*Node{
		onlineNode("a", 1, 90),
		onlineNode("b", 2, 85),
	}

	got := selectNode(candidates, 80, "")
	if got != nil {
		t.Fatalf("expected no candidate under ceiling, got %+v", got)
	}
}

func TestSelectNodeFallsBackToDegraded(t *testing.T) {
	degraded := &Node{Host: "a", Port: 1, Status: NodeDegraded, CPUPercent: 10}
	candidates := []*Node{degraded}

	got := selectNode(candidates, 80, "")
	if got == nil || got.Host != "a" {
		t.Fatalf("expected degraded node as fallback, got %+v", got)
	}
}

func TestSelectNodeIgnoresOfflineNodes(t *testing.T) {
	offline := &Node{Host: "a", Port: 1, Status: NodeOffline, CPUPercent: 5}
	candidates := []*Node{offline}

	got := selectNode(candidates, 80, "")
	if got != nil {
		t.Fatalf("expected no candidate from offline-only set, got %+v", got)
	}
}

func TestSelectNodeExcludeSkippedWhenOtherCandidateExists(t *testing.T) {
	candidates := []*Node{
		onlineNode("a", 1, 50),
		onlineNode("b", 2, 10),
	}

	got := selectNode(candidates, 80, "a:1")
	if got == nil || got.Host != "b" {
		t.Fatalf("expected excluded node skipped in favor of b, got %+v", got)
	}
}

func TestSelectNodeExcludeAllowedWhenOnlyCandidate(t *testing.T) {
	candidates := []*Node{onlineNode("a", 1, 50)}

	got := selectNode(candidates, 80, "a:1")
	if got == nil || got.Host != "a" {
		t.Fatalf("expected excluded node allowed as only candidate, got %+v", got)
	}
}
