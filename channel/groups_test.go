package channel

import (
	"testing"

	"github.com/jangala-dev/comsrv/config"
)

func TestBuildPollGroupsMergesAdjacentRanges(t *testing.T) {
	points := []config.ChannelPoint{
		{PointID: 0, FunctionCode: 3, Address: 100, Quantity: 1},
		{PointID: 1, FunctionCode: 3, Address: 101, Quantity: 1},
		{PointID: 2, FunctionCode: 3, Address: 102, Quantity: 2},
	}
	groups := buildPollGroups(1, points)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1 merged group", len(groups))
	}
	g := groups[0]
	if g.startAddress != 100 || g.quantity != 4 {
		t.Errorf("merged group = start %d quantity %d, want start 100 quantity 4", g.startAddress, g.quantity)
	}
	if len(g.points) != 3 {
		t.Errorf("merged group has %d points, want 3", len(g.points))
	}
}

func TestBuildPollGroupsSeparatesDisjointRanges(t *testing.T) {
	points := []config.ChannelPoint{
		{PointID: 0, FunctionCode: 3, Address: 100, Quantity: 1},
		{PointID: 1, FunctionCode: 3, Address: 500, Quantity: 1},
	}
	groups := buildPollGroups(1, points)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 disjoint groups", len(groups))
	}
}

func TestBuildPollGroupsSeparatesByFunctionCode(t *testing.T) {
	points := []config.ChannelPoint{
		{PointID: 0, FunctionCode: 3, Address: 100, Quantity: 1},
		{PointID: 1, FunctionCode: 4, Address: 100, Quantity: 1},
	}
	groups := buildPollGroups(1, points)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want one per function code", len(groups))
	}
}

func TestBuildPollGroupsSplitsOverWireLimit(t *testing.T) {
	points := make([]config.ChannelPoint, 0, 200)
	for i := uint16(0); i < 200; i++ {
		points = append(points, config.ChannelPoint{PointID: uint32(i), FunctionCode: 3, Address: i, Quantity: 1})
	}
	groups := buildPollGroups(1, points)
	if len(groups) != 2 {
		t.Fatalf("got %d groups for 200 contiguous registers, want 2 (split at 125)", len(groups))
	}
	total := 0
	for _, g := range groups {
		if g.quantity > maxQuantity(3) {
			t.Errorf("group quantity %d exceeds wire limit %d", g.quantity, maxQuantity(3))
		}
		total += len(g.points)
	}
	if total != 200 {
		t.Errorf("split groups cover %d points, want 200", total)
	}
}

func TestToBatchGroupPreservesSlotOrder(t *testing.T) {
	g := pollGroup{
		functionCode: 3,
		slaveID:      1,
		startAddress: 100,
		quantity:     2,
		points: []config.ChannelPoint{
			{PointID: 5, Address: 100},
			{PointID: 6, Address: 101},
		},
	}
	bg := g.toBatchGroup()
	if len(bg.ExpectedSlots) != 2 || bg.ExpectedSlots[0] != 5 || bg.ExpectedSlots[1] != 6 {
		t.Errorf("ExpectedSlots = %v, want [5 6]", bg.ExpectedSlots)
	}
}
