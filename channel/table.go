package channel

import "github.com/jangala-dev/comsrv/config"

// registerLayout is the per-(function_code) metadata a RegisterTable
// records: how many registers a point occupies on the wire,
// independent of how its engineering value is decoded.
type registerLayout struct {
	functionCode byte
	quantity     uint16
}

// RegisterTable is the small in-memory table mapping (channel_id,
// function_code) -> register layout metadata. Built once at pipeline
// startup from ChannelConfig's point lists; buildPollGroups does not
// consult it, and MaxQuantity is its only query.
type RegisterTable struct {
	channelID uint32
	byFunc    map[byte]registerLayout
}

// BuildRegisterTable scans a channel's measurement and action points
// and records, per function code, the widest register span its points
// occupy.
func BuildRegisterTable(channelID uint32, measurement, action []config.ChannelPoint) *RegisterTable {
	t := &RegisterTable{channelID: channelID, byFunc: make(map[byte]registerLayout)}
	for _, p := range measurement {
		t.observe(p)
	}
	for _, p := range action {
		t.observe(p)
	}
	return t
}

func (t *RegisterTable) observe(p config.ChannelPoint) {
	q := p.Quantity
	if q == 0 {
		q = 1
	}
	existing, ok := t.byFunc[p.FunctionCode]
	if !ok || q > existing.quantity {
		t.byFunc[p.FunctionCode] = registerLayout{functionCode: p.FunctionCode, quantity: q}
	}
}

// MaxQuantity returns the widest single-point register span observed
// for a function code, or 1 if the function code is unknown.
func (t *RegisterTable) MaxQuantity(functionCode byte) uint16 {
	if l, ok := t.byFunc[functionCode]; ok {
		return l.quantity
	}
	return 1
}
