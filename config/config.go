// Package config defines the already-parsed configuration objects the
// core consumes: channels, instances, rules, and the routing cache
// that ties them together. Loading JSON/SQLite into these shapes is
// outside this package's scope (§1); validation here only catches
// structural mistakes the core itself must not tolerate.
package config

import (
	"time"

	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/protocol/modbus"
	"github.com/jangala-dev/comsrv/x/mathx"
)

// PointType distinguishes measurement (read-side) from action
// (write-side) points, both on channels and on instances.
type PointType int

const (
	Measurement PointType = 0
	Action      PointType = 1
)

func (t PointType) String() string {
	if t == Action {
		return "action"
	}
	return "measurement"
}

// DataType names how raw registers decode into an engineering value.
type DataType string

const (
	DataTypeBool    DataType = "bool"
	DataTypeUint16  DataType = "uint16"
	DataTypeInt16   DataType = "int16"
	DataTypeUint32  DataType = "uint32"
	DataTypeInt32   DataType = "int32"
	DataTypeFloat32 DataType = "float32"
	DataTypeFloat64 DataType = "float64"
)

// ChannelPoint is one telemetry or control point attached to a
// channel: protocol address plus the scale/offset/decoding rule
// needed to turn raw registers into an engineering value (§3, §6).
type ChannelPoint struct {
	PointID      uint32
	FunctionCode byte
	Address      uint16
	Quantity     uint16 // register/coil count this point occupies
	DataType     DataType
	ByteOrder    modbus.ByteOrder
	Scale        float64
	Offset       float64
}

// Protocol names the channel's wire protocol. The core implements
// Modbus TCP and RTU; other tags are accepted structurally but served
// by adapters outside this spec (§1, §9).
type Protocol string

const (
	ProtocolModbusTCP Protocol = "modbus_tcp"
	ProtocolModbusRTU Protocol = "modbus_rtu"
)

// ChannelConfig is one logical device connection (§3).
type ChannelConfig struct {
	ID   uint32
	Name string

	Protocol Protocol
	SlaveID  byte

	// Modbus TCP
	Host string
	Port int

	// Modbus RTU
	SerialPort string
	BaudRate   int
	DataBits   int
	StopBits   int
	Parity     string

	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	RetryCount         int
	IOErrorThreshold   int
	PollInterval       time.Duration
	CommandQueueDepth  int
	MaxConsecutiveFail int
	CooldownDuration   time.Duration

	Measurement []ChannelPoint
	Action      []ChannelPoint
}

// Validate enforces the per-(channel,direction) point id uniqueness
// invariant (§3) and the structural parameters each transport needs.
func (c *ChannelConfig) Validate() error {
	if c.ID == 0 {
		return errs.New(errs.Config, "ChannelConfig.Validate", "channel id must be non-zero")
	}
	switch c.Protocol {
	case ProtocolModbusTCP:
		if c.Host == "" || c.Port == 0 {
			return errs.New(errs.Config, "ChannelConfig.Validate", "modbus_tcp channel requires host and port")
		}
	case ProtocolModbusRTU:
		if c.SerialPort == "" || c.BaudRate == 0 {
			return errs.New(errs.Config, "ChannelConfig.Validate", "modbus_rtu channel requires serial_port and baud_rate")
		}
	default:
		return errs.New(errs.Config, "ChannelConfig.Validate", "unsupported protocol: "+string(c.Protocol))
	}
	if err := validateUniquePointIDs(c.Measurement); err != nil {
		return err
	}
	if err := validateUniquePointIDs(c.Action); err != nil {
		return err
	}
	c.RetryCount = mathx.Clamp(c.RetryCount, 0, 10)
	c.IOErrorThreshold = mathx.Clamp(c.IOErrorThreshold, 1, 100)
	return nil
}

func validateUniquePointIDs(points []ChannelPoint) error {
	seen := make(map[uint32]struct{}, len(points))
	for _, p := range points {
		if _, ok := seen[p.PointID]; ok {
			return errs.New(errs.Config, "validateUniquePointIDs", "duplicate point_id within channel direction")
		}
		seen[p.PointID] = struct{}{}
	}
	return nil
}

// InstanceConfig is a logical aggregation of measurement and action
// points, independent of channel wiring (§3).
type InstanceConfig struct {
	ID                  uint32
	Name                string
	MeasurementPointIDs []uint32
	ActionPointIDs      []uint32
}

// RoutingEntry is one configured C2M mapping: a channel-side point
// routed to an instance-side measurement point (§3).
type RoutingEntryC2M struct {
	ChannelID          uint32
	ChannelPointType   PointType
	ChannelPointID     uint32
	InstanceID         uint32
	MeasurementPointID uint32
}

// RoutingEntryA2C is one configured A2C mapping: an instance-side
// action point routed to a channel-side write target (§3).
type RoutingEntryA2C struct {
	InstanceID       uint32
	ActionPointID    uint32
	ChannelID        uint32
	ChannelPointType PointType
	ChannelPointID   uint32
}

// RoutingConfig is the as-configured routing table before it is
// frozen into the runtime RoutingCache (§3, §4.J).
type RoutingConfig struct {
	C2M []RoutingEntryC2M
	A2C []RoutingEntryA2C
}

// RTDBConfig sizes the mapped file at creation time (§4.E).
type RTDBConfig struct {
	Path                 string
	MaxInstances         int
	MaxPointsPerInstance int
	HeartbeatTimeout     time.Duration
}
