package config

import "testing"

func TestValidateRejectsZeroID(t *testing.T) {
	c := &ChannelConfig{Protocol: ProtocolModbusTCP, Host: "h", Port: 1}
	if err := c.Validate(); err == nil {
		t.Fatal("expected zero channel id to be rejected")
	}
}

func TestValidateRequiresHostAndPortForTCP(t *testing.T) {
	c := &ChannelConfig{ID: 1, Protocol: ProtocolModbusTCP}
	if err := c.Validate(); err == nil {
		t.Fatal("expected missing host/port to be rejected")
	}
}

func TestValidateRequiresSerialPortAndBaudForRTU(t *testing.T) {
	c := &ChannelConfig{ID: 1, Protocol: ProtocolModbusRTU}
	if err := c.Validate(); err == nil {
		t.Fatal("expected missing serial_port/baud_rate to be rejected")
	}
}

func TestValidateRejectsUnsupportedProtocol(t *testing.T) {
	c := &ChannelConfig{ID: 1, Protocol: "bacnet"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected unsupported protocol to be rejected")
	}
}

func TestValidateRejectsDuplicatePointIDsWithinDirection(t *testing.T) {
	c := &ChannelConfig{
		ID: 1, Protocol: ProtocolModbusTCP, Host: "h", Port: 502,
		Measurement: []ChannelPoint{{PointID: 0}, {PointID: 0}},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected duplicate point ids to be rejected")
	}
}

func TestValidateAllowsSamePointIDAcrossDirections(t *testing.T) {
	c := &ChannelConfig{
		ID: 1, Protocol: ProtocolModbusTCP, Host: "h", Port: 502,
		Measurement: []ChannelPoint{{PointID: 0}},
		Action:      []ChannelPoint{{PointID: 0}},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected measurement/action to have independent point-id namespaces, got %v", err)
	}
}

func TestValidateClampsRetryAndErrorThreshold(t *testing.T) {
	c := &ChannelConfig{
		ID: 1, Protocol: ProtocolModbusTCP, Host: "h", Port: 502,
		RetryCount:       -3,
		IOErrorThreshold: 0,
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want clamped to 0", c.RetryCount)
	}
	if c.IOErrorThreshold != 1 {
		t.Errorf("IOErrorThreshold = %d, want clamped to 1", c.IOErrorThreshold)
	}
}
