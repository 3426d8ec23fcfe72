// Package routing holds the immutable C2M/A2C maps loaded at startup
// (§3, §4.J): which channel point feeds which instance measurement,
// and which instance action point writes back to which channel point.
package routing

import (
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/errs"
)

type c2mKey struct {
	channelID uint32
	pointType config.PointType
	pointID   uint32
}

type a2cKey struct {
	instanceID    uint32
	actionPointID uint32
}

// MeasurementTarget is where a channel-side measurement lands.
type MeasurementTarget struct {
	InstanceID         uint32
	MeasurementPointID uint32
}

// ChannelTarget is where an instance-side action write lands.
type ChannelTarget struct {
	ChannelID        uint32
	ChannelPointType config.PointType
	ChannelPointID   uint32
}

// Cache is the frozen routing table (§4.J). Safe for concurrent reads
// from any number of channel pipelines and the rule executor; never
// mutated after Build.
type Cache struct {
	c2m map[c2mKey]MeasurementTarget
	a2c map[a2cKey]ChannelTarget
}

// Build freezes a RoutingConfig into a Cache, rejecting a channel
// point routed to two different measurement points (§3 invariant).
func Build(cfg config.RoutingConfig) (*Cache, error) {
	c := &Cache{
		c2m: make(map[c2mKey]MeasurementTarget, len(cfg.C2M)),
		a2c: make(map[a2cKey]ChannelTarget, len(cfg.A2C)),
	}
	for _, e := range cfg.C2M {
		k := c2mKey{e.ChannelID, e.ChannelPointType, e.ChannelPointID}
		if existing, ok := c.c2m[k]; ok && existing != (MeasurementTarget{InstanceID: e.InstanceID, MeasurementPointID: e.MeasurementPointID}) {
			return nil, errs.New(errs.Config, "Build", "channel-point routed to two different measurement points")
		}
		c.c2m[k] = MeasurementTarget{InstanceID: e.InstanceID, MeasurementPointID: e.MeasurementPointID}
	}
	for _, e := range cfg.A2C {
		k := a2cKey{e.InstanceID, e.ActionPointID}
		c.a2c[k] = ChannelTarget{ChannelID: e.ChannelID, ChannelPointType: e.ChannelPointType, ChannelPointID: e.ChannelPointID}
	}
	return c, nil
}

// C2M resolves a channel-side point to its instance-side measurement
// target. The second return is false if no route is configured.
func (c *Cache) C2M(channelID uint32, pointType config.PointType, pointID uint32) (MeasurementTarget, bool) {
	t, ok := c.c2m[c2mKey{channelID, pointType, pointID}]
	return t, ok
}

// A2C resolves an instance-side action point to its channel-side
// write target.
func (c *Cache) A2C(instanceID, actionPointID uint32) (ChannelTarget, bool) {
	t, ok := c.a2c[a2cKey{instanceID, actionPointID}]
	return t, ok
}

// C2MIter calls fn for every configured C2M entry, in unspecified
// order. Used once at startup to build the ChannelToSlotIndex (§4.F).
func (c *Cache) C2MIter(fn func(channelID uint32, pointType config.PointType, pointID uint32, target MeasurementTarget)) {
	for k, v := range c.c2m {
		fn(k.channelID, k.pointType, k.pointID, v)
	}
}
