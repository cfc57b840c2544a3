// Package fanout implements the attribute subscription fan-out: for
// every bridged endpoint the registry accepts, subscribe to a fixed
// allow-list of (cluster, attribute) pairs and forward changes to the
// frontend outbound contract. Subscription is best-effort — a failure
// to subscribe one attribute is logged and counted, other attributes
// and endpoints continue.
package fanout

import (
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
	"github.com/matterbridge-go/matterbridge/internal/metrics"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// AllowList is the fixed set of (cluster, attribute) pairs eligible
// for subscription on a bridged endpoint, per spec.md §4.6.
var AllowList = [][2]string{
	{"LevelControl", "CurrentLevel"},
	{"ColorControl", "CurrentHue"},
	{"ColorControl", "CurrentSaturation"},
	{"ColorControl", "ColorTemperatureMireds"},
	{"OnOff", "OnOff"},
	{"Thermostat", "LocalTemperature"},
	{"Thermostat", "OccupiedHeatingSetpoint"},
	{"Thermostat", "OccupiedCoolingSetpoint"},
	{"WindowCovering", "CurrentPositionLiftPercent100ths"},
	{"DoorLock", "LockState"},
	{"FanControl", "PercentCurrent"},
	{"BooleanState", "StateValue"},
	{"OccupancySensing", "Occupancy"},
	{"IlluminanceMeasurement", "MeasuredValue"},
	{"TemperatureMeasurement", "MeasuredValue"},
	{"RelativeHumidityMeasurement", "MeasuredValue"},
	{"PressureMeasurement", "MeasuredValue"},
	{"FlowMeasurement", "MeasuredValue"},
	{"TotalVolatileOrganicCompoundsConcentrationMeasurement", "MeasuredValue"},
	{"AirQuality", "AirQuality"},
	{"SmokeCoAlarm", "SmokeState"},
	{"ModeSelect", "CurrentMode"},
	{"ServiceArea", "CurrentArea"},
	{"RvcRunMode", "CurrentMode"},
	{"RvcCleanMode", "CurrentMode"},
	{"RvcOperationalState", "OperationalState"},
}

// accessoryOnlyAttribute is subscribed in addition to AllowList for
// accessory-mode plugins in childbridge mode.
var accessoryOnlyAttribute = [2]string{"BasicInformation", "Reachable"}

// bridgedOnlyAttribute is subscribed in addition to AllowList for
// bridged endpoints.
var bridgedOnlyAttribute = [2]string{"BridgedDeviceBasicInformation", "Reachable"}

// Fanout owns the notifier every subscription callback forwards to.
type Fanout struct {
	notifier frontend.Notifier
	metrics  *metrics.Metrics
}

// New returns a Fanout forwarding through notifier. metrics may be nil
// in tests.
func New(notifier frontend.Notifier, m *metrics.Metrics) *Fanout {
	return &Fanout{notifier: notifier, metrics: m}
}

// Subscribe walks ep and, one level into its children, subscribes
// every allow-listed (cluster, attribute) pair present on each
// endpoint. isAccessoryChildbridge selects the two conditional extra
// attributes. childEndpoints carries each child's own adapter endpoint
// handle, positionally parallel to meta.Children — a child must never
// be subscribed against the parent's handle, since that would either
// collide with the parent's subscription key or misattribute the
// parent's attribute changes to the child's identity.
func (f *Fanout) Subscribe(ep matteradapter.Endpoint, meta model.Endpoint, isAccessoryChildbridge bool, childEndpoints []matteradapter.Endpoint) {
	pairs := AllowList
	if isAccessoryChildbridge {
		pairs = append(append([][2]string{}, pairs...), accessoryOnlyAttribute)
	} else {
		pairs = append(append([][2]string{}, pairs...), bridgedOnlyAttribute)
	}

	f.subscribeEndpoint(ep, meta, pairs)

	// Children are walked exactly one level deep with the same
	// allow-list; grandchildren are not visited.
	for i, child := range meta.Children {
		if i >= len(childEndpoints) || childEndpoints[i] == nil {
			logger.Fanout().Warn().
				Str("plugin", child.PluginName).
				Str("serial", child.Serial).
				Msg("no adapter endpoint for child, skipping subscription")
			continue
		}
		f.subscribeEndpoint(childEndpoints[i], *child, pairs)
	}
}

func (f *Fanout) subscribeEndpoint(ep matteradapter.Endpoint, meta model.Endpoint, pairs [][2]string) {
	for _, pair := range pairs {
		cluster, attribute := pair[0], pair[1]
		if !ep.HasAttributeServer(cluster, attribute) {
			continue
		}
		err := ep.SubscribeAttribute(cluster, attribute, func(value interface{}) {
			f.forward(meta, cluster, attribute, value)
		})
		if err != nil {
			logger.Fanout().Warn().
				Str("plugin", meta.PluginName).
				Str("serial", meta.Serial).
				Str("cluster", cluster).
				Str("attribute", attribute).
				Err(err).
				Msg("failed to subscribe attribute, continuing")
			if f.metrics != nil {
				f.metrics.FanoutSubscribeErrors.Inc()
			}
		}
	}
}

func (f *Fanout) forward(meta model.Endpoint, cluster, attribute string, value interface{}) {
	if f.notifier == nil {
		return
	}
	f.notifier.AttributeChanged(frontend.AttributeChange{
		Plugin:         meta.PluginName,
		Serial:         meta.Serial,
		UniqueID:       meta.UniqueID,
		EndpointNumber: int(meta.EndpointID),
		EndpointID:     meta.EndpointID,
		Cluster:        cluster,
		Attribute:      attribute,
		Value:          value,
	})
}
