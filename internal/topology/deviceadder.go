package topology

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// bridgeDeviceAdder attaches every plugin's bridged endpoints under
// the single shared aggregator (bridge mode). matter-mode endpoints
// attach directly under the root instead; server-mode endpoints get
// their own dedicated server node.
type bridgeDeviceAdder struct {
	builder *Builder
}

func (a bridgeDeviceAdder) AddBridgedEndpoint(ep *model.Endpoint) error {
	b := a.builder

	switch ep.Mode {
	case model.EndpointModeServer:
		return b.addDedicatedServerNode(ep)
	default:
		b.mu.Lock()
		handle, ok := b.nodes[BridgeStoreID]
		b.mu.Unlock()
		if !ok {
			return apperr.Matter(apperr.CodeAddEndpointError, "bridge server node not yet created", nil)
		}

		adapterEP, err := b.adapter.CreateAggregatorEndpoint(nextEndpointID())
		if err != nil {
			return apperr.Matter(apperr.CodeAddEndpointError, "create endpoint handle", err)
		}

		target := handle.aggregator
		if ep.Mode == model.EndpointModeMatter {
			// matter-mode endpoints attach directly under the root,
			// bypassing the aggregator.
			if err := handle.adapterNode.Add(adapterEP); err != nil {
				return apperr.Matter(apperr.CodeAddEndpointError, "attach matter-mode endpoint", err)
			}
		} else {
			if target == nil {
				return apperr.Matter(apperr.CodeAddEndpointError, "bridge aggregator not available", nil)
			}
			if err := target.Add(adapterEP); err != nil {
				return apperr.Matter(apperr.CodeAddEndpointError, "attach bridged endpoint", err)
			}
		}

		ep.EndpointID = adapterEP.ID()
		if err := b.devices.Set(ep); err != nil {
			return err
		}
		childEPs, err := b.attachChildren(adapterEP, ep)
		if err != nil {
			return err
		}
		b.fan.Subscribe(adapterEP, *ep, false, childEPs)
		if b.metrics != nil {
			b.metrics.EndpointsRegistered.Inc()
		}
		return nil
	}
}

func (a bridgeDeviceAdder) RemoveBridgedEndpoint(serial string) error {
	a.builder.devices.Remove("", serial)
	return nil
}

// childBridgeDeviceAdder attaches endpoints per-plugin: an
// AccessoryPlatform plugin's single device goes directly on its
// server node (enforced exactly-one); a DynamicPlatform plugin's
// endpoints go under its own aggregator.
type childBridgeDeviceAdder struct {
	builder *Builder
}

func (a childBridgeDeviceAdder) AddBridgedEndpoint(ep *model.Endpoint) error {
	b := a.builder

	b.mu.Lock()
	handle, ok := b.nodes[ep.PluginName]
	b.mu.Unlock()
	if !ok {
		return apperr.Matter(apperr.CodeAddEndpointError, "plugin server node not yet created", nil)
	}

	if ep.IsAccessory {
		b.mu.Lock()
		count := b.accessoryCount[ep.PluginName]
		// matter-mode endpoints are exempted from the one-device rule;
		// this asymmetry is intentional, preserved from the source
		// system, and flagged here rather than silently generalized.
		if count >= 1 && ep.Mode != model.EndpointModeMatter {
			b.mu.Unlock()
			return apperr.Plugin(apperr.CodeExactlyOneDevice, "accessory plugin "+ep.PluginName+" may only register one device", nil, false)
		}
		b.accessoryCount[ep.PluginName] = count + 1
		b.mu.Unlock()

		adapterEP, err := b.adapter.CreateAggregatorEndpoint(nextEndpointID())
		if err != nil {
			return apperr.Matter(apperr.CodeAddEndpointError, "create endpoint handle", err)
		}
		if err := handle.adapterNode.Add(adapterEP); err != nil {
			return apperr.Matter(apperr.CodeAddEndpointError, "attach accessory device", err)
		}
		ep.EndpointID = adapterEP.ID()
		if err := b.devices.Set(ep); err != nil {
			return err
		}
		childEPs, err := b.attachChildren(adapterEP, ep)
		if err != nil {
			return err
		}
		b.fan.Subscribe(adapterEP, *ep, true, childEPs)
		if b.metrics != nil {
			b.metrics.EndpointsRegistered.Inc()
		}
		return nil
	}

	if handle.aggregator == nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "plugin aggregator not available", nil)
	}

	adapterEP, err := b.adapter.CreateAggregatorEndpoint(nextEndpointID())
	if err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "create endpoint handle", err)
	}
	if err := handle.aggregator.Add(adapterEP); err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "attach bridged endpoint", err)
	}
	ep.EndpointID = adapterEP.ID()
	if err := b.devices.Set(ep); err != nil {
		return err
	}
	childEPs, err := b.attachChildren(adapterEP, ep)
	if err != nil {
		return err
	}
	b.fan.Subscribe(adapterEP, *ep, false, childEPs)
	if b.metrics != nil {
		b.metrics.EndpointsRegistered.Inc()
	}
	return nil
}

func (a childBridgeDeviceAdder) RemoveBridgedEndpoint(serial string) error {
	a.builder.devices.Remove("", serial)
	return nil
}

// addDedicatedServerNode gives a server-mode endpoint its own server
// node, consuming a fresh seed from the allocator the active Build
// call installed on the builder.
func (b *Builder) addDedicatedServerNode(ep *model.Endpoint) error {
	if b.alloc == nil {
		return apperr.Matter(apperr.CodeServerNodeStartError, "no seed allocator available for server-mode endpoint", nil)
	}

	seed := b.alloc.Next()
	storeID := ep.PluginName + "/" + ep.Serial

	cfg := matteradapter.ServerNodeConfig{
		StoreID:       storeID,
		Port:          seed.Port,
		Passcode:      seed.Passcode,
		Discriminator: seed.Discriminator,
		VendorID:      b.vendor.VendorID,
		VendorName:    b.vendor.VendorName,
		ProductID:     b.vendor.ProductID,
		ProductName:   b.vendor.ProductName,
		Certification: b.vendor.Certification,
	}

	adapterNode, err := b.adapter.CreateServerNode(cfg)
	if err != nil {
		return apperr.Matter(apperr.CodeServerNodeStartError, "create server-mode node for "+storeID, err)
	}

	adapterEP, err := b.adapter.CreateAggregatorEndpoint(nextEndpointID())
	if err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "create endpoint handle", err)
	}
	if err := adapterNode.Add(adapterEP); err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "attach server-mode endpoint", err)
	}
	if err := adapterNode.Start(context.Background()); err != nil {
		return apperr.Matter(apperr.CodeServerNodeStartError, "start server-mode node for "+storeID, err)
	}

	b.mu.Lock()
	b.nodes[storeID] = &nodeHandle{node: model.ServerNode{StoreID: storeID, Seed: seed}, adapterNode: adapterNode}
	b.mu.Unlock()
	b.trackAdvertising(storeID, adapterNode)
	if b.metrics != nil {
		b.metrics.ServerNodesOnline.Inc()
	}

	ep.EndpointID = adapterEP.ID()
	if err := b.devices.Set(ep); err != nil {
		return err
	}
	childEPs, err := b.attachChildren(adapterEP, ep)
	if err != nil {
		return err
	}
	b.fan.Subscribe(adapterEP, *ep, false, childEPs)
	if b.metrics != nil {
		b.metrics.EndpointsRegistered.Inc()
	}
	return nil
}

// endpointIDCounter is shared across concurrently-loading plugins
// (startAllPlugins runs their device-adder callbacks through a bounded
// errgroup), so allocation must be atomic rather than a bare increment.
var endpointIDCounter uint64 = 1

func nextEndpointID() uint64 {
	return atomic.AddUint64(&endpointIDCounter, 1)
}

// attachChildren creates a real adapter endpoint for every child of
// parent, attaches each under parentEP, registers it in the device
// registry, and returns the child adapter handles positionally
// parallel to parent.Children — the handle the fan-out must subscribe
// each child against instead of the parent's own handle.
func (b *Builder) attachChildren(parentEP matteradapter.Endpoint, parent *model.Endpoint) ([]matteradapter.Endpoint, error) {
	if len(parent.Children) == 0 {
		return nil, nil
	}

	childEPs := make([]matteradapter.Endpoint, len(parent.Children))
	for i, child := range parent.Children {
		adapterEP, err := b.adapter.CreateAggregatorEndpoint(nextEndpointID())
		if err != nil {
			return nil, apperr.Matter(apperr.CodeAddEndpointError, "create child endpoint handle", err)
		}
		if err := parentEP.Add(adapterEP); err != nil {
			return nil, apperr.Matter(apperr.CodeAddEndpointError, "attach child endpoint", err)
		}

		if child.PluginName == "" {
			child.PluginName = parent.PluginName
		}
		if child.Serial == "" {
			child.Serial = fmt.Sprintf("%s/child%d", parent.Serial, i)
		}
		child.EndpointID = adapterEP.ID()
		if err := b.devices.Set(child); err != nil {
			return nil, err
		}
		if b.metrics != nil {
			b.metrics.EndpointsRegistered.Inc()
		}

		childEPs[i] = adapterEP
	}
	return childEPs, nil
}

// VirtualCommand names a supervisor action a virtual device maps to.
// Virtual devices are Matter devices of the configured VirtualMode
// type (spec.md §4.5). The constants are not referenced by the
// dispatch path: turning a virtual device on runs none of these
// commands, and its state is not reverted to off.
type VirtualCommand string

const (
	VirtualCommandRestart    VirtualCommand = "restart"
	VirtualCommandUpdate     VirtualCommand = "update"
	VirtualCommandUnregister VirtualCommand = "unregister"
)

// addVirtualDevice attaches a virtual device of the given mode to
// aggregator, subscribing its OnOff attribute so that turning it on
// calls dispatchVirtualCommand. Nothing writes the attribute back to
// off afterwards.
func (b *Builder) addVirtualDevice(aggregator matteradapter.Endpoint, mode model.VirtualMode) error {
	ep, err := b.adapter.CreateAggregatorEndpoint(nextEndpointID())
	if err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "create virtual device endpoint", err)
	}
	if err := aggregator.Add(ep); err != nil {
		return apperr.Matter(apperr.CodeAddEndpointError, "attach virtual device", err)
	}
	matteradapter.WithAttributeServers(ep, [2]string{"OnOff", "OnOff"})

	_ = ep.SubscribeAttribute("OnOff", "OnOff", func(value interface{}) {
		on, _ := value.(bool)
		if !on {
			return
		}
		b.dispatchVirtualCommand(mode)
	})
	return nil
}

// dispatchVirtualCommand logs the virtual device's mode and notifies
// the frontend with a settings refresh. It runs no supervisor command
// (restart/update/unregister); no handlers for those are registered
// anywhere, and the device's OnOff state is left as it is.
func (b *Builder) dispatchVirtualCommand(mode model.VirtualMode) {
	logger.Topology().Info().Str("virtualMode", string(mode)).Msg("virtual device command dispatched")
	if b.notifier != nil {
		b.notifier.RefreshRequired(frontend.ScopeSettings)
	}
}
