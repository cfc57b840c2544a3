// Package matteradapter is the thin boundary between the supervisor
// core and the Matter protocol stack. It exposes only the verbs the
// core needs (spec.md §4.2): open storage, create server nodes and
// aggregator endpoints, attach/detach endpoints, subscribe attributes.
// The protocol itself — commissioning, session management, mDNS
// announcement, certificate handling — is not implemented here; this
// package models the observable state machine and event shape a real
// Matter library (such as backkem/matter) exposes, so the core can be
// built and tested against it.
//
// The adapter's own logging is expressed against pion/logging's
// LeveledLogger interface, the same seam the upstream Matter library
// uses, bridged to this process's zerolog sink by zerologLeveledLogger.
package matteradapter

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// EventKind enumerates the server node events the core observes.
type EventKind string

const (
	EventCommissioned        EventKind = "commissioned"
	EventDecommissioned      EventKind = "decommissioned"
	EventOnline              EventKind = "online"
	EventOffline             EventKind = "offline"
	EventFabricsChanged      EventKind = "fabricsChanged"
	EventSessionOpened       EventKind = "sessionOpened"
	EventSessionClosed       EventKind = "sessionClosed"
	EventSubscriptionsChanged EventKind = "subscriptionsChanged"
)

// Event is delivered to a ServerNode's registered observers.
type Event struct {
	Kind    EventKind
	StoreID string
}

// StorageHandle is the root returned by OpenStorageService; Open
// yields one namespace per server node's store ID.
type StorageHandle interface {
	Open(namespace string) (StorageContext, error)
}

// StorageContext is a per-storeID namespace holding the Matter
// stack's persisted state.
type StorageContext interface {
	StoreID() string
}

// ServerNodeConfig carries everything needed to create a server node,
// per spec.md §3 Server node.
type ServerNodeConfig struct {
	StoreID       string
	Port          int
	Passcode      uint32
	Discriminator uint16
	VendorID      uint16
	VendorName    string
	ProductID     uint16
	ProductName   string
	SoftwareVersion uint32
	SoftwareVersionString string
	HardwareVersion uint16
	SerialNumber  string
	UniqueID      string
	Certification *DeviceCertification
}

// DeviceCertification carries the hex-decoded certification blobs the
// pairing-file loader may supply.
type DeviceCertification struct {
	PrivateKey               []byte
	Certificate              []byte
	IntermediateCertificate  []byte
	Declaration              []byte
}

// Endpoint is an opaque handle to a Matter endpoint: the aggregator,
// a bridged device, or a child of either.
type Endpoint interface {
	Add(child Endpoint) error
	SubscribeAttribute(cluster, attribute string, callback func(value interface{})) error
	HasAttributeServer(cluster, attribute string) bool
	Delete() error
	ID() uint64
}

// ServerNode is the opaque handle returned by CreateServerNode.
type ServerNode interface {
	Add(child Endpoint) error
	Start(ctx context.Context) error
	Close(ctx context.Context, timeout time.Duration) error
	Subscribe(fn func(Event)) (unsubscribe func())
	State() model.ServerNodeState
	PairingCodeManual() string
	PairingCodeQR() string
}

// Adapter is the complete surface the core depends on.
type Adapter interface {
	OpenStorageService(rootDir string) (StorageHandle, error)
	CreateServerNode(cfg ServerNodeConfig) (ServerNode, error)
	CreateAggregatorEndpoint(id uint64) (Endpoint, error)
	RandomPasscode() (uint32, error)
	RandomDiscriminator() (uint16, error)
}

// New returns the process's Matter adapter. There is exactly one
// concrete implementation today (the in-process simulation); the
// interface seam is what lets internal/bridge and internal/topology
// be tested without a real Matter stack.
func New() Adapter {
	return &simAdapter{}
}

type simAdapter struct{}

func (simAdapter) OpenStorageService(rootDir string) (StorageHandle, error) {
	return &simStorageHandle{root: rootDir, namespaces: make(map[string]*simStorageContext)}, nil
}

func (simAdapter) CreateAggregatorEndpoint(id uint64) (Endpoint, error) {
	return &simEndpoint{id: id, attributeServers: defaultAggregatorAttributes()}, nil
}

func (simAdapter) RandomPasscode() (uint32, error) {
	// Matter passcodes are up to 8 decimal digits with a handful of
	// reserved invalid values (00000000, 11111111, ..., 12345678,
	// 87654321); a uniform draw over [1, 99999998], redrawn whenever it
	// lands on one of those values, is good enough for a simulation
	// adapter.
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, apperr.Matter(apperr.CodeServerNodeStartError, "generate passcode", err)
		}
		v := binary.BigEndian.Uint32(buf[:])%99999998 + 1
		if v%11111111 != 0 && v != 12345678 && v != 87654321 {
			return v, nil
		}
	}
}

func (simAdapter) RandomDiscriminator() (uint16, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, apperr.Matter(apperr.CodeServerNodeStartError, "generate discriminator", err)
	}
	return binary.BigEndian.Uint16(buf[:]) % 4096, nil
}

func (simAdapter) CreateServerNode(cfg ServerNodeConfig) (ServerNode, error) {
	if cfg.StoreID == "" {
		return nil, apperr.Matter(apperr.CodeServerNodeStartError, "store id is required", nil)
	}
	n := &simServerNode{
		cfg:         cfg,
		state:       model.ServerNodeStateCreated,
		subscribers: make(map[int]func(Event)),
	}
	return n, nil
}

type simStorageHandle struct {
	mu         sync.Mutex
	root       string
	namespaces map[string]*simStorageContext
}

func (h *simStorageHandle) Open(namespace string) (StorageContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ctx, ok := h.namespaces[namespace]; ok {
		return ctx, nil
	}
	ctx := &simStorageContext{storeID: namespace}
	h.namespaces[namespace] = ctx
	return ctx, nil
}

type simStorageContext struct{ storeID string }

func (c *simStorageContext) StoreID() string { return c.storeID }

type simEndpoint struct {
	mu               sync.Mutex
	id               uint64
	children         []Endpoint
	attributeServers map[string]bool
	subs             map[string]func(value interface{})
}

func defaultAggregatorAttributes() map[string]bool {
	return map[string]bool{
		"BridgedDeviceBasicInformation.Reachable": true,
	}
}

func (e *simEndpoint) Add(child Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.children = append(e.children, child)
	return nil
}

func (e *simEndpoint) SubscribeAttribute(cluster, attribute string, callback func(value interface{})) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := cluster + "." + attribute
	if !e.attributeServers[key] {
		return apperr.Matter(apperr.CodeAddEndpointError, fmt.Sprintf("endpoint has no attribute server for %s", key), nil)
	}
	if e.subs == nil {
		e.subs = make(map[string]func(value interface{}))
	}
	e.subs[key] = callback
	return nil
}

func (e *simEndpoint) HasAttributeServer(cluster, attribute string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attributeServers[cluster+"."+attribute]
}

func (e *simEndpoint) Delete() error {
	return nil
}

func (e *simEndpoint) ID() uint64 { return e.id }

// TriggerAttribute invokes the subscribed callback for cluster.attribute
// on a simulated endpoint with value, as if the Matter stack had
// observed a live change. It is a test-only seam: production code
// never calls this, since real attribute changes originate from the
// Matter stack itself.
func TriggerAttribute(ep Endpoint, cluster, attribute string, value interface{}) {
	se, ok := ep.(*simEndpoint)
	if !ok {
		return
	}
	se.mu.Lock()
	cb := se.subs[cluster+"."+attribute]
	se.mu.Unlock()
	if cb != nil {
		cb(value)
	}
}

// WithAttributeServers marks the given cluster.attribute pairs as
// present on a simulated endpoint; used by tests to exercise real
// subscribe/no-subscribe branches, and by the topology builder to give
// virtual devices their OnOff attribute server.
func WithAttributeServers(ep Endpoint, pairs ...[2]string) {
	se, ok := ep.(*simEndpoint)
	if !ok {
		return
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.attributeServers == nil {
		se.attributeServers = make(map[string]bool)
	}
	for _, p := range pairs {
		se.attributeServers[p[0]+"."+p[1]] = true
	}
}

type simServerNode struct {
	mu          sync.Mutex
	cfg         ServerNodeConfig
	state       model.ServerNodeState
	children    []Endpoint
	subscribers map[int]func(Event)
	nextSubID   int
}

func (n *simServerNode) Add(child Endpoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, child)
	return nil
}

func (n *simServerNode) Start(ctx context.Context) error {
	n.mu.Lock()
	n.state = model.ServerNodeStateOnlineUncommissioned
	n.mu.Unlock()
	n.emit(Event{Kind: EventOnline, StoreID: n.cfg.StoreID})
	return nil
}

func (n *simServerNode) Close(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return apperr.Matter(apperr.CodeServerNodeCloseTimeout, "server node close cancelled", err)
	}
	done := make(chan struct{})
	go func() {
		n.mu.Lock()
		n.state = model.ServerNodeStateOffline
		n.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		n.emit(Event{Kind: EventOffline, StoreID: n.cfg.StoreID})
		return nil
	case <-time.After(timeout):
		return apperr.Matter(apperr.CodeServerNodeCloseTimeout, "server node close timed out", nil)
	case <-ctx.Done():
		return apperr.Matter(apperr.CodeServerNodeCloseTimeout, "server node close cancelled", ctx.Err())
	}
}

func (n *simServerNode) Subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextSubID
	n.nextSubID++
	n.subscribers[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subscribers, id)
	}
}

func (n *simServerNode) State() model.ServerNodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *simServerNode) PairingCodeManual() string {
	return fmt.Sprintf("%08d", n.cfg.Passcode)
}

func (n *simServerNode) PairingCodeQR() string {
	return fmt.Sprintf("MT:%s-%d", n.cfg.StoreID, n.cfg.Discriminator)
}

func (n *simServerNode) emit(ev Event) {
	n.mu.Lock()
	subs := make([]func(Event), 0, len(n.subscribers))
	for _, fn := range n.subscribers {
		subs = append(subs, fn)
	}
	n.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
