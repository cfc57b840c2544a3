package plugin

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/matterbridge-go/matterbridge/internal/kvstore"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// DeviceAdder is the callback surface a plugin uses to register
// endpoints with the commissioning topology. It is supplied by
// internal/topology, which knows whether the plugin is
// AccessoryPlatform (at most one device) or DynamicPlatform (many,
// under its own or the shared aggregator).
type DeviceAdder interface {
	AddBridgedEndpoint(ep *model.Endpoint) error
	RemoveBridgedEndpoint(serial string) error
}

// Scheduler lets a plugin register periodic background work, isolated
// per plugin so one plugin's jobs can't starve another's. It is a
// thin wrapper over a dedicated *cron.Cron instance, torn down on
// OnShutdown.
type Scheduler struct {
	cron *cron.Cron
	ids  []cron.EntryID
}

func newScheduler() *Scheduler {
	s := &Scheduler{cron: cron.New()}
	s.cron.Start()
	return s
}

// Schedule registers fn to run on the given cron spec (standard 5
// field syntax). Errors from a malformed spec are returned
// immediately rather than silently dropped.
func (s *Scheduler) Schedule(spec string, fn func()) error {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return err
	}
	s.ids = append(s.ids, id)
	return nil
}

func (s *Scheduler) stop() {
	s.cron.Stop()
}

// Context is the per-plugin handle passed to a Handler's lifecycle
// methods, isolating each plugin's storage, logging, and scheduled
// work from every other plugin's.
type Context struct {
	PluginName string
	Manifest   model.Manifest
	Config     map[string]interface{}

	Storage   *kvstore.Namespace
	Logger    *zerolog.Logger
	Scheduler *Scheduler
	Devices   DeviceAdder
}
