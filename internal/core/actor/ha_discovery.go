package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/config"
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/events"
	"github.com/berfenger/powergroup2mqtt/internal/core/service"
	"github.com/berfenger/powergroup2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	engineActor        *actor.PID
	mqttActor          *actor.PID
	engineActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int

	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	powerUnit      string
	energyUnit     string
	// definitions whose components are currently announced
	published map[string]domain.GroupDefinition

	logger *zap.Logger
}

type groupsChanged struct {
	event domain.GroupsChangedEvent
}

func NewHADiscoveryActor(config *config.Config, engineActor *actor.PID, mqttActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		engineActor: engineActor,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		published:   make(map[string]domain.GroupDefinition),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	normalizer, err := service.NewUnitNormalizer(service.UnitPrefix(config.Energy.UnitPrefix))
	if err != nil {
		normalizer, _ = service.NewUnitNormalizer(service.UnitPrefixKilo)
	}
	act.powerUnit = normalizer.PowerUnit()
	act.energyUnit = normalizer.EnergyUnit()
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Engine and MQTT actor healthy
		state.healthyRecv = 0
		state.engineActorHealthy = false
		state.mqttActorHealthy = false
		// Engine Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.engineActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_ENGINE,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_ENGINE:
				state.engineActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.engineActorHealthy && state.mqttActorHealthy {
				state.requestGroups(ctx)
				state.behavior.Become(state.WaitingGroupsReceive)
			} else {
				panic(errors.New("MQTT Actor or Engine Actor are not healthy"))
			}
		}
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingGroupsReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ListGroupsResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@groups: ListGroupsResponse", zap.Int("groups", len(msg.Groups)))

		state.publishAll(ctx, msg.Groups)
		state.subscribe(ctx)

		state.behavior.Become(state.Done)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@groups: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// Done keeps discovery in sync with group edits.
func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case groupsChanged:
		state.logger.Debug("hadiscovery@done groupsChanged",
			zap.Int("upserted", len(msg.event.Upserted)), zap.Int("removed", len(msg.event.Removed)))
		state.publishChanges(ctx, msg.event)
	case domain.MQTTReady:
		// retained configs may be gone after a broker restart
		state.requestGroups(ctx)
		state.behavior.Become(state.WaitingGroupsReceive)
	case *actor.Restarting:
		state.unsubscribe()
	case *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@done: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) requestGroups(ctx actor.Context) {
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.engineActor, domain.ListGroupsRequest{}, 2*time.Second), func(err error) any {
		return domain.ListGroupsResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *HADiscoveryActor) subscribe(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		if ev, ok := value.(domain.GroupsChangedEvent); ok {
			ctx.Send(ctx.Self(), groupsChanged{event: ev})
		}
	})
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}

func (state *HADiscoveryActor) publishAll(ctx actor.Context, groups []domain.GroupDefinition) {
	bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
	req := domain.PublishDiscoveryRequest{
		Sensors: events.BridgeSensors(bridgeDevice),
	}
	current := make(map[string]domain.GroupDefinition, len(groups))
	for _, def := range groups {
		current[def.Id] = def
		req.Sensors = append(req.Sensors, events.GroupSensors(bridgeDevice, def, state.powerUnit, state.energyUnit)...)
		req.Buttons = append(req.Buttons, events.GroupButtons(bridgeDevice, def)...)
	}
	// groups deleted while disconnected
	for id, def := range state.published {
		if _, ok := current[id]; !ok {
			req.Removed = append(req.Removed, events.GroupSensors(bridgeDevice, def, state.powerUnit, state.energyUnit)...)
			req.RemovedButtons = append(req.RemovedButtons, events.GroupButtons(bridgeDevice, def)...)
		}
	}
	state.published = current
	ctx.Send(state.mqttActor, req)
}

func (state *HADiscoveryActor) publishChanges(ctx actor.Context, ev domain.GroupsChangedEvent) {
	bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
	var req domain.PublishDiscoveryRequest
	for _, def := range ev.Upserted {
		req.Sensors = append(req.Sensors, events.GroupSensors(bridgeDevice, def, state.powerUnit, state.energyUnit)...)
		req.Buttons = append(req.Buttons, events.GroupButtons(bridgeDevice, def)...)
		// an edit can drop the energy sensor
		if prev, ok := state.published[def.Id]; ok && events.HasEnergySensor(prev) && !events.HasEnergySensor(def) {
			req.Removed = append(req.Removed, events.GroupSensors(bridgeDevice, prev, state.powerUnit, state.energyUnit)[1:]...)
			req.RemovedButtons = append(req.RemovedButtons, events.GroupButtons(bridgeDevice, prev)...)
		}
		state.published[def.Id] = def
	}
	for _, def := range ev.Removed {
		req.Removed = append(req.Removed, events.GroupSensors(bridgeDevice, def, state.powerUnit, state.energyUnit)...)
		req.RemovedButtons = append(req.RemovedButtons, events.GroupButtons(bridgeDevice, def)...)
		delete(state.published, def.Id)
	}
	ctx.Send(state.mqttActor, req)
}
