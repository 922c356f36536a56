package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/events"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
	"github.com/berfenger/powergroup2mqtt/internal/core/service"
	. "github.com/berfenger/powergroup2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// EngineActor serializes every engine request and drives the throttle flushes.
type EngineActor struct {
	ActorWithStates
	scheduler  *scheduler.TimerScheduler
	stash      *Stash
	engine     *service.Engine
	groupStore port.GroupConfigStore
	sink       *events.EventStreamSink

	flushAt     time.Time
	cancelFlush scheduler.CancelFunc

	logger *zap.Logger
}

type engineFlushTick struct {
}

func NewEngineActor(engine *service.Engine, groupStore port.GroupConfigStore, sink *events.EventStreamSink, logger *zap.Logger) *EngineActor {
	act := &EngineActor{
		engine:     engine,
		groupStore: groupStore,
		sink:       sink,
		stash:      &Stash{},
		logger:     ActorLogger(domain.ACTOR_ID_ENGINE, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(EngineStartingState{
		actor: act,
	})
	return act
}

func (state *EngineActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type EngineStartingState struct {
	ActorState
	actor *EngineActor
}

func (state EngineStartingState) Name() string {
	return "starting"
}

func (state EngineStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("engine@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		// a restarted actor keeps the running engine
		if !state.actor.engine.Running() {
			var defs []domain.GroupDefinition
			if state.actor.groupStore != nil {
				loaded, err := state.actor.groupStore.Load()
				if err != nil {
					panic(err)
				}
				defs = loaded
			}
			for _, err := range state.actor.engine.Start(defs) {
				state.actor.logger.Warn("engine@starting group rejected", zap.Error(err))
			}
		}

		state.actor.Become(EngineRunningState{
			actor: state.actor,
		})
		state.actor.scheduleFlush(ctx)
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("engine@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Running state

type EngineRunningState struct {
	ActorState
	actor *EngineActor
}

func (state EngineRunningState) Name() string {
	return "running"
}

func (state EngineRunningState) Receive(ctx actor.Context) {
	engine := state.actor.engine
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ENGINE,
			Healthy: engine.Running(),
			State:   state.Name(),
		})
		return
	case domain.ObserveReadingRequest:
		engine.ObserveReading(msg.Reading)
		Reply(ctx, msg, domain.ObserveReadingResponse{})
	case domain.ListGroupsRequest:
		Reply(ctx, msg, domain.ListGroupsResponse{Groups: engine.Groups()})
	case domain.ListEntitiesRequest:
		Reply(ctx, msg, domain.ListEntitiesResponse{Entities: engine.Entities()})
	case domain.GetResolvedMembersRequest:
		members, err := engine.ResolvedMembers(msg.GroupId)
		Reply(ctx, msg, domain.GetResolvedMembersResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Members:            members,
		})
	case domain.GetGroupStateRequest:
		snapshot, err := engine.GroupState(msg.GroupId)
		Reply(ctx, msg, groupStateResponse(snapshot, err))
	case domain.PutGroupRequest:
		state.actor.logger.Debug("engine@running PutGroupRequest", zap.String("group", msg.Group.Id))
		snapshot, err := engine.PutGroup(msg.Group)
		Reply(ctx, msg, groupStateResponse(snapshot, err))
	case domain.DeleteGroupRequest:
		state.actor.logger.Debug("engine@running DeleteGroupRequest", zap.String("group", msg.GroupId))
		err := engine.DeleteGroup(msg.GroupId)
		Reply(ctx, msg, domain.DeleteGroupResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case domain.ResetEnergyRequest:
		state.actor.logger.Debug("engine@running ResetEnergyRequest", zap.String("group", msg.GroupId))
		snapshot, err := engine.ResetEnergy(msg.GroupId)
		if err != nil {
			state.actor.logger.Warn("engine@running reset failed", zap.Error(err))
		}
		Reply(ctx, msg, groupStateResponse(snapshot, err))
	case domain.CalibrateEnergyRequest:
		state.actor.logger.Debug("engine@running CalibrateEnergyRequest", zap.String("group", msg.GroupId))
		snapshot, err := engine.CalibrateEnergy(msg.GroupId, msg.Value)
		if err != nil {
			state.actor.logger.Warn("engine@running calibrate failed", zap.Error(err))
		}
		Reply(ctx, msg, groupStateResponse(snapshot, err))
	case domain.EvictBaselineRequest:
		evicted, err := engine.EvictBaseline(msg.GroupId, msg.MemberId)
		Reply(ctx, msg, domain.EvictBaselineResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Evicted:            evicted,
		})
	case domain.PutEntityRequest:
		changed, err := engine.PutEntity(msg.Entity)
		Reply(ctx, msg, domain.EntityResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Changed:            changed,
		})
	case domain.DeleteEntityRequest:
		changed, err := engine.DeleteEntity(msg.EntityId)
		Reply(ctx, msg, domain.EntityResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Changed:            changed,
		})
	case domain.RepublishRequest:
		state.actor.logger.Debug("engine@running RepublishRequest")
		if state.actor.sink != nil {
			state.actor.sink.Forget()
		}
		engine.Republish()
	case engineFlushTick:
		state.actor.flushAt = time.Time{}
		state.actor.cancelFlush = nil
		engine.Tick()
	case *actor.Stopping:
		state.actor.stopFlush()
		engine.Close()
		return
	default:
		state.actor.logger.Debug("engine@running: unknown message", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}
	state.actor.scheduleFlush(ctx)
}

// scheduleFlush keeps one timer armed for the earliest pending flush.
func (state *EngineActor) scheduleFlush(ctx actor.Context) {
	next, ok := state.engine.NextFlush()
	if !ok {
		return
	}
	if state.cancelFlush != nil && !next.Before(state.flushAt) {
		return
	}
	state.stopFlush()
	delay := max(time.Until(next), 0)
	state.flushAt = next
	state.cancelFlush = state.scheduler.RequestOnce(delay, ctx.Self(), engineFlushTick{})
}

func (state *EngineActor) stopFlush() {
	if state.cancelFlush != nil {
		state.cancelFlush()
		state.cancelFlush = nil
	}
}

func groupStateResponse(snapshot domain.GroupSnapshot, err error) domain.GroupStateResponse {
	return domain.GroupStateResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		State:              snapshot,
	}
}
