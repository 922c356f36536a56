package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	. "github.com/berfenger/powergroup2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MeterPollerActor polls the modbus actor and feeds every register value to
// the engine as a reading.
type MeterPollerActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	interval    time.Duration
	modbusActor *actor.PID
	engineActor *actor.PID
	lastError   error

	logger *zap.Logger
}

type meterPollTick struct {
}

func NewMeterPollerActor(interval time.Duration, modbusActor *actor.PID, engineActor *actor.PID, logger *zap.Logger) *MeterPollerActor {
	act := &MeterPollerActor{
		interval:    interval,
		modbusActor: modbusActor,
		engineActor: engineActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_METER_POLLER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterPollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterPollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meterpoller@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.interval > 0 {
			ctx.Send(ctx.Self(), meterPollTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("meterpoller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterPollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("meterpoller@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_POLLER,
			Healthy: state.lastError == nil,
			State:   "idle",
		})
	case meterPollTick:
		state.logger.Debug("meterpoller@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ReadMetersRequest{}, state.interval+time.Second), func(err error) any {
			return domain.ReadMetersResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(state.interval, ctx.Self(), meterPollTick{})
		state.behavior.BecomeStacked(state.WaitingReadReceive)
	default:
		state.logger.Debug("meterpoller@default: unknown message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterPollerActor) WaitingReadReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadMetersResponse:
		state.lastError = msg.GetResponseError()
		if msg.HasResponseError() {
			state.logger.Error("meterpoller@waiting ReadMetersResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("meterpoller@waiting ReadMetersResponse", zap.Int("readings", len(msg.Readings)))
			for _, reading := range msg.Readings {
				ctx.Send(state.engineActor, domain.ObserveReadingRequest{Reading: reading})
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case meterPollTick:
		// previous read still running
		state.logger.Debug("meterpoller@waiting: tick skipped")
		state.scheduler.RequestOnce(state.interval, ctx.Self(), meterPollTick{})
	default:
		state.logger.Debug("meterpoller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}
