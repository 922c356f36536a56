package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/util/actorutil"
	"github.com/berfenger/powergroup2mqtt/pkg/meter_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	meters   []meter_modbus.MeterReader
	timeout  time.Duration
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// NewModbusActor serves meter reads. timeout bounds one ReadMetersRequest.
func NewModbusActor(meters []meter_modbus.MeterReader, timeout time.Duration, logger *zap.Logger) *ModbusActor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	act := &ModbusActor{
		meters:   meters,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		for _, meter := range state.meters {
			err := meter.Open()
			if err != nil {
				panic(fmt.Errorf("meter %s: %w", meter.Name(), err))
			}
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.closeMeters()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.ReadMetersRequest:
		state.logger.Debug("modbus@default: ReadMetersRequest")
		sender := actorutil.ReplyTo(ctx, msg)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, state.readMeters),
			mapTaskResult[domain.ReadMetersResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadMetersResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Restarting:
		state.closeMeters()
	case *actor.Stopping:
		state.closeMeters()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.closeMeters()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// readMeters reads every meter. A failing meter reports its entities as unavailable.
func (state *ModbusActor) readMeters() *domain.ReadMetersResponse {
	var readings []domain.Reading
	for _, meter := range state.meters {
		values, err := meter.ReadAll()
		if err != nil {
			state.logger.Warn("modbus: meter read failed", zap.String("meter", meter.Name()), zap.Error(err))
			now := time.Now()
			for _, id := range meter.EntityIds() {
				readings = append(readings, domain.Reading{
					EntityId:  id,
					State:     domain.STATE_UNAVAILABLE,
					Timestamp: now,
				})
			}
			continue
		}
		for _, v := range values {
			readings = append(readings, domain.Reading{
				EntityId:  v.EntityId,
				State:     v.Value.String(),
				Unit:      v.Unit,
				Timestamp: v.ReadAt,
			})
		}
	}
	return &domain.ReadMetersResponse{Readings: readings}
}

func (state *ModbusActor) closeMeters() {
	for _, meter := range state.meters {
		if err := meter.Close(); err != nil {
			state.logger.Debug("modbus: close failed", zap.String("meter", meter.Name()), zap.Error(err))
		}
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
