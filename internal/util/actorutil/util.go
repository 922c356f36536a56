package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/events"
	"github.com/berfenger/powergroup2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a reset button press or an energy number set
// to the engine request it stands for.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.EngineRequest, error) {
	switch cmd.Command {
	case mqtt.COMMAND_BUTTON:
		groupId, ok := events.GroupIdFromResetButton(cmd.DeviceId)
		if !ok {
			return nil, fmt.Errorf("unknown button %s", cmd.DeviceId)
		}
		return domain.ResetEnergyRequest{GroupId: groupId}, nil
	case mqtt.COMMAND_NUMBER:
		groupId, ok := events.GroupIdFromEnergySensor(cmd.DeviceId)
		if !ok {
			return nil, fmt.Errorf("unknown number %s", cmd.DeviceId)
		}
		value, err := decimal.NewFromString(cmd.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidValue, cmd.Payload)
		}
		return domain.CalibrateEnergyRequest{GroupId: groupId, Value: value}, nil
	}
	return nil, nil
}
