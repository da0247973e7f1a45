package actorutil

import (
	"log/slog"
	"strings"
	"time"

	"beamctl/internal/core/domain"
	"beamctl/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
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

// ParsedMQTTCommandToCommand maps an inbound MQTT command to the device
// request it drives. Power switch entities are "<device>_power" taking
// "on"/"off"; source selects are "<device>_source" taking the raw source
// name.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.DeviceRequest, error) {
	switch cmd.Command {
	case "switch":
		deviceId, ok := strings.CutSuffix(cmd.DeviceId, "_power")
		if !ok {
			return nil, nil
		}
		return domain.SetPowerRequest{
			DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: deviceId},
			On:                 cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case "select":
		deviceId, ok := strings.CutSuffix(cmd.DeviceId, "_source")
		if !ok {
			return nil, nil
		}
		return domain.SetSourceRequest{
			DeviceRequestMixIn: domain.DeviceRequestMixIn{Device: deviceId},
			Source:             cmd.Payload,
		}, nil
	}
	return nil, nil
}
