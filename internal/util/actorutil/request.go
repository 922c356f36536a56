package actorutil

import (
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ReplyTo is the explicit reply target of a request, or the sender.
func ReplyTo(ctx actor.Context, req domain.ActorRequest) *actor.PID {
	if ref := req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return ctx.Sender()
}

// Reply answers a request. Fire-and-forget requests (no reply target and no
// sender) are silently dropped.
func Reply(ctx actor.Context, req domain.ActorRequest, resp domain.ActorResponse) {
	if ref := req.ReplyTo(); ref != nil {
		ctx.Send((*actor.PID)(ref), resp)
		return
	}
	if ctx.Sender() != nil {
		ctx.Respond(resp)
	}
}
