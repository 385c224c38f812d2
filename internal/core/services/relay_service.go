package services

import (
	"context"
	"fmt"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"
	"vidcall/pkg/tracing"

	"go.uber.org/zap"
)

// RelayService forwards negotiation envelopes between live connections.
// It keeps no session state: address resolution goes through the presence
// registry on every call.
type RelayService struct {
	registry ports.PresenceRegistry
	metrics  ports.SignalMetrics
	logger   *zap.SugaredLogger
}

func NewRelayService(registry ports.PresenceRegistry, metrics ports.SignalMetrics, logger *zap.SugaredLogger) *RelayService {
	return &RelayService{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Relay resolves env.To and forwards the envelope verbatim. An offer to an
// absent peer produces an unavailable notice back to the sender; any other
// envelope to an absent peer is dropped silently, since the remote side has
// already disconnected and no recovery is meaningful.
func (s *RelayService) Relay(ctx context.Context, env domain.Envelope) error {
	if !env.Type.IsNegotiation() {
		return fmt.Errorf("envelope type %q is not relayable", env.Type)
	}

	ctx, span := tracing.TraceEnvelope(ctx, string(env.Type), string(env.From), string(env.To))
	defer span.End()

	target, ok := s.registry.Resolve(ctx, env.To)
	if !ok {
		if env.Type == domain.EnvelopeOffer {
			s.notifyUnavailable(ctx, env)
		} else {
			s.logger.Debugw("dropping envelope for absent peer",
				"type", env.Type, "from", env.From, "to", env.To)
		}
		return nil
	}

	if err := target.Send(ctx, env); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("forward %s to %s: %w", env.Type, env.To, err)
	}

	if s.metrics != nil {
		s.metrics.EnvelopeRelayed(env.Type)
	}
	s.logger.Debugw("relayed envelope", "type", env.Type, "from", env.From, "to", env.To)
	return nil
}

func (s *RelayService) notifyUnavailable(ctx context.Context, env domain.Envelope) {
	if s.metrics != nil {
		s.metrics.RelayUnavailable()
	}

	sender, ok := s.registry.Resolve(ctx, env.From)
	if !ok {
		// Caller vanished between sending the offer and resolution; nothing
		// left to notify.
		return
	}

	notice, err := domain.NewEnvelope(domain.EnvelopeUnavailable, "", env.From, domain.UnavailablePayload{To: env.To})
	if err != nil {
		s.logger.Errorw("building unavailable notice", "error", err)
		return
	}
	if err := sender.Send(ctx, notice); err != nil {
		s.logger.Warnw("sending unavailable notice", "to", env.From, "error", err)
	}
	s.logger.Infow("offer target unavailable", "from", env.From, "to", env.To)
}

// BroadcastPresence fans the current registry snapshot out to every live
// connection. The snapshot is read after the triggering mutation completed,
// so each broadcast reflects a consistent membership view.
func (s *RelayService) BroadcastPresence(ctx context.Context) {
	peers := s.registry.Snapshot(ctx)
	update := domain.NewPresenceUpdate(peers)

	conns := s.registry.Connections(ctx)

	ctx, span := tracing.TracePresenceBroadcast(ctx, len(conns))
	defer span.End()

	for _, conn := range conns {
		if err := conn.Send(ctx, update); err != nil {
			s.logger.Warnw("presence broadcast failed for connection", "conn_id", conn.ID(), "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.PresenceBroadcast(len(conns))
	}
}
