// Package supervisor wires a transport.Driver, an iso.Manager and the
// Fast Packet assembler/builder into a single cooperative event loop: one
// select loop, fed inbound frames by a separate read-pump goroutine.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halyard-systems/n2k-node"
	"github.com/halyard-systems/n2k-node/iso"
	"github.com/halyard-systems/n2k-node/metrics"
	"github.com/halyard-systems/n2k-node/transport"
)

// outboundQueueSize bounds how many messages Send can queue before it
// blocks (and how many inbound frames the read pump can buffer); the Run
// loop writes a queued message as soon as its select picks it up.
const outboundQueueSize = 64

// tickInterval drives iso.Manager.Tick and Fast Packet reassembly expiry.
const tickInterval = 10 * time.Millisecond

// Service owns one node's address claim state and message traffic. Start
// it with Run, which blocks until ctx is cancelled or the driver fails.
type Service struct {
	driver    transport.Driver
	clock     transport.Clock
	manager   *iso.Manager
	assembler *n2k.FastPacketAssembler
	builder   *n2k.FastPacketBuilder
	logger    *slog.Logger

	fastPacketPGNs []n2k.PGN
	transportName  string
	lastEvicted    uint64
	lastTimedOut   uint64

	sendQueue chan n2k.RawMessage
	messages  chan n2k.RawMessage

	OnMessage func(n2k.RawMessage)
}

// NewService builds a Service. fastPacketPGNs lists every PGN this node
// expects to see carried by Fast Packet framing. transportName labels the
// metrics this Service emits (e.g. "socketcan", "actisense").
func NewService(driver transport.Driver, clock transport.Clock, manager *iso.Manager, fastPacketPGNs []n2k.PGN, transportName string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		driver:         driver,
		clock:          clock,
		manager:        manager,
		assembler:      n2k.NewFastPacketAssembler(fastPacketPGNs),
		builder:        n2k.NewFastPacketBuilder(),
		logger:         logger,
		fastPacketPGNs: fastPacketPGNs,
		transportName:  transportName,
		sendQueue:      make(chan n2k.RawMessage, outboundQueueSize),
		messages:       make(chan n2k.RawMessage, outboundQueueSize),
	}
}

// Send enqueues a payload for transmission under the node's claimed
// address. It blocks only if the outbound queue is full.
func (s *Service) Send(pgn n2k.PGN, destination uint8, priority uint8, data []byte) error {
	msg, err := s.manager.SendPayload(pgn, destination, priority, data)
	if err != nil {
		return err
	}
	s.messages <- msg
	return nil
}

// Run drives the read pump and the select loop until ctx is cancelled or
// the driver returns a fatal error. It is not safe to call Run more than
// once concurrently.
func (s *Service) Run(ctx context.Context) error {
	frames := make(chan n2k.RawFrame, outboundQueueSize)
	readErrs := make(chan error, 1)
	go s.readPump(ctx, frames, readErrs)

	now := s.clock.Now()
	if claim := s.manager.Start(now); claim.Data != nil {
		if err := s.writeMessage(claim); err != nil {
			s.logger.Warn("iso_claim_write_failed", "error", err)
		}
	}

	ticker := s.clock.NewTimer(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrs:
			return fmt.Errorf("supervisor: read pump failed: %w", err)

		case frame := <-frames:
			s.handleFrame(frame)

		case msg := <-s.messages:
			if err := s.writeMessage(msg); err != nil {
				s.logger.Warn("write_failed", "pgn", msg.Header.PGN, "error", err)
			}

		case <-ticker.C():
			s.onTick()
			ticker.Reset(tickInterval)
		}
	}
}

func (s *Service) readPump(ctx context.Context, out chan<- n2k.RawFrame, errs chan<- error) {
	for {
		frame, err := s.driver.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errs <- err
			return
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) handleFrame(frame n2k.RawFrame) {
	metrics.FramesReceived.WithLabelValues(s.transportName).Inc()

	var msg n2k.RawMessage
	if !s.assembler.Assemble(frame, &msg) {
		if evicted := s.assembler.Evicted; evicted > s.lastEvicted {
			metrics.FastPacketEvictions.Add(float64(evicted - s.lastEvicted))
			s.lastEvicted = evicted
		}
		return
	}
	for _, pgn := range s.fastPacketPGNs {
		if pgn == msg.Header.PGN {
			metrics.FastPacketCompletions.Inc()
			break
		}
	}

	before := s.manager.State()
	now := s.clock.Now()
	if reply, ok := s.manager.OnFrame(now, msg); ok {
		if after := s.manager.State(); after != before {
			s.recordClaimOutcome(after)
		}
		if err := s.writeMessage(reply); err != nil {
			s.logger.Warn("claim_reply_write_failed", "error", err)
		}
	}
	metrics.CurrentAddress.Set(float64(s.manager.Address()))

	if s.OnMessage != nil {
		s.OnMessage(msg)
	}
}

func (s *Service) recordClaimOutcome(after iso.State) {
	switch after {
	case iso.StateClaimed, iso.StateClaiming:
		metrics.AddressClaimsWon.Inc()
	case iso.StateLost, iso.StateUnclaimed:
		metrics.AddressClaimsLost.Inc()
	}
}

func (s *Service) onTick() {
	now := s.clock.Now()
	if msg, ok := s.manager.Tick(now); ok {
		if err := s.writeMessage(msg); err != nil {
			s.logger.Warn("tick_write_failed", "error", err)
		}
	}
	metrics.CurrentAddress.Set(float64(s.manager.Address()))

	s.assembler.ExpireStale(now)
	if timedOut := s.assembler.Timeouts; timedOut > s.lastTimedOut {
		metrics.FastPacketTimeouts.Add(float64(timedOut - s.lastTimedOut))
		s.lastTimedOut = timedOut
	}
}

func (s *Service) writeMessage(msg n2k.RawMessage) error {
	frames, err := s.builder.Split(msg.Header, msg.Data, s.clock.Now())
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := s.driver.WriteFrame(frame); err != nil {
			metrics.TransportErrors.WithLabelValues(s.transportName).Inc()
			return err
		}
		metrics.FramesSent.WithLabelValues(s.transportName).Inc()
	}
	return nil
}
