// Package gameserver implements the session protocol: it decodes inbound
// envelopes, applies them to the room directory under a single lock, and
// fans the resulting envelopes out to connections.
package gameserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/game/session"
	"github.com/cory-johannsen/impostor/internal/game/topic"
	"github.com/cory-johannsen/impostor/internal/protocol"
)

var (
	// ErrNotIdentified is returned for requests sent before join_server.
	ErrNotIdentified = errors.New("send join_server first")
	// ErrNotInRoom is returned for room requests from a participant outside any room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrNotHost is returned for host-only requests from anyone else.
	ErrNotHost = errors.New("only the host can do that")
)

// Options tunes Server behavior.
type Options struct {
	// GracePeriod is how long a disconnected participant may reclaim its identity.
	GracePeriod time.Duration
	// SendTimeout bounds each individual delivery.
	SendTimeout time.Duration
	// RoomIdleTimeout is how long an empty, host-less room survives. Zero disables reaping.
	RoomIdleTimeout time.Duration
	// GreetingCode is echoed in the connection greeting.
	GreetingCode string
}

// Server is the single serialization point for all game state.
//
// Every entry point runs through apply, which mutates state and plans
// deliveries under mu, then flushes them under deliverMu after mu is released.
// deliverMu is taken before mu is released so deliveries leave in the order
// their state changes were made.
type Server struct {
	mu        sync.Mutex
	deliverMu sync.Mutex

	dir    *session.Directory
	purges *session.PurgeScheduler
	topics []string
	opts   Options
	logger *zap.Logger
}

// NewServer creates a Server over dir drawing topics from corpus.
//
// Precondition: dir, corpus and logger must be non-nil; opts.GracePeriod and
// opts.SendTimeout must be positive.
func NewServer(dir *session.Directory, corpus *topic.Corpus, opts Options, logger *zap.Logger) *Server {
	return &Server{
		dir:    dir,
		purges: session.NewPurgeScheduler(opts.GracePeriod),
		topics: corpus.Topics(),
		opts:   opts,
		logger: logger,
	}
}

// HandleConnect greets a newly opened connection.
func (s *Server) HandleConnect(conn player.Conn) {
	s.logger.Debug("connection opened", zap.String("conn", conn.ID()))
	s.apply(func() session.Outbox {
		var out session.Outbox
		if data := s.encode(protocol.NewConnected(s.opts.GreetingCode)); data != nil {
			out.Add("", conn, data)
		}
		return out
	})
}

// HandleMessage decodes and applies one inbound envelope from conn.
// Failures are reported to conn alone.
func (s *Server) HandleMessage(conn player.Conn, data []byte) {
	s.apply(func() (out session.Outbox) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in dispatch",
					zap.String("conn", conn.ID()),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				out = s.replyError(conn, protocol.CodeInternal, "internal error")
			}
		}()

		req, err := protocol.Decode(data)
		if err != nil {
			s.logger.Debug("rejecting inbound envelope", zap.String("conn", conn.ID()), zap.Error(err))
			return s.replyError(conn, errorCode(err), err.Error())
		}
		out, err = s.dispatch(conn, req)
		if err != nil {
			return s.replyError(conn, errorCode(err), err.Error())
		}
		return out
	})
}

// HandleDisconnect marks the participant bound to conn unreachable and
// schedules its purge. A stale connection whose identity moved on is ignored.
func (s *Server) HandleDisconnect(conn player.Conn) {
	s.apply(func() session.Outbox {
		p := s.dir.Detach(conn.ID())
		if p == nil {
			s.logger.Debug("connection closed", zap.String("conn", conn.ID()))
			return session.Outbox{}
		}
		return s.disconnected(p)
	})
}

// ReapIdleRooms removes rooms that have had no members and no connected host
// for the configured idle timeout.
//
// Postcondition: Returns the removed room codes.
func (s *Server) ReapIdleRooms() []string {
	if s.opts.RoomIdleTimeout <= 0 {
		return nil
	}
	var reaped []string
	s.apply(func() session.Outbox {
		reaped = s.dir.ReapIdle(s.opts.RoomIdleTimeout)
		for _, code := range reaped {
			s.logger.Info("reaped idle room", zap.String("room", code))
		}
		return session.Outbox{}
	})
	return reaped
}

// Stats reports current directory sizes.
func (s *Server) Stats() (rooms, participants, connected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.RoomCount(), s.dir.ParticipantCount(), s.dir.ConnectedCount()
}

// Stop cancels every pending purge.
func (s *Server) Stop() {
	s.purges.Stop()
}

// apply runs fn under the state lock and flushes the planned deliveries after
// releasing it. Recipients that cannot be reached are dropped.
func (s *Server) apply(fn func() session.Outbox) {
	s.mu.Lock()
	out := fn()
	s.deliverMu.Lock()
	s.mu.Unlock()

	failures := out.Flush(context.Background(), s.opts.SendTimeout)
	s.deliverMu.Unlock()

	if len(failures) > 0 {
		s.dropUnreachable(failures)
	}
}

// dropUnreachable treats each failed delivery as an implicit disconnect. A
// member is removed from its room and forgotten; a host only loses its
// connection and goes through the usual grace period.
func (s *Server) dropUnreachable(failures []session.Failure) {
	s.apply(func() session.Outbox {
		var out session.Outbox
		for _, f := range failures {
			s.logger.Warn("delivery failed",
				zap.String("participant", f.RecipientID),
				zap.String("conn", f.ConnID),
				zap.Error(f.Err),
			)
			_ = f.Conn.Close()

			p := s.dir.Participant(f.RecipientID)
			if p == nil || !p.BoundTo(f.ConnID) {
				continue
			}
			if rm := s.dir.RoomFor(p); rm != nil && rm.IsHost(p.ID) {
				if d := s.dir.Detach(f.ConnID); d != nil {
					out.Merge(s.disconnected(d))
				}
				continue
			}
			s.purges.Cancel(p.ID)
			code, deleted := s.dir.Remove(p.ID)
			s.logger.Info("dropped unreachable participant",
				zap.String("participant", p.ID),
				zap.String("room", code),
				zap.Bool("room_deleted", deleted),
			)
			if code != "" && !deleted {
				out.Merge(s.membership(code, protocol.TypePlayerLeft, ""))
			}
		}
		return out
	})
}

// disconnected schedules the purge of p and tells its room.
func (s *Server) disconnected(p *player.Participant) session.Outbox {
	s.logger.Info("participant disconnected",
		zap.String("participant", p.ID),
		zap.String("name", p.Name),
		zap.String("room", p.RoomCode),
		zap.Duration("grace", s.purges.Delay()),
	)
	s.purges.Schedule(p.ID, s.purge)
	if p.RoomCode == "" {
		return session.Outbox{}
	}
	return s.membership(p.RoomCode, protocol.TypePlayerDisconnected, p.ID)
}

// purge forgets a participant whose grace period expired, unless it reconnected
// or a newer grace period superseded this one.
func (s *Server) purge(id string, gen uint64) {
	s.apply(func() session.Outbox {
		if !s.purges.Claim(id, gen) {
			return session.Outbox{}
		}
		p := s.dir.Participant(id)
		if p == nil || p.Connected {
			return session.Outbox{}
		}
		code, deleted := s.dir.Remove(id)
		s.logger.Info("purged participant",
			zap.String("participant", id),
			zap.String("room", code),
			zap.Bool("room_deleted", deleted),
		)
		if code == "" || deleted {
			return session.Outbox{}
		}
		return s.membership(code, protocol.TypePlayerLeft, "")
	})
}

// encode serializes v, logging and returning nil on failure.
func (s *Server) encode(v any) []byte {
	data, err := protocol.Encode(v)
	if err != nil {
		s.logger.Error("encoding envelope", zap.Error(err))
		return nil
	}
	return data
}

func (s *Server) send(p *player.Participant, v any) session.Outbox {
	data := s.encode(v)
	if data == nil {
		return session.Outbox{}
	}
	return s.dir.Send(p, data)
}

func (s *Server) broadcast(code string, v any, excludeID string) session.Outbox {
	data := s.encode(v)
	if data == nil {
		return session.Outbox{}
	}
	return s.dir.Broadcast(code, data, excludeID)
}

func (s *Server) replyError(conn player.Conn, code protocol.ErrorCode, message string) session.Outbox {
	var out session.Outbox
	if data := s.encode(protocol.NewError(code, message)); data != nil {
		recipient := ""
		if p := s.dir.ParticipantByConn(conn.ID()); p != nil {
			recipient = p.ID
		}
		out.Add(recipient, conn, data)
	}
	return out
}
