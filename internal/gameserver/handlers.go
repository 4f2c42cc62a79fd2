package gameserver

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/game/room"
	"github.com/cory-johannsen/impostor/internal/game/session"
	"github.com/cory-johannsen/impostor/internal/protocol"
)

// dispatch routes a decoded request to its handler.
//
// Precondition: s.mu is held.
func (s *Server) dispatch(conn player.Conn, req protocol.Request) (session.Outbox, error) {
	if r, ok := req.(protocol.JoinServer); ok {
		return s.handleJoinServer(conn, r), nil
	}

	p := s.dir.ParticipantByConn(conn.ID())
	if p == nil {
		return session.Outbox{}, ErrNotIdentified
	}

	switch r := req.(type) {
	case protocol.CreateRoom:
		return s.handleCreateRoom(p)
	case protocol.JoinRoom:
		return s.handleJoinRoom(p, r)
	case protocol.StartGame:
		return s.handleStartRound(p, protocol.TypeGameStarted)
	case protocol.NewRound:
		return s.handleStartRound(p, protocol.TypeNewRoundStarted)
	case protocol.GetRole:
		return s.handleGetRole(p)
	case protocol.RoleRevealed:
		return s.handleRoleRevealed(p)
	case protocol.ShowResults:
		return s.handleShowResults(p)
	case protocol.LeaveRoom:
		return s.handleLeaveRoom(p), nil
	default:
		return session.Outbox{}, protocol.ErrUnknownType
	}
}

func (s *Server) handleJoinServer(conn player.Conn, req protocol.JoinServer) session.Outbox {
	ident := s.dir.Identify(conn, req.Name, req.PlayerID)
	p := ident.Participant

	var out session.Outbox
	if ident.Detached != nil {
		out.Merge(s.disconnected(ident.Detached))
	}
	if ident.Reclaimed {
		s.purges.Cancel(p.ID)
	}

	s.logger.Info("participant identified",
		zap.String("participant", p.ID),
		zap.String("name", p.Name),
		zap.Bool("reclaimed", ident.Reclaimed),
		zap.String("room", p.RoomCode),
	)

	out.Merge(s.send(p, protocol.NewIdentified(p.ID, p.Name, p.RoomCode, ident.Reclaimed)))
	if ident.Reclaimed && p.RoomCode != "" {
		out.Merge(s.membership(p.RoomCode, protocol.TypePlayerReconnected, ""))
	}
	return out
}

func (s *Server) handleCreateRoom(p *player.Participant) (session.Outbox, error) {
	previous := p.RoomCode
	rm, err := s.dir.CreateRoom(p)
	if err != nil {
		return session.Outbox{}, err
	}

	s.logger.Info("room created", zap.String("room", rm.Code), zap.String("host", p.ID))

	var out session.Outbox
	if previous != "" {
		out.Merge(s.membership(previous, protocol.TypePlayerLeft, ""))
	}
	out.Merge(s.send(p, protocol.NewRoomCreated(rm.Code, playerList(rm))))
	return out, nil
}

func (s *Server) handleJoinRoom(p *player.Participant, req protocol.JoinRoom) (session.Outbox, error) {
	previous := p.RoomCode
	rm, err := s.dir.JoinRoom(p, req.RoomCode)
	switch {
	case errors.Is(err, session.ErrRoomNotFound),
		errors.Is(err, room.ErrNotJoinable),
		errors.Is(err, session.ErrHostCannotJoin):
		s.logger.Info("join rejected",
			zap.String("participant", p.ID),
			zap.String("room", session.NormalizeCode(req.RoomCode)),
			zap.Error(err),
		)
		return s.send(p, protocol.NewJoinFailed(err.Error())), nil
	case err != nil:
		return session.Outbox{}, err
	}

	s.logger.Info("room joined",
		zap.String("room", rm.Code),
		zap.String("participant", p.ID),
		zap.Int("members", rm.MemberCount()),
	)

	var out session.Outbox
	if previous != "" && previous != rm.Code {
		out.Merge(s.membership(previous, protocol.TypePlayerLeft, ""))
	}
	out.Merge(s.membership(rm.Code, protocol.TypePlayerJoined, ""))
	out.Merge(s.send(p, protocol.NewRoomJoined(rm.Code, playerList(rm))))
	return out, nil
}

func (s *Server) handleStartRound(p *player.Participant, typ string) (session.Outbox, error) {
	rm, err := s.hostedRoom(p)
	if err != nil {
		return session.Outbox{}, err
	}
	if err := rm.StartRound(s.topics, s.dir.Source()); err != nil {
		return session.Outbox{}, err
	}
	rm.Touch(s.dir.Now())

	s.logger.Info("round started",
		zap.String("room", rm.Code),
		zap.String("kind", typ),
		zap.Int("members", rm.MemberCount()),
	)
	return s.broadcast(rm.Code, protocol.NewRoundStarted(typ, string(rm.Phase()), rm.MemberCount()), ""), nil
}

func (s *Server) handleGetRole(p *player.Participant) (session.Outbox, error) {
	rm := s.dir.RoomFor(p)
	if rm == nil {
		return session.Outbox{}, ErrNotInRoom
	}
	role, err := rm.Role(p.ID)
	if err != nil {
		return session.Outbox{}, err
	}
	if role.Observer {
		return s.send(p, protocol.NewHostStatus()), nil
	}
	return s.send(p, protocol.NewRoleAssigned(role.IsImpostor, role.Topic, role.Name)), nil
}

func (s *Server) handleRoleRevealed(p *player.Participant) (session.Outbox, error) {
	rm := s.dir.RoomFor(p)
	if rm == nil {
		return session.Outbox{}, ErrNotInRoom
	}
	if rm.Phase() != room.PhasePlaying {
		return session.Outbox{}, room.ErrNotPlaying
	}
	if !rm.IsHost(p.ID) && !rm.IsMember(p.ID) {
		return session.Outbox{}, room.ErrNotMember
	}
	rm.MarkReady(p.ID)
	return s.broadcast(rm.Code, protocol.NewRoleRevealStatus(rm.ReadyCount(), rm.MemberCount(), rm.AllReady()), ""), nil
}

func (s *Server) handleShowResults(p *player.Participant) (session.Outbox, error) {
	rm, err := s.hostedRoom(p)
	if err != nil {
		return session.Outbox{}, err
	}
	res, err := rm.Results()
	if err != nil {
		return session.Outbox{}, err
	}
	s.logger.Info("results revealed", zap.String("room", rm.Code), zap.String("impostor", res.ImpostorID))
	return s.broadcast(rm.Code, protocol.NewGameResults(res.Topic, res.ImpostorName, res.ImpostorID), ""), nil
}

func (s *Server) handleLeaveRoom(p *player.Participant) session.Outbox {
	code, deleted := s.dir.LeaveRoom(p)
	if code == "" {
		return session.Outbox{}
	}
	s.logger.Info("room left",
		zap.String("room", code),
		zap.String("participant", p.ID),
		zap.Bool("room_deleted", deleted),
	)
	if deleted {
		return session.Outbox{}
	}
	return s.membership(code, protocol.TypePlayerLeft, "")
}

// hostedRoom returns the room p hosts.
func (s *Server) hostedRoom(p *player.Participant) (*room.Room, error) {
	rm := s.dir.RoomFor(p)
	if rm == nil {
		return nil, ErrNotInRoom
	}
	if !rm.IsHost(p.ID) {
		return nil, ErrNotHost
	}
	return rm, nil
}

// membership plans a player-list broadcast of type typ to the room named code.
func (s *Server) membership(code, typ, excludeID string) session.Outbox {
	rm := s.dir.Room(code)
	if rm == nil {
		return session.Outbox{}
	}
	return s.broadcast(code, protocol.NewMembership(typ, playerList(rm), string(rm.Phase())), excludeID)
}

// playerList renders a room's members in join order.
func playerList(rm *room.Room) []protocol.Player {
	members := rm.Members()
	out := make([]protocol.Player, 0, len(members))
	for _, m := range members {
		out = append(out, protocol.Player{
			ID:        m.ID,
			Name:      m.Name,
			Connected: m.Connected,
			Ready:     rm.IsReady(m.ID),
		})
	}
	return out
}

// errorCode maps a request failure to its wire code.
func errorCode(err error) protocol.ErrorCode {
	switch {
	case errors.Is(err, ErrNotIdentified):
		return protocol.CodeNotIdentified
	case errors.Is(err, ErrNotInRoom), errors.Is(err, session.ErrRoomNotFound):
		return protocol.CodeNotInRoom
	case errors.Is(err, ErrNotHost):
		return protocol.CodeNotHost
	case errors.Is(err, room.ErrNotMember), errors.Is(err, session.ErrHostCannotJoin):
		return protocol.CodeNotMember
	case errors.Is(err, room.ErrNotStartable), errors.Is(err, room.ErrNoTopics), errors.Is(err, room.ErrNotJoinable):
		return protocol.CodeRoundNotStartable
	case errors.Is(err, room.ErrNotPlaying):
		return protocol.CodeRoundNotStarted
	case errors.Is(err, session.ErrCodeSpaceExhausted):
		return protocol.CodeCodeSpaceExhausted
	case errors.Is(err, protocol.ErrMalformed):
		return protocol.CodeInvalidMessage
	case errors.Is(err, protocol.ErrUnknownType):
		return protocol.CodeUnknownType
	default:
		return protocol.CodeInternal
	}
}
