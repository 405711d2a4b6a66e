package groupcall

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/voipcore/transport"
	"github.com/sirupsen/logrus"
)

// ErrUnknownParticipant is returned when a forwarded datagram names a
// sender id not currently registered with the Session.
var ErrUnknownParticipant = errors.New("groupcall: unknown participant")

// Participant is one member of a group call, identified by the UDP address
// its two-party call engine sends from.
type Participant struct {
	ID         uint32
	Addr       net.Addr
	LastActive time.Time
}

// Session is a relay-only group call: every participant's STREAM_DATA
// envelope is forwarded verbatim to the other participants. The session
// never decrypts a datagram, so it carries no encryption key and cannot
// mix or transcode.
type Session struct {
	ID uuid.UUID

	mu           sync.RWMutex
	participants map[uint32]*Participant

	socket *transport.UDPSocket
}

// NewSession generates a random session id for a session that forwards
// datagrams on the given, already-bound relay socket.
func NewSession(socket *transport.UDPSocket) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:           id,
		participants: make(map[uint32]*Participant),
		socket:       socket,
	}, nil
}

// Join registers a participant's forwarding address.
func (s *Session) Join(id uint32, addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[id] = &Participant{ID: id, Addr: addr, LastActive: time.Now()}
}

// Leave removes a participant.
func (s *Session) Leave(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, id)
}

// ParticipantCount reports the number of joined participants.
func (s *Session) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// Forward relays one already-encrypted datagram from fromID to every other
// joined participant, without inspecting or decrypting it. Per-destination
// send failures are logged and otherwise ignored, matching the call
// engine's own best-effort UDP send path.
func (s *Session) Forward(fromID uint32, datagram []byte) error {
	logger := logrus.WithFields(logrus.Fields{"function": "Session.Forward", "package": "groupcall"})

	s.mu.RLock()
	if _, ok := s.participants[fromID]; !ok {
		s.mu.RUnlock()
		return ErrUnknownParticipant
	}
	targets := make([]*Participant, 0, len(s.participants)-1)
	for id, p := range s.participants {
		if id != fromID {
			targets = append(targets, p)
		}
	}
	s.mu.RUnlock()

	for _, p := range targets {
		if err := s.socket.Send(datagram, p.Addr); err != nil {
			logger.WithError(err).WithField("to", p.ID).Warn("failed to forward group datagram")
		}
	}
	return nil
}

// Touch refreshes a participant's last-active timestamp, used by a caller
// to expire silent participants.
func (s *Session) Touch(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[id]; ok {
		p.LastActive = time.Now()
	}
}
