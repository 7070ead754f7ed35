package live

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/models"
)

// DefaultReactionBuffer is the recent-reactions history size when the caller
// does not pick one.
const DefaultReactionBuffer = 20

// eventState is the client's view of one live event, built exclusively from
// server frames. It is not safe for concurrent use; the Client serializes
// access.
type eventState struct {
	event          *models.Event
	questions      []models.Question
	questionIdx    map[uuid.UUID]int
	participants   []models.Participant
	participantIdx map[uuid.UUID]int
	reactions      []models.Reaction // most-recent-first
	reactionCap    int
	logger         *zap.Logger
}

func newEventState(reactionCap int, logger *zap.Logger) *eventState {
	if reactionCap <= 0 {
		reactionCap = DefaultReactionBuffer
	}
	return &eventState{
		questionIdx:    make(map[uuid.UUID]int),
		participantIdx: make(map[uuid.UUID]int),
		reactionCap:    reactionCap,
		logger:         logger,
	}
}

// apply processes one inbound frame and reports whether state changed.
// Unknown frame types and malformed payloads are ignored so the channel stays
// forward-compatible with server additions.
func (s *eventState) apply(f Frame) bool {
	switch f.Event {
	case FrameSnapshot:
		var data SnapshotData
		if !s.decode(f, &data) {
			return false
		}
		s.replace(data)
		return true
	case FrameQuestionCreated:
		var q models.Question
		if !s.decode(f, &q) {
			return false
		}
		return s.addQuestion(q)
	case FrameQuestionUpvoted:
		var data QuestionUpvotedData
		if !s.decode(f, &data) {
			return false
		}
		i, ok := s.questionIdx[data.ID]
		if !ok {
			return false
		}
		// Last write wins: the server total replaces whatever we had.
		s.questions[i].Upvotes = data.Upvotes
		return true
	case FrameQuestionUpdated:
		var data QuestionUpdatedData
		if !s.decode(f, &data) {
			return false
		}
		i, ok := s.questionIdx[data.ID]
		if !ok {
			return false
		}
		if data.Status != nil {
			s.questions[i].Status = *data.Status
		}
		if data.IsFeatured != nil {
			s.questions[i].IsFeatured = *data.IsFeatured
		}
		return true
	case FrameParticipantJoined:
		var p models.Participant
		if !s.decode(f, &p) {
			return false
		}
		return s.addParticipant(p)
	case FrameParticipantLeft:
		var data ParticipantLeftData
		if !s.decode(f, &data) {
			return false
		}
		return s.removeParticipant(data.ID)
	case FrameReactionSent:
		var r models.Reaction
		if !s.decode(f, &r) {
			return false
		}
		if r.At.IsZero() {
			r.At = time.Now()
		}
		s.addReaction(r)
		return true
	default:
		s.logger.Debug("ignoring unknown frame", zap.String("event", f.Event))
		return false
	}
}

func (s *eventState) decode(f Frame, v interface{}) bool {
	if err := json.Unmarshal(f.Data, v); err != nil {
		s.logger.Debug("ignoring malformed frame", zap.String("event", f.Event), zap.Error(err))
		return false
	}
	return true
}

func (s *eventState) replace(data SnapshotData) {
	ev := data.Event
	s.event = &ev
	s.questions = s.questions[:0]
	s.questionIdx = make(map[uuid.UUID]int, len(data.Questions))
	for _, q := range data.Questions {
		s.addQuestion(q)
	}
	s.participants = s.participants[:0]
	s.participantIdx = make(map[uuid.UUID]int, len(data.Participants))
	for _, p := range data.Participants {
		s.addParticipant(p)
	}
	// Reactions are transient and deliberately survive a snapshot: the server
	// never replays them, so dropping them here would only lose animations.
}

func (s *eventState) addQuestion(q models.Question) bool {
	if _, ok := s.questionIdx[q.ID]; ok {
		return false
	}
	s.questionIdx[q.ID] = len(s.questions)
	s.questions = append(s.questions, q)
	return true
}

func (s *eventState) addParticipant(p models.Participant) bool {
	if _, ok := s.participantIdx[p.ID]; ok {
		return false
	}
	s.participantIdx[p.ID] = len(s.participants)
	s.participants = append(s.participants, p)
	return true
}

func (s *eventState) removeParticipant(id uuid.UUID) bool {
	i, ok := s.participantIdx[id]
	if !ok {
		return false
	}
	s.participants = append(s.participants[:i], s.participants[i+1:]...)
	delete(s.participantIdx, id)
	for j := i; j < len(s.participants); j++ {
		s.participantIdx[s.participants[j].ID] = j
	}
	return true
}

func (s *eventState) addReaction(r models.Reaction) {
	s.reactions = append([]models.Reaction{r}, s.reactions...)
	if len(s.reactions) > s.reactionCap {
		s.reactions = s.reactions[:s.reactionCap]
	}
}

// View is a copy of the client's current collections, safe to hold after the
// client keeps mutating its own state.
type View struct {
	Event        *models.Event
	Questions    []models.Question
	Participants []models.Participant
	Reactions    []models.Reaction
}

func (s *eventState) view() View {
	v := View{
		Questions:    make([]models.Question, len(s.questions)),
		Participants: make([]models.Participant, len(s.participants)),
		Reactions:    make([]models.Reaction, len(s.reactions)),
	}
	if s.event != nil {
		ev := *s.event
		v.Event = &ev
	}
	copy(v.Questions, s.questions)
	copy(v.Participants, s.participants)
	copy(v.Reactions, s.reactions)
	return v
}
