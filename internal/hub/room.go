package hub

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/live"
	"github.com/adamdasovich/goldventure-live/internal/models"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrEmptyQuestion    = errors.New("question content is empty")
	ErrQuestionTooLong  = errors.New("question content too long")
	ErrUnknownReaction  = errors.New("unknown reaction type")
)

// Room holds the authoritative state for one live event: connected sessions,
// the question list with per-user vote tracking, and the participant roster.
// State is session-scoped by contract; nothing is persisted.
type Room struct {
	hub    *Hub
	event  models.Event
	logger *zap.Logger

	mu           sync.RWMutex
	subscribed   bool
	sessions     map[string]*session
	questions    []*models.Question
	questionIdx  map[uuid.UUID]*models.Question
	votes        map[uuid.UUID]map[uuid.UUID]struct{} // question id -> voter ids
	participants map[uuid.UUID]models.Participant
	presence     map[uuid.UUID]int // user id -> open session count
}

func newRoom(h *Hub, ev models.Event, logger *zap.Logger) *Room {
	return &Room{
		hub:          h,
		event:        ev,
		logger:       logger,
		sessions:     make(map[string]*session),
		questionIdx:  make(map[uuid.UUID]*models.Question),
		votes:        make(map[uuid.UUID]map[uuid.UUID]struct{}),
		participants: make(map[uuid.UUID]models.Participant),
		presence:     make(map[uuid.UUID]int),
	}
}

// Event returns the room's event metadata.
func (r *Room) Event() models.Event {
	return r.event
}

// addSession sends the joining session a full snapshot, adds the user to the
// roster and broadcasts participant.joined for their first open session.
// Reports whether this is the room's first session.
func (r *Room) addSession(s *session) bool {
	r.mu.Lock()
	r.sessions[s.id] = s
	first := len(r.sessions) == 1
	r.presence[s.user.ID]++
	joined := r.presence[s.user.ID] == 1
	if joined {
		r.participants[s.user.ID] = s.user
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if f, err := live.NewFrame(live.FrameSnapshot, snapshot); err == nil {
		s.enqueue(f)
	}
	if joined {
		r.broadcastPayload(live.FrameParticipantJoined, s.user)
	}
	return first
}

// removeSession drops a session, broadcasting participant.left when the
// user's last session closes. Reports whether the room is now empty.
func (r *Room) removeSession(s *session) bool {
	r.mu.Lock()
	if _, ok := r.sessions[s.id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.id)
	empty := len(r.sessions) == 0
	r.presence[s.user.ID]--
	left := r.presence[s.user.ID] <= 0
	if left {
		delete(r.presence, s.user.ID)
		delete(r.participants, s.user.ID)
	}
	r.mu.Unlock()

	if left {
		r.broadcastPayload(live.FrameParticipantLeft, live.ParticipantLeftData{ID: s.user.ID})
	}
	return empty
}

func (r *Room) snapshotLocked() live.SnapshotData {
	data := live.SnapshotData{
		Event:        r.event,
		Questions:    make([]models.Question, 0, len(r.questions)),
		Participants: make([]models.Participant, 0, len(r.participants)),
	}
	for _, q := range r.questions {
		data.Questions = append(data.Questions, *q)
	}
	for _, p := range r.participants {
		data.Participants = append(data.Participants, p)
	}
	return data
}

// SubmitQuestion validates and stores a new question, then broadcasts
// question.created. The submitting client gets the question through the same
// broadcast as everyone else.
func (r *Room) SubmitQuestion(author models.Participant, content string) (models.Question, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Question{}, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(content) > models.MaxQuestionLength {
		return models.Question{}, ErrQuestionTooLong
	}

	q := &models.Question{
		ID:        uuid.New(),
		EventID:   r.event.ID,
		Author:    author,
		Content:   content,
		Status:    models.QuestionPending,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.questions = append(r.questions, q)
	r.questionIdx[q.ID] = q
	out := *q
	r.mu.Unlock()

	r.broadcastPayload(live.FrameQuestionCreated, out)
	return out, nil
}

// Upvote records one vote per user per question and broadcasts the new total.
// Duplicate votes are dropped without a broadcast.
func (r *Room) Upvote(questionID, userID uuid.UUID) error {
	r.mu.Lock()
	q, ok := r.questionIdx[questionID]
	if !ok {
		r.mu.Unlock()
		return ErrQuestionNotFound
	}
	voters := r.votes[questionID]
	if voters == nil {
		voters = make(map[uuid.UUID]struct{})
		r.votes[questionID] = voters
	}
	if _, voted := voters[userID]; voted {
		r.mu.Unlock()
		return nil
	}
	voters[userID] = struct{}{}
	q.Upvotes = len(voters)
	total := q.Upvotes
	r.mu.Unlock()

	r.broadcastPayload(live.FrameQuestionUpvoted, live.QuestionUpvotedData{ID: questionID, Upvotes: total})
	return nil
}

// React broadcasts a reaction.sent frame. Reactions are not stored.
func (r *Room) React(kind models.ReactionType) error {
	if !kind.Valid() {
		return ErrUnknownReaction
	}
	r.broadcastPayload(live.FrameReactionSent, models.Reaction{Type: kind, At: time.Now().UTC()})
	return nil
}

// SetStatus moves a question through moderation and broadcasts question.updated.
func (r *Room) SetStatus(questionID uuid.UUID, status models.QuestionStatus) error {
	r.mu.Lock()
	q, ok := r.questionIdx[questionID]
	if !ok {
		r.mu.Unlock()
		return ErrQuestionNotFound
	}
	q.Status = status
	r.mu.Unlock()

	r.broadcastPayload(live.FrameQuestionUpdated, live.QuestionUpdatedData{ID: questionID, Status: &status})
	return nil
}

// SetFeatured toggles the featured flag and broadcasts question.updated.
func (r *Room) SetFeatured(questionID uuid.UUID, featured bool) error {
	r.mu.Lock()
	q, ok := r.questionIdx[questionID]
	if !ok {
		r.mu.Unlock()
		return ErrQuestionNotFound
	}
	q.IsFeatured = featured
	r.mu.Unlock()

	r.broadcastPayload(live.FrameQuestionUpdated, live.QuestionUpdatedData{ID: questionID, IsFeatured: &featured})
	return nil
}

// Questions returns a copy of the question list in submission order.
func (r *Room) Questions() []models.Question {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Question, 0, len(r.questions))
	for _, q := range r.questions {
		out = append(out, *q)
	}
	return out
}

// ParticipantCount returns the number of distinct connected users.
func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

func (r *Room) broadcastPayload(event string, payload interface{}) {
	f, err := live.NewFrame(event, payload)
	if err != nil {
		r.logger.Warn("frame marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	r.broadcast(f)
}

// setSubscribed records whether the room has a live Redis subscription.
func (r *Room) setSubscribed(on bool) {
	r.mu.Lock()
	r.subscribed = on
	r.mu.Unlock()
}

// broadcast routes a frame to every session on every instance. With a
// publisher configured and the room subscribed, the frame goes through Redis
// only; the subscription callback delivers it locally, so local clients see
// it exactly once. Without a subscription, publishing alone would strand this
// instance's own sessions, so the frame is also delivered directly.
func (r *Room) broadcast(f live.Frame) {
	r.mu.RLock()
	subscribed := r.subscribed
	r.mu.RUnlock()

	if r.hub.pub != nil {
		err := r.hub.pub.PublishEventFrame(r.event.ID, f)
		if err == nil && subscribed {
			return
		}
		// Publish failed or no subscription echoes frames back; deliver
		// locally so this instance's viewers keep up.
	}
	r.deliver(f)
}

// deliver fans a frame out to local sessions. Slow consumers are skipped
// rather than allowed to stall the room.
func (r *Room) deliver(f live.Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.enqueue(f)
	}
}
