package live

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/models"
)

func mustFrame(t *testing.T, event string, payload interface{}) Frame {
	t.Helper()
	f, err := NewFrame(event, payload)
	if err != nil {
		t.Fatalf("NewFrame(%s): %v", event, err)
	}
	return f
}

func testQuestion(id uuid.UUID, content string) models.Question {
	return models.Question{
		ID:      id,
		Author:  models.Participant{ID: uuid.New(), Username: "prospector", FullName: "Pro Spector"},
		Content: content,
		Status:  models.QuestionPending,
	}
}

func TestApplyQuestionCreatedIdempotent(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	q1 := testQuestion(uuid.New(), "first")
	q2 := testQuestion(uuid.New(), "second")

	if !s.apply(mustFrame(t, FrameQuestionCreated, q1)) {
		t.Fatalf("expected first delivery to change state")
	}
	if s.apply(mustFrame(t, FrameQuestionCreated, q1)) {
		t.Fatalf("expected duplicate delivery to be a no-op")
	}
	s.apply(mustFrame(t, FrameQuestionCreated, q2))

	v := s.view()
	if len(v.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(v.Questions))
	}
	if v.Questions[0].ID != q1.ID || v.Questions[1].ID != q2.ID {
		t.Fatalf("expected arrival order preserved")
	}
}

func TestApplyUpvoteLastWriteWins(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	q := testQuestion(uuid.New(), "how deep is the deposit?")
	s.apply(mustFrame(t, FrameQuestionCreated, q))

	s.apply(mustFrame(t, FrameQuestionUpvoted, QuestionUpvotedData{ID: q.ID, Upvotes: 3}))
	s.apply(mustFrame(t, FrameQuestionUpvoted, QuestionUpvotedData{ID: q.ID, Upvotes: 7}))

	if got := s.view().Questions[0].Upvotes; got != 7 {
		t.Fatalf("expected server total 7, got %d", got)
	}

	if s.apply(mustFrame(t, FrameQuestionUpvoted, QuestionUpvotedData{ID: uuid.New(), Upvotes: 1})) {
		t.Fatalf("expected upvote for unknown question to be ignored")
	}
}

func TestApplySnapshotReplacesWholesale(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	stale := testQuestion(uuid.New(), "stale")
	s.apply(mustFrame(t, FrameQuestionCreated, stale))
	s.apply(mustFrame(t, FrameParticipantJoined, models.Participant{ID: uuid.New(), Username: "gone"}))

	fresh := testQuestion(uuid.New(), "fresh")
	keep := models.Participant{ID: uuid.New(), Username: "kept"}
	snap := SnapshotData{
		Event:        models.Event{ID: uuid.New(), Title: "Drill Results Q3", Format: models.EventFormatText},
		Questions:    []models.Question{fresh},
		Participants: []models.Participant{keep},
	}
	s.apply(mustFrame(t, FrameSnapshot, snap))

	v := s.view()
	if len(v.Questions) != 1 || v.Questions[0].ID != fresh.ID {
		t.Fatalf("expected snapshot question set to replace local state, got %v", v.Questions)
	}
	if len(v.Participants) != 1 || v.Participants[0].ID != keep.ID {
		t.Fatalf("expected snapshot roster to replace local state")
	}
	if v.Event == nil || v.Event.Title != "Drill Results Q3" {
		t.Fatalf("expected event metadata from snapshot")
	}

	// Frames referencing snapshot entries keep working after the rebuild.
	s.apply(mustFrame(t, FrameQuestionUpvoted, QuestionUpvotedData{ID: fresh.ID, Upvotes: 2}))
	if got := s.view().Questions[0].Upvotes; got != 2 {
		t.Fatalf("expected upvote to apply after snapshot, got %d", got)
	}
}

func TestApplyParticipantSetSemantics(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	p := models.Participant{ID: uuid.New(), Username: "miner7", FullName: "Miner Seven"}

	s.apply(mustFrame(t, FrameParticipantJoined, p))
	if s.apply(mustFrame(t, FrameParticipantJoined, p)) {
		t.Fatalf("expected duplicate join to be a no-op")
	}
	if got := len(s.view().Participants); got != 1 {
		t.Fatalf("expected 1 participant, got %d", got)
	}

	if !s.apply(mustFrame(t, FrameParticipantLeft, ParticipantLeftData{ID: p.ID})) {
		t.Fatalf("expected leave to change state")
	}
	if got := len(s.view().Participants); got != 0 {
		t.Fatalf("expected empty roster, got %d", got)
	}
	if s.apply(mustFrame(t, FrameParticipantLeft, ParticipantLeftData{ID: p.ID})) {
		t.Fatalf("expected leave for absent participant to be a no-op")
	}
}

func TestApplyReactionBufferEviction(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	kinds := []models.ReactionType{
		models.ReactionApplause, models.ReactionThumbsUp, models.ReactionFire,
		models.ReactionHeart, models.ReactionApplause, models.ReactionFire,
	}
	base := time.Now()
	for i, k := range kinds {
		s.apply(mustFrame(t, FrameReactionSent, models.Reaction{Type: k, At: base.Add(time.Duration(i) * time.Second)}))
	}

	v := s.view()
	if len(v.Reactions) != 5 {
		t.Fatalf("expected buffer capped at 5, got %d", len(v.Reactions))
	}
	// Most recent first; the very first reaction has been evicted.
	if v.Reactions[0].Type != models.ReactionFire {
		t.Fatalf("expected newest reaction first, got %s", v.Reactions[0].Type)
	}
	for i := 0; i < len(v.Reactions)-1; i++ {
		if v.Reactions[i].At.Before(v.Reactions[i+1].At) {
			t.Fatalf("expected most-recent-first ordering")
		}
	}
}

func TestApplyQuestionUpdatedMergesFields(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	q := testQuestion(uuid.New(), "any plans for a second rig?")
	s.apply(mustFrame(t, FrameQuestionCreated, q))

	approved := models.QuestionApproved
	s.apply(mustFrame(t, FrameQuestionUpdated, QuestionUpdatedData{ID: q.ID, Status: &approved}))
	got := s.view().Questions[0]
	if got.Status != models.QuestionApproved || got.IsFeatured {
		t.Fatalf("expected status-only merge, got %+v", got)
	}

	featured := true
	s.apply(mustFrame(t, FrameQuestionUpdated, QuestionUpdatedData{ID: q.ID, IsFeatured: &featured}))
	got = s.view().Questions[0]
	if got.Status != models.QuestionApproved || !got.IsFeatured {
		t.Fatalf("expected featured merge to keep status, got %+v", got)
	}
}

func TestApplyIgnoresUnknownAndMalformed(t *testing.T) {
	s := newEventState(5, zap.NewNop())
	q := testQuestion(uuid.New(), "baseline")
	s.apply(mustFrame(t, FrameQuestionCreated, q))

	if s.apply(Frame{Event: "poll.launched", Data: json.RawMessage(`{"id":"x"}`)}) {
		t.Fatalf("expected unknown frame type to be ignored")
	}
	if s.apply(Frame{Event: FrameSnapshot, Data: json.RawMessage(`{not json`)}) {
		t.Fatalf("expected malformed snapshot to be ignored")
	}
	if s.apply(Frame{Event: FrameQuestionUpvoted, Data: json.RawMessage(`"nope"`)}) {
		t.Fatalf("expected malformed upvote to be ignored")
	}

	v := s.view()
	if len(v.Questions) != 1 || v.Questions[0].ID != q.ID {
		t.Fatalf("expected state untouched by bad frames")
	}
}
