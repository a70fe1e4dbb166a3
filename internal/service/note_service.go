package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"notetree-server/internal/domain"
	"notetree-server/internal/repository"
	"notetree-server/pkg/protect"

	"go.uber.org/zap"
)

// NoteService implements the note lifecycle: creation, content updates with
// history snapshots, recursive protection and cascading soft delete.
type NoteService struct {
	store       repository.UnitOfWork
	codec       protect.Codec
	options     *OptionService
	syncService *SyncService
	logger      *zap.Logger
	auditWindow time.Duration
	now         func() time.Time
}

func NewNoteService(
	store repository.UnitOfWork,
	codec protect.Codec,
	options *OptionService,
	syncService *SyncService,
	logger *zap.Logger,
	auditWindow time.Duration,
) *NoteService {
	return &NoteService{
		store:       store,
		codec:       codec,
		options:     options,
		syncService: syncService,
		logger:      logger.Named("notes"),
		auditWindow: auditWindow,
		now:         time.Now,
	}
}

// Create inserts a note with its first placement under parentNoteID. An empty
// parentNoteID places the note at the top level.
//
// The protection flag is stored as requested but the initial title is not
// encrypted.
func (s *NoteService) Create(ctx context.Context, parentNoteID string, req *domain.CreateNoteRequest, actorID string) (resp *domain.CreateNoteResponse, err error) {
	defer func() { observe("create", err) }()

	if req.Target != domain.TargetInto && req.Target != domain.TargetAfter {
		return nil, opError("create", parentNoteID, invalidRequest("unknown target: %q", req.Target))
	}

	var parentID *string
	if parentNoteID != "" {
		parentID = &parentNoteID
	}

	noteID := domain.NewNoteID()
	placementID := domain.NewPlacementID()

	var changes []*domain.ChangeRecord
	err = s.store.RunInTransaction(ctx, func(r *repository.Repositories) error {
		now := s.now()

		position, err := s.placementPosition(ctx, r, parentID, req, now)
		if err != nil {
			return err
		}

		if err := r.Audits.Add(ctx, &domain.AuditEntry{
			Category:   domain.AuditCreateNote,
			ActorID:    actorID,
			SubjectID:  noteID,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		tracker := newChangeTracker(r.Sync, now)
		if err := tracker.add(ctx, domain.EntityPlacement, placementID); err != nil {
			return err
		}
		if err := tracker.add(ctx, domain.EntityNote, noteID); err != nil {
			return err
		}

		if err := r.Notes.Create(ctx, &domain.Note{
			ID:          noteID,
			Title:       req.Title,
			Text:        []byte{},
			IsProtected: req.IsProtected,
			CreatedAt:   now,
			ModifiedAt:  now,
		}); err != nil {
			return err
		}

		if err := r.Placements.Create(ctx, &domain.Placement{
			ID:         placementID,
			NoteID:     noteID,
			ParentID:   parentID,
			Position:   position,
			ModifiedAt: now,
		}); err != nil {
			return err
		}

		changes = tracker.changes
		return nil
	})
	if err != nil {
		return nil, opError("create", noteID, err)
	}

	s.syncService.Publish(actorID, changes)

	return &domain.CreateNoteResponse{
		NoteID:      noteID,
		PlacementID: placementID,
	}, nil
}

// placementPosition computes the new placement's position. For "after" it
// also shifts the following siblings, so it must run in the same unit as the
// placement insert.
func (s *NoteService) placementPosition(ctx context.Context, r *repository.Repositories, parentID *string, req *domain.CreateNoteRequest, now time.Time) (int, error) {
	switch req.Target {
	case domain.TargetInto:
		max, ok, err := r.Placements.MaxPosition(ctx, parentID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		return max + 1, nil

	case domain.TargetAfter:
		sibling, err := r.Placements.FindByID(ctx, req.TargetPlacementID)
		if err != nil {
			return 0, opError("create", req.TargetPlacementID, err)
		}
		if !sameParent(sibling.ParentID, parentID) {
			return 0, invalidRequest("placement %s is not a child of %q", sibling.ID, derefParent(parentID))
		}
		if _, err := r.Placements.ShiftAfter(ctx, parentID, sibling.Position, now); err != nil {
			return 0, err
		}
		return sibling.Position + 1, nil
	}

	return 0, invalidRequest("unknown target: %q", req.Target)
}

// Update replaces a note's title, text, protection flag and images.
//
// A history snapshot is written only when no snapshot of the note started
// within the configured interval. Every snapshot of the note is reconciled to
// the new protection flag in the same unit as the note update.
func (s *NoteService) Update(ctx context.Context, noteID string, req *domain.UpdateNoteRequest, sess *domain.Session) (err error) {
	defer func() { observe("update", err) }()

	titleForHistory := req.Title
	textForHistory := req.Text

	candidate := &domain.Note{
		ID:          noteID,
		Title:       req.Title,
		Text:        req.Text,
		IsProtected: req.IsProtected,
	}

	if candidate.IsProtected {
		key, err := sess.RequireDataKey()
		if err != nil {
			return opError("update", noteID, err)
		}
		if err := s.encryptNote(candidate, key); err != nil {
			return opError("update", noteID, err)
		}
	}

	repos := s.store.Repositories()

	orig, err := repos.Notes.FindByID(ctx, noteID)
	if err != nil {
		return opError("update", noteID, err)
	}

	now := s.now()

	interval, err := s.options.SnapshotInterval(ctx)
	if err != nil {
		return opError("update", noteID, err)
	}

	_, snapshotExists, err := repos.History.FindIDSince(ctx, noteID, now.Add(-interval))
	if err != nil {
		return opError("update", noteID, err)
	}

	actorID := sessionActor(sess)

	var changes []*domain.ChangeRecord
	err = s.store.RunInTransaction(ctx, func(r *repository.Repositories) error {
		tracker := newChangeTracker(r.Sync, now)

		if !snapshotExists {
			historyID := domain.NewHistoryID()
			if err := r.History.Create(ctx, &domain.NoteHistory{
				ID:     historyID,
				NoteID: noteID,
				Title:  titleForHistory,
				Text:   textForHistory,
				// protectHistory below converts it when the note is protected
				IsProtected: false,
				WindowStart: now,
				WindowEnd:   now,
			}); err != nil {
				return err
			}
			if err := tracker.add(ctx, domain.EntityNoteHistory, historyID); err != nil {
				return err
			}
		}

		if err := s.protectHistory(ctx, r, tracker, noteID, sess, candidate.IsProtected); err != nil {
			return err
		}

		if err := s.addNoteAudits(ctx, r, orig, candidate, actorID, now); err != nil {
			return err
		}

		candidate.ModifiedAt = now
		if err := r.Notes.UpdateContent(ctx, candidate); err != nil {
			return err
		}

		if err := s.replaceImages(ctx, r, noteID, req.Images, now); err != nil {
			return err
		}

		if err := tracker.add(ctx, domain.EntityNote, noteID); err != nil {
			return err
		}

		changes = tracker.changes
		return nil
	})
	if err != nil {
		return opError("update", noteID, err)
	}

	s.syncService.Publish(actorID, changes)
	return nil
}

func (s *NoteService) replaceImages(ctx context.Context, r *repository.Repositories, noteID string, images []domain.Attachment, now time.Time) error {
	if _, err := r.Attachments.RemoveAllForNote(ctx, noteID); err != nil {
		return err
	}

	for _, img := range images {
		if img.ID == "" {
			return invalidRequest("image without id")
		}
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return &OperationError{ID: img.ID, Kind: ErrInvalidRequest, Err: err}
		}
		if err := r.Attachments.Create(ctx, &domain.Image{
			ID:        img.ID,
			NoteID:    noteID,
			MimeType:  img.MimeType,
			Data:      data,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// addNoteAudits writes audit entries for the fields that differ between orig
// and updated. A nil orig counts as every field changed.
func (s *NoteService) addNoteAudits(ctx context.Context, r *repository.Repositories, orig, updated *domain.Note, actorID string, now time.Time) error {
	noteID := updated.ID

	if orig == nil || updated.Title != orig.Title {
		if err := s.supersedeAudit(ctx, r, domain.AuditUpdateTitle, actorID, noteID, now); err != nil {
			return err
		}
	}

	if orig == nil || !bytes.Equal(updated.Text, orig.Text) {
		if err := s.supersedeAudit(ctx, r, domain.AuditUpdateContent, actorID, noteID, now); err != nil {
			return err
		}
	}

	if orig == nil || updated.IsProtected != orig.IsProtected {
		var before *string
		if orig != nil {
			before = boolString(orig.IsProtected)
		}
		if err := r.Audits.Add(ctx, &domain.AuditEntry{
			Category:   domain.AuditProtected,
			ActorID:    actorID,
			SubjectID:  noteID,
			Before:     before,
			After:      boolString(updated.IsProtected),
			OccurredAt: now,
		}); err != nil {
			return err
		}
	}

	return nil
}

func (s *NoteService) supersedeAudit(ctx context.Context, r *repository.Repositories, category domain.AuditCategory, actorID, noteID string, now time.Time) error {
	if category.Supersedes() {
		if _, err := r.Audits.DeleteRecent(ctx, category, actorID, noteID, now.Add(-s.auditWindow)); err != nil {
			return err
		}
	}
	return r.Audits.Add(ctx, &domain.AuditEntry{
		Category:   category,
		ActorID:    actorID,
		SubjectID:  noteID,
		OccurredAt: now,
	})
}

// ProtectRecursively encrypts (target=true) or decrypts the note, its
// history and every descendant reachable through placements, including
// deleted ones. Each note is converted in its own unit; a failure stops the
// walk and leaves already converted notes in place. Calling it again with the
// same target finishes the job.
func (s *NoteService) ProtectRecursively(ctx context.Context, noteID string, sess *domain.Session, target bool) (err error) {
	defer func() { observe("protect", err) }()

	if _, err := sess.RequireDataKey(); err != nil {
		return opError("protect", noteID, err)
	}

	stack := []string{noteID}
	visited := make(map[string]bool)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[id] {
			continue
		}
		visited[id] = true

		children, err := s.protectNote(ctx, id, sess, target)
		if err != nil {
			s.logger.Error("protect cascade stopped",
				zap.String("root_note_id", noteID),
				zap.String("note_id", id),
				zap.Error(err))
			return opError("protect", id, err)
		}
		cascadeStepsTotal.WithLabelValues("protect").Inc()

		for i := len(children) - 1; i >= 0; i-- {
			if !visited[children[i]] {
				stack = append(stack, children[i])
			}
		}
	}

	return nil
}

// protectNote converts a single note and its history in one unit and returns
// the ids of its child notes.
func (s *NoteService) protectNote(ctx context.Context, noteID string, sess *domain.Session, target bool) ([]string, error) {
	var (
		children []string
		changes  []*domain.ChangeRecord
		changed  bool
	)

	err := s.store.RunInTransaction(ctx, func(r *repository.Repositories) error {
		now := s.now()
		tracker := newChangeTracker(r.Sync, now)

		note, err := r.Notes.FindByID(ctx, noteID)
		if err != nil {
			return err
		}

		wasProtected := note.IsProtected
		changed, err = s.convertNote(note, sess, target)
		if err != nil {
			return err
		}

		if changed {
			if err := r.Notes.UpdateProtection(ctx, note); err != nil {
				return err
			}
			if err := tracker.add(ctx, domain.EntityNote, noteID); err != nil {
				return err
			}
			if err := r.Audits.Add(ctx, &domain.AuditEntry{
				Category:   domain.AuditProtected,
				ActorID:    sessionActor(sess),
				SubjectID:  noteID,
				Before:     boolString(wasProtected),
				After:      boolString(target),
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}

		if err := s.protectHistory(ctx, r, tracker, noteID, sess, target); err != nil {
			return err
		}

		placements, err := r.Placements.ListChildren(ctx, noteID, true)
		if err != nil {
			return err
		}
		children = children[:0]
		for _, p := range placements {
			children = append(children, p.NoteID)
		}

		changes = tracker.changes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("note protection reconciled",
		zap.String("note_id", noteID),
		zap.Bool("protect", target),
		zap.Bool("changed", changed),
		zap.Int("changes", len(changes)))

	s.syncService.Publish(sessionActor(sess), changes)
	return children, nil
}

// protectHistory converts every snapshot of noteID whose flag differs from
// protect. The data key is only required when there is something to convert.
func (s *NoteService) protectHistory(ctx context.Context, r *repository.Repositories, tracker *changeTracker, noteID string, sess *domain.Session, target bool) error {
	pending, err := r.History.ListWithProtectionOtherThan(ctx, noteID, target)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	key, err := sess.RequireDataKey()
	if err != nil {
		return err
	}

	for _, h := range pending {
		if target {
			h.Title, h.Text, err = s.encryptFields(h.ID, h.Title, h.Text, key)
		} else {
			h.Title, h.Text, err = s.decryptFields(h.ID, h.Title, h.Text, key)
		}
		if err != nil {
			return &OperationError{ID: h.ID, Kind: ErrInvalidRequest, Err: err}
		}
		h.IsProtected = target

		if err := r.History.UpdateProtection(ctx, h); err != nil {
			return err
		}
		if err := tracker.add(ctx, domain.EntityNoteHistory, h.ID); err != nil {
			return err
		}
	}
	return nil
}

// convertNote moves note to the requested protection state in memory and
// reports whether anything changed.
func (s *NoteService) convertNote(note *domain.Note, sess *domain.Session, target bool) (bool, error) {
	if note.IsProtected == target {
		return false, nil
	}

	key, err := sess.RequireDataKey()
	if err != nil {
		return false, err
	}

	if target {
		note.Title, note.Text, err = s.encryptFields(note.ID, note.Title, note.Text, key)
	} else {
		note.Title, note.Text, err = s.decryptFields(note.ID, note.Title, note.Text, key)
	}
	if err != nil {
		return false, err
	}
	note.IsProtected = target
	return true, nil
}

func (s *NoteService) encryptNote(note *domain.Note, key []byte) error {
	title, text, err := s.encryptFields(note.ID, note.Title, note.Text, key)
	if err != nil {
		return err
	}
	note.Title, note.Text = title, text
	return nil
}

func (s *NoteService) encryptFields(id, title string, text, key []byte) (string, []byte, error) {
	encTitle, err := protect.EncryptString(s.codec, key, protect.TitleNonce(id), title)
	if err != nil {
		return "", nil, err
	}
	encText, err := s.codec.Encrypt(key, protect.TextNonce(id), text)
	if err != nil {
		return "", nil, err
	}
	return encTitle, encText, nil
}

func (s *NoteService) decryptFields(id, title string, text, key []byte) (string, []byte, error) {
	decTitle, err := protect.DecryptString(s.codec, key, protect.TitleNonce(id), title)
	if err != nil {
		return "", nil, err
	}
	decText, err := s.codec.Decrypt(key, protect.TextNonce(id), text)
	if err != nil {
		return "", nil, err
	}
	return decTitle, decText, nil
}

// DeleteByPlacement soft-deletes a placement. When it was the note's last live
// placement the note is deleted too and the delete cascades to the note's
// child placements. Each placement is handled in its own unit; the "note
// deleted" audit for a placement is written after its whole subtree.
func (s *NoteService) DeleteByPlacement(ctx context.Context, placementID, actorID string) (err error) {
	defer func() { observe("delete", err) }()

	type frame struct {
		placementID string
		// audit is set on the frame revisited after the subtree is done
		audit bool
	}

	stack := []frame{{placementID: placementID}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.audit {
			if err := s.store.Repositories().Audits.Add(ctx, &domain.AuditEntry{
				Category:   domain.AuditDeleteNote,
				ActorID:    actorID,
				SubjectID:  f.placementID,
				OccurredAt: s.now(),
			}); err != nil {
				return opError("delete", f.placementID, err)
			}
			continue
		}

		children, transitioned, err := s.deletePlacement(ctx, f.placementID, actorID)
		if err != nil {
			s.logger.Error("delete cascade stopped",
				zap.String("root_placement_id", placementID),
				zap.String("placement_id", f.placementID),
				zap.Error(err))
			return opError("delete", f.placementID, err)
		}
		cascadeStepsTotal.WithLabelValues("delete").Inc()

		if transitioned {
			stack = append(stack, frame{placementID: f.placementID, audit: true})
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{placementID: children[i]})
		}
	}

	return nil
}

// deletePlacement runs one cascade step. It returns the live child placements
// to visit next and whether the note transitioned to deleted in this step.
// Children of an already deleted note are still returned so a retried cascade
// converges.
func (s *NoteService) deletePlacement(ctx context.Context, placementID, actorID string) ([]string, bool, error) {
	var (
		children    []string
		noteDeleted bool
		changes     []*domain.ChangeRecord
	)

	err := s.store.RunInTransaction(ctx, func(r *repository.Repositories) error {
		now := s.now()
		tracker := newChangeTracker(r.Sync, now)

		if err := r.Placements.MarkDeleted(ctx, placementID, now); err != nil {
			return err
		}
		if err := tracker.add(ctx, domain.EntityPlacement, placementID); err != nil {
			return err
		}

		placement, err := r.Placements.FindByID(ctx, placementID)
		if err != nil {
			return err
		}

		remaining, err := r.Placements.CountActiveForNote(ctx, placement.NoteID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			changes = tracker.changes
			return nil
		}

		note, err := r.Notes.FindByID(ctx, placement.NoteID)
		if err != nil {
			return err
		}
		if err := r.Notes.MarkDeleted(ctx, note.ID, now); err != nil {
			return err
		}
		if err := tracker.add(ctx, domain.EntityNote, note.ID); err != nil {
			return err
		}
		noteDeleted = !note.IsDeleted

		live, err := r.Placements.ListChildren(ctx, note.ID, false)
		if err != nil {
			return err
		}
		children = children[:0]
		for _, p := range live {
			children = append(children, p.ID)
		}

		changes = tracker.changes
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.syncService.Publish(actorID, changes)
	return children, noteDeleted, nil
}

// Get returns a note, decrypted when it is protected and sess holds a data key.
func (s *NoteService) Get(ctx context.Context, noteID string, sess *domain.Session) (*domain.NoteResponse, error) {
	note, err := s.store.Repositories().Notes.FindByID(ctx, noteID)
	if err != nil {
		return nil, opError("get", noteID, err)
	}

	if note.IsProtected {
		if key, err := sess.RequireDataKey(); err == nil {
			note.Title, note.Text, err = s.decryptFields(note.ID, note.Title, note.Text, key)
			if err != nil {
				return nil, opError("get", noteID, err)
			}
		}
	}

	return note.ToResponse(), nil
}

// ListHistory returns the note's snapshots newest first, decrypting protected
// ones when sess holds a data key.
func (s *NoteService) ListHistory(ctx context.Context, noteID string, sess *domain.Session) ([]*domain.NoteHistory, error) {
	repos := s.store.Repositories()

	if _, err := repos.Notes.FindByID(ctx, noteID); err != nil {
		return nil, opError("history", noteID, err)
	}

	history, err := repos.History.ListByNote(ctx, noteID)
	if err != nil {
		return nil, opError("history", noteID, err)
	}

	key, keyErr := sess.RequireDataKey()
	for _, h := range history {
		if !h.IsProtected || keyErr != nil {
			continue
		}
		h.Title, h.Text, err = s.decryptFields(h.ID, h.Title, h.Text, key)
		if err != nil {
			return nil, opError("history", h.ID, err)
		}
	}

	if history == nil {
		history = []*domain.NoteHistory{}
	}
	return history, nil
}

func sessionActor(sess *domain.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ActorID
}

func boolString(b bool) *string {
	v := strconv.FormatBool(b)
	return &v
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefParent(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
