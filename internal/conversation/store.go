package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/db"
	"github.com/msourial/platefull/pkg/db/models"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

// SessionStore persists sessions keyed by user id.
type SessionStore interface {
	// Load returns the stored session, or a fresh initial one.
	Load(ctx context.Context, userID string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}

type sessionStore struct {
	db *gorm.DB
}

// NewSessionStore builds the gorm-backed session store.
func NewSessionStore(conn *gorm.DB) SessionStore {
	return &sessionStore{db: conn}
}

func (s *sessionStore) Load(ctx context.Context, userID string) (*Session, error) {
	var row models.ConversationSession
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if db.IsNotFound(err) {
		return newSession(userID), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}

	sess := &Session{
		UserID:         row.UserID,
		DisplayName:    row.DisplayName,
		State:          row.State,
		LastBotMessage: row.LastBotMessage,
	}
	if len(row.Context) > 0 && string(row.Context) != "null" {
		if err := json.Unmarshal(row.Context, &sess.Context); err != nil {
			// unreadable context cannot be resumed
			sess.Reset()
		}
	}
	return sess, nil
}

func (s *sessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session user id required")
	}
	raw, err := json.Marshal(sess.Context)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session context")
	}

	var existing models.ConversationSession
	err = s.db.WithContext(ctx).Where("user_id = ?", sess.UserID).First(&existing).Error
	switch {
	case err == nil:
		existing.DisplayName = sess.DisplayName
		existing.State = sess.State
		existing.Context = raw
		existing.LastBotMessage = sess.LastBotMessage
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update session")
		}
		return nil
	case db.IsNotFound(err):
		row := models.ConversationSession{
			UserID:         sess.UserID,
			DisplayName:    sess.DisplayName,
			State:          sess.State,
			Context:        raw,
			LastBotMessage: sess.LastBotMessage,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "session created concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("create session for %s", sess.UserID))
		}
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find session")
	}
}
