package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("not found")

// Store persists listening history: one row per session and one per
// played track.
type Store struct {
	open   gorm.Dialector
	db     *gorm.DB
	logger logger.Interface
}

func New(dbType, dbConn string, debug bool) (*Store, error) {
	var open gorm.Dialector
	switch dbType {
	case "postgres":
		open = postgres.Open(dbConn)
	case "mysql":
		open = mysql.Open(dbConn)
	case "sqlite":
		open = sqlite.Open(dbConn)
	default:
		return nil, fmt.Errorf("history: unknown db type: %s", dbType)
	}
	l := logger.Default.LogMode(logger.Silent)
	if debug {
		l = logger.Default.LogMode(logger.Warn)
	}
	return &Store{
		open:   open,
		logger: l,
	}, nil
}

func (s *Store) Start(ctx context.Context) error {
	// Open the database in a goroutine so we can time out if it takes
	// too long.
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	errC := make(chan error, 1)
	go func() {
		db, err := gorm.Open(s.open, &gorm.Config{
			Logger: s.logger,
		})
		if err != nil {
			errC <- fmt.Errorf("history: failed to open database: %w", err)
			return
		}
		s.db = db
		errC <- nil
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("history: timed out opening database: %w", ctx.Err())
		}
		return ctx.Err()
	case err := <-errC:
		if err != nil {
			return err
		}
	}
	if err := s.db.AutoMigrate(&Session{}, &Play{}); err != nil {
		return fmt.Errorf("history: failed to migrate database: %w", err)
	}
	return nil
}

// Session is one DJ session keyed by its mood prompt.
type Session struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time

	Mood   string `gorm:"not null;default:''"`
	Tracks int    `gorm:"not null;default:0"`
}

// Play is one track that reached the music channel.
type Play struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time

	SessionID string `gorm:"index;not null;default:''"`
	TrackID   string `gorm:"not null;default:''"`

	Title   string `gorm:"not null;default:''"`
	Artist  string `gorm:"not null;default:''"`
	Album   string `gorm:"not null;default:''"`
	Mood    string `gorm:"not null;default:''"`
	Skipped bool   `gorm:"not null;default:false"`
}

// AddSession stores a new session and returns its ID.
func (s *Store) AddSession(ctx context.Context, mood string, tracks int) (string, error) {
	v := &Session{
		ID:     ulid.Make().String(),
		Mood:   mood,
		Tracks: tracks,
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return "", fmt.Errorf("history: failed to create session: %w", err)
	}
	return v.ID, nil
}

// AddPlay stores one play row.
func (s *Store) AddPlay(ctx context.Context, v *Play) error {
	if v.ID == "" {
		v.ID = ulid.Make().String()
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("history: failed to create play: %w", err)
	}
	return nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var v Session
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history: failed to get session %s: %w", id, err)
	}
	return &v, nil
}

// ListPlays returns the most recent plays, newest first.
func (s *Store) ListPlays(ctx context.Context, limit int) ([]*Play, error) {
	if limit <= 0 {
		limit = 100
	}
	var vs []*Play
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("history: failed to list plays: %w", err)
	}
	return vs, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	var vs []*Session
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("history: failed to list sessions: %w", err)
	}
	return vs, nil
}
