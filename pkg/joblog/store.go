package joblog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultMaxLineBytes caps the stored size of a single line.
	DefaultMaxLineBytes = 64 * 1024
	// DefaultMaxReadLines caps the number of lines returned by one Read.
	DefaultMaxReadLines = 1000
)

// Option configures a Store.
type Option interface {
	apply(*Store)
}

type optionFunc func(*Store)

func (f optionFunc) apply(s *Store) { f(s) }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Store) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithMaxLineBytes sets the maximum stored size of one line. Longer lines are
// truncated. Values <= 0 keep the default.
func WithMaxLineBytes(n int) Option {
	return optionFunc(func(s *Store) {
		if n > 0 {
			s.maxLineBytes = n
		}
	})
}

// WithMaxReadLines sets how many lines one Read returns at most.
func WithMaxReadLines(n int) Option {
	return optionFunc(func(s *Store) {
		if n > 0 {
			s.maxReadLines = n
		}
	})
}

// Store persists execution log lines with GORM.
type Store struct {
	db           *gorm.DB
	logger       *slog.Logger
	maxLineBytes int
	maxReadLines int

	// serializes line numbering within this process
	appendMu sync.Mutex
}

// NewStore creates a log store on db. Call Migrate before use.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       slog.Default(),
		maxLineBytes: DefaultMaxLineBytes,
		maxReadLines: DefaultMaxReadLines,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Migrate creates the necessary tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Line{})
}

// Append stores line as the next line of logID. Embedded newlines split the
// input into several lines.
func (s *Store) Append(ctx context.Context, logID int64, line string) error {
	parts := strings.Split(strings.TrimRight(line, "\n"), "\n")

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		err := tx.Model(&Line{}).
			Where("log_id = ?", logID).
			Select("COALESCE(MAX(line_num), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}

		now := time.Now()
		rows := make([]Line, 0, len(parts))
		for i, p := range parts {
			rows = append(rows, Line{
				LogID:     logID,
				LineNum:   last + i + 1,
				Content:   s.truncate(logID, p),
				CreatedAt: now,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}

func (s *Store) truncate(logID int64, line string) string {
	if len(line) <= s.maxLineBytes {
		return line
	}
	s.logger.Warn("log line truncated",
		"log_id", logID,
		"size", humanize.Bytes(uint64(len(line))),
		"limit", humanize.Bytes(uint64(s.maxLineBytes)))
	cut := line[:s.maxLineBytes]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// Read returns the lines of logID starting at fromLine (1-based). ToLineNum is
// the last line returned, or fromLine-1 when nothing is available yet, so the
// next fragment starts at ToLineNum+1. IsEnd is left for the caller to decide.
func (s *Store) Read(ctx context.Context, logID int64, fromLine int) (Fragment, error) {
	if fromLine < 1 {
		fromLine = 1
	}

	var lines []Line
	err := s.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Where("line_num >= ?", fromLine).
		Order("line_num ASC").
		Limit(s.maxReadLines).
		Find(&lines).Error
	if err != nil {
		return Fragment{}, err
	}

	frag := Fragment{FromLineNum: fromLine, ToLineNum: fromLine - 1}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Content)
		b.WriteByte('\n')
		frag.ToLineNum = l.LineNum
	}
	frag.LogContent = b.String()
	return frag, nil
}

// Prune deletes lines created before the given time and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&Line{})
	return result.RowsAffected, result.Error
}
