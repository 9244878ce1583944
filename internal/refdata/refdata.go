// Package refdata reads names and support card facts from the game's master
// database. Lookups go through an LRU cache that Refresh empties.
package refdata

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/pkg/types"
)

var ErrNotFound = errors.New("refdata: not found")

type textKey struct {
	category int
	index    int64
}

// DB is a read-only view of the master database.
type DB struct {
	db     *sql.DB
	cats   config.TextCategories
	logger *slog.Logger

	texts *lru.Cache[textKey, string]
	cards *lru.Cache[int64, types.SupportCard]
}

// Open opens the master database read-only. Callers treat a failure as fatal.
func Open(cfg config.RefDataConfig, logger *slog.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("refdata: path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", "file:"+cfg.Path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open master db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open master db %s: %w", cfg.Path, err)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM text_data`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("master db %s has no text_data: %w", cfg.Path, err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 4096
	}
	texts, err := lru.New[textKey, string](size)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cards, err := lru.New[int64, types.SupportCard](size)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("master db opened", "path", cfg.Path, "texts", n)
	return &DB{db: db, cats: cfg.Categories, logger: logger, texts: texts, cards: cards}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Refresh drops every cached lookup, e.g. after the game updated its master data.
func (d *DB) Refresh() {
	d.texts.Purge()
	d.cards.Purge()
}

// Text returns the text_data entry for (category, index).
func (d *DB) Text(category int, index int64) (string, error) {
	key := textKey{category, index}
	if s, ok := d.texts.Get(key); ok {
		return s, nil
	}
	var s string
	err := d.db.QueryRow(`SELECT text FROM text_data WHERE category = ? AND "index" = ?`, category, index).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: text %d/%d", ErrNotFound, category, index)
	}
	if err != nil {
		return "", err
	}
	d.texts.Add(key, s)
	return s, nil
}

// name is Text that degrades to a placeholder and logs the miss.
func (d *DB) name(kind string, category int, index int64) string {
	s, err := d.Text(category, index)
	if err != nil {
		d.logger.Error("reference lookup failed", "kind", kind, "id", index, "error", err)
		return fmt.Sprintf("Unknown %s %d", kind, index)
	}
	return s
}

func (d *DB) CharaName(id int64) string {
	return d.name("character", d.cats.CharaName, id)
}

func (d *DB) SkillName(id int64) string {
	return d.name("skill", d.cats.SkillName, id)
}

func (d *DB) SupportCardName(id int64) string {
	return d.name("support card", d.cats.SupportCardName, id)
}

func (d *DB) StoryTitle(id int64) string {
	return d.name("story", d.cats.StoryTitle, id)
}

func (d *DB) RaceName(programID int64) string {
	return d.name("race", d.cats.RaceProgram, programID)
}

func (d *DB) StatusName(id int64) string {
	return d.name("status", d.cats.Status, id)
}

// StoryTitles returns the admissible on-page titles for a story id.
func (d *DB) StoryTitles(id int64) []string {
	s, err := d.Text(d.cats.StoryTitle, id)
	if err != nil {
		d.logger.Error("reference lookup failed", "kind", "story", "id", id, "error", err)
		return nil
	}
	return []string{s}
}

// SupportCard returns the reference facts for a support card.
func (d *DB) SupportCard(id int64) (types.SupportCard, error) {
	if c, ok := d.cards.Get(id); ok {
		return c, nil
	}
	c := types.SupportCard{ID: id}
	var kind int64
	err := d.db.QueryRow(`SELECT chara_id, command_id, support_card_type FROM support_card_data WHERE id = ?`, id).
		Scan(&c.CharaID, &c.CommandID, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SupportCard{}, fmt.Errorf("%w: support card %d", ErrNotFound, id)
	}
	if err != nil {
		return types.SupportCard{}, err
	}
	c.Kind = types.SupportKind(kind)
	if c.Kind == 0 {
		c.Kind = types.SupportNormal
	}
	c.Name = d.SupportCardName(id)
	d.cards.Add(id, c)
	return c, nil
}
