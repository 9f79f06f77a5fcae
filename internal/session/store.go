package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olc-dev/olc/internal/codec"
	"github.com/olc-dev/olc/internal/debug"
)

const (
	indexFileName = "index.json"
	plainSuffix   = ".json"
	cryptSuffix   = ".json.enc"
)

// Options configures a Store. EncryptionKey must be set when Encrypt is.
type Options struct {
	Masker         *codec.Masker
	Encrypt        bool
	EncryptionKey  string
	RetentionCount int
	RetentionDays  int
}

// Store persists sessions under a directory: an index.json of Meta entries
// plus one payload file per session. Payloads are masked and optionally
// encrypted on the way in. Not safe for concurrent use.
type Store struct {
	dir  string
	opts Options
	now  func() time.Time
}

// index is the on-disk shape of index.json.
type index struct {
	Sessions []Meta `json:"sessions"`
}

// New opens a store rooted at dir, creating the directory if needed.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions dir: %w", err)
	}
	return &Store{dir: dir, opts: opts, now: time.Now}, nil
}

// Save writes the session payload and upserts its index entry. The id is
// taken from data.Meta.ID, generated when empty. CreatedAt is preserved for
// sessions already in the index. Returns the final metadata.
func (s *Store) Save(data *Data) (Meta, error) {
	now := s.now().UTC()

	meta := data.Meta
	if meta.ID == "" {
		meta.ID = NewID(now)
	}
	meta.UpdatedAt = now
	meta.CreatedAt = now
	meta.MessageCount = messageCount(data.Messages)
	meta.TokenTotal = data.Usage.TotalTokens
	meta.Encrypted = s.opts.Encrypt
	meta.Path = filepath.Base(s.filePath(meta.ID, meta.Encrypted))
	meta.Tags = normalizeTags(meta.Tags)

	idx, err := s.loadIndex()
	if err != nil {
		return Meta{}, err
	}
	if prev, ok := findMeta(idx, meta.ID); ok {
		meta.CreatedAt = prev.CreatedAt
		if meta.Title == "" {
			meta.Title = prev.Title
		}
		if meta.Tags == nil {
			meta.Tags = prev.Tags
		}
	}

	if s.opts.Masker != nil {
		for i := range data.Messages {
			data.Messages[i].Content = s.opts.Masker.Mask(data.Messages[i].Content)
		}
		data.Summary = s.opts.Masker.Mask(data.Summary)
		meta.Title = s.opts.Masker.Mask(meta.Title)
	}
	meta.SummaryExcerpt = summaryExcerpt(data.Summary)
	data.Meta = meta

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return Meta{}, fmt.Errorf("serializing session %s: %w", meta.ID, err)
	}

	payload := raw
	if s.opts.Encrypt {
		enc, err := codec.Encrypt(string(raw), s.opts.EncryptionKey)
		if err != nil {
			return Meta{}, fmt.Errorf("encrypting session %s: %w", meta.ID, err)
		}
		payload = []byte(enc)
	}

	if err := os.WriteFile(s.filePath(meta.ID, s.opts.Encrypt), payload, 0o600); err != nil {
		return Meta{}, fmt.Errorf("writing session %s: %w", meta.ID, err)
	}
	// Drop a stale counterpart left over from toggling encryption.
	os.Remove(s.filePath(meta.ID, !s.opts.Encrypt))

	upsertMeta(&idx, meta)
	if err := s.saveIndex(idx); err != nil {
		return Meta{}, err
	}
	debug.Log("session: saved %s (%d messages, encrypted=%t)", meta.ID, meta.MessageCount, meta.Encrypted)
	return meta, nil
}

// Load reads a session back. ErrNotFound when the id is not indexed or its
// file is gone; a codec.SecurityError when the payload is encrypted and the
// store has no key.
func (s *Store) Load(id string) (*Data, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	meta, ok := findMeta(idx, id)
	if !ok {
		return nil, fmt.Errorf("loading session %s: %w", id, ErrNotFound)
	}

	path := s.filePath(id, meta.Encrypted)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Encryption flag in the index can lag reality.
		path = s.filePath(id, !meta.Encrypted)
		raw, err = os.ReadFile(path)
	}
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("loading session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	text := string(raw)
	if strings.HasSuffix(path, cryptSuffix) {
		text, err = codec.Decrypt(text, s.opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
	}

	var data Data
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", id, err)
	}
	data.Meta = meta
	return &data, nil
}

// Delete removes a session's payload file and index entry.
func (s *Store) Delete(id string) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := findMeta(idx, id); !ok {
		return fmt.Errorf("deleting session %s: %w", id, ErrNotFound)
	}

	os.Remove(s.filePath(id, false))
	os.Remove(s.filePath(id, true))

	kept := idx.Sessions[:0]
	for _, m := range idx.Sessions {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	idx.Sessions = kept
	if err := s.saveIndex(idx); err != nil {
		return err
	}
	debug.Log("session: deleted %s", id)
	return nil
}

// UpdateTitle renames a session in the index.
func (s *Store) UpdateTitle(id, title string) error {
	return s.updateMeta(id, func(m *Meta) { m.Title = title })
}

// UpdateTags replaces a session's tag set in the index, sorted and
// de-duplicated.
func (s *Store) UpdateTags(id string, tags []string) error {
	return s.updateMeta(id, func(m *Meta) { m.Tags = normalizeTags(tags) })
}

func (s *Store) updateMeta(id string, apply func(*Meta)) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == id {
			apply(&idx.Sessions[i])
			idx.Sessions[i].UpdatedAt = s.now().UTC()
			return s.saveIndex(idx)
		}
	}
	return fmt.Errorf("updating session %s: %w", id, ErrNotFound)
}

// List returns all indexed sessions, newest first. Malformed entries are
// logged and skipped rather than failing the listing.
func (s *Store) List() ([]Meta, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(idx.Sessions))
	for _, m := range idx.Sessions {
		if !m.Valid() {
			debug.Warn("session", "skipping malformed index entry %q", m.ID)
			continue
		}
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Prune enforces the retention policy: sessions older than RetentionDays go
// first, then the newest RetentionCount survive the count cap. Ids in keep
// are never pruned. Returns how many sessions were removed.
func (s *Store) Prune(keep ...string) (int, error) {
	if s.opts.RetentionCount <= 0 && s.opts.RetentionDays <= 0 {
		return 0, nil
	}

	immune := make(map[string]bool, len(keep))
	for _, id := range keep {
		immune[id] = true
	}

	metas, err := s.List()
	if err != nil {
		return 0, err
	}

	var doomed []string
	remaining := metas[:0]
	if s.opts.RetentionDays > 0 {
		cutoff := s.now().UTC().AddDate(0, 0, -s.opts.RetentionDays)
		for _, m := range metas {
			if !immune[m.ID] && m.UpdatedAt.Before(cutoff) {
				doomed = append(doomed, m.ID)
				continue
			}
			remaining = append(remaining, m)
		}
	} else {
		remaining = metas
	}

	if s.opts.RetentionCount > 0 && len(remaining) > s.opts.RetentionCount {
		// remaining is newest first; everything past the cap goes.
		for _, m := range remaining[s.opts.RetentionCount:] {
			if !immune[m.ID] {
				doomed = append(doomed, m.ID)
			}
		}
	}

	for _, id := range doomed {
		if err := s.Delete(id); err != nil {
			return 0, fmt.Errorf("pruning session %s: %w", id, err)
		}
	}
	if len(doomed) > 0 {
		debug.Log("session: pruned %d sessions", len(doomed))
	}
	return len(doomed), nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) filePath(id string, encrypted bool) string {
	suffix := plainSuffix
	if encrypted {
		suffix = cryptSuffix
	}
	return filepath.Join(s.dir, id+suffix)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *Store) loadIndex() (index, error) {
	raw, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return index{}, nil
	}
	if err != nil {
		return index{}, fmt.Errorf("reading session index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return index{}, fmt.Errorf("parsing session index: %w", err)
	}
	return idx, nil
}

func (s *Store) saveIndex(idx index) error {
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing session index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), raw, 0o600); err != nil {
		return fmt.Errorf("writing session index: %w", err)
	}
	return nil
}

func findMeta(idx index, id string) (Meta, bool) {
	for _, m := range idx.Sessions {
		if m.ID == id {
			return m, true
		}
	}
	return Meta{}, false
}

func upsertMeta(idx *index, meta Meta) {
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == meta.ID {
			idx.Sessions[i] = meta
			return
		}
	}
	idx.Sessions = append(idx.Sessions, meta)
}
