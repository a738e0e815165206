package cookies

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/williampepple1/scrapebot/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Jar is the part of a browser session that holds cookies
type Jar interface {
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error
}

// Store keeps one cookie file per job identifier
type Store struct {
	Dir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the cookie file of uid
func (s *Store) Path(uid string) string {
	return filepath.Join(s.Dir, uid+".json")
}

// Load reads the jar of uid. A missing file is an empty jar and ok is false.
func (s *Store) Load(uid string) (jar []models.Cookie, ok bool, err error) {
	data, err := os.ReadFile(s.Path(uid))
	if errors.Is(err, os.ErrNotExist) {
		return []models.Cookie{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cookies: %w", err)
	}

	if err := json.Unmarshal(data, &jar); err != nil {
		return nil, false, fmt.Errorf("parsing cookies %s: %w", s.Path(uid), err)
	}
	if jar == nil {
		jar = []models.Cookie{}
	}
	return jar, true, nil
}

// Save overwrites the jar of uid
func (s *Store) Save(uid string, jar []models.Cookie) error {
	if jar == nil {
		jar = []models.Cookie{}
	}
	data, err := json.Marshal(jar)
	if err != nil {
		return fmt.Errorf("encoding cookies: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("creating cookie directory: %w", err)
	}
	if err := os.WriteFile(s.Path(uid), data, 0664); err != nil {
		return fmt.Errorf("writing cookies: %w", err)
	}
	return nil
}

// Bridge moves cookies between a Store and a live browser session
type Bridge struct {
	Store *Store
}

// NewBridge creates a bridge over store
func NewBridge(store *Store) *Bridge {
	return &Bridge{Store: store}
}

// Restore loads the persisted jar of uid into the session. It reports
// whether a jar file existed.
func (b *Bridge) Restore(ctx context.Context, session Jar, uid string) (bool, error) {
	jar, ok, err := b.Store.Load(uid)
	if err != nil || !ok {
		return false, err
	}
	if len(jar) == 0 {
		return true, nil
	}
	if err := session.SetCookies(ctx, jar); err != nil {
		return true, fmt.Errorf("restoring cookies: %w", err)
	}
	return true, nil
}

// Persist reads the session jar and saves it for uid.
func (b *Bridge) Persist(ctx context.Context, session Jar, uid string) error {
	jar, err := session.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("reading session cookies: %w", err)
	}
	return b.Store.Save(uid, jar)
}
