package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/yeremiapane/mealplan-app/models"
)

// StorageKey is the fixed key the cart snapshot lives under.
const StorageKey = "mealplan:cart"

// Persistence stores the flat list of line snapshots so an unfinished cart
// survives a restart.
type Persistence interface {
	Load(ctx context.Context) ([]models.CartLine, error)
	Save(ctx context.Context, lines []models.CartLine) error
}

type nopPersistence struct{}

func (nopPersistence) Load(context.Context) ([]models.CartLine, error) { return nil, nil }
func (nopPersistence) Save(context.Context, []models.CartLine) error   { return nil }

// FilePersistence keeps the snapshot as a JSON file in a directory.
type FilePersistence struct {
	path string
}

func NewFilePersistence(dir string) *FilePersistence {
	return &FilePersistence{path: filepath.Join(dir, "mealplan_cart.json")}
}

func (f *FilePersistence) Path() string {
	return f.path
}

func (f *FilePersistence) Load(_ context.Context) ([]models.CartLine, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cart file: %w", err)
	}
	return decode(data)
}

// Save writes a temp file and renames it over the old snapshot.
func (f *FilePersistence) Save(_ context.Context, lines []models.CartLine) error {
	data, err := encode(lines)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create cart dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cart file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace cart file: %w", err)
	}
	return nil
}

// RedisPersistence keeps the snapshot under StorageKey in Redis.
type RedisPersistence struct {
	client *redis.Client
	key    string
}

func NewRedisPersistence(addr string) *RedisPersistence {
	return NewRedisPersistenceWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewRedisPersistenceWithClient(client *redis.Client) *RedisPersistence {
	return &RedisPersistence{client: client, key: StorageKey}
}

func (r *RedisPersistence) Load(ctx context.Context) ([]models.CartLine, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart from redis: %w", err)
	}
	return decode(raw)
}

func (r *RedisPersistence) Save(ctx context.Context, lines []models.CartLine) error {
	data, err := encode(lines)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save cart to redis: %w", err)
	}
	return nil
}

func encode(lines []models.CartLine) ([]byte, error) {
	if lines == nil {
		lines = []models.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]models.CartLine, error) {
	var lines []models.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return lines, nil
}
