package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"escalafin-messaging/internal/models"

	"gorm.io/gorm"
)

// ConfigLoader returns the provider configuration for a send.
type ConfigLoader interface {
	Load(ctx context.Context) (ProviderConfig, error)
}

// DBLoader reads the active waha_configs row.
type DBLoader struct {
	db *gorm.DB
}

func NewDBLoader(db *gorm.DB) *DBLoader {
	return &DBLoader{db: db}
}

func (l *DBLoader) Load(ctx context.Context) (ProviderConfig, error) {
	var row models.WahaConfig
	err := l.db.WithContext(ctx).Where("is_active = ?", true).Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ProviderConfig{}, ErrNotConfigured
	}
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("load provider config: %w", err)
	}
	if strings.TrimSpace(row.BaseURL) == "" || strings.TrimSpace(row.SessionID) == "" {
		return ProviderConfig{}, ErrNotConfigured
	}
	return ProviderConfig{BaseURL: row.BaseURL, SessionID: row.SessionID, APIKey: row.APIKey}, nil
}

// CachedLoader memoizes the first successful load until Invalidate is called.
// Failures are never cached.
type CachedLoader struct {
	next ConfigLoader

	mu     sync.Mutex
	cached *ProviderConfig
}

func NewCachedLoader(next ConfigLoader) *CachedLoader {
	return &CachedLoader{next: next}
}

func (l *CachedLoader) Load(ctx context.Context) (ProviderConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		return *l.cached, nil
	}
	cfg, err := l.next.Load(ctx)
	if err != nil {
		return ProviderConfig{}, err
	}
	l.cached = &cfg
	return cfg, nil
}

// Invalidate drops the memoized configuration.
func (l *CachedLoader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}
