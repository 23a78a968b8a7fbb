package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/saiset-co/sai-trade-client/cache"
	"github.com/saiset-co/sai-trade-client/types"
)

// credentialTTL keeps the persisted credential until it is explicitly erased.
const credentialTTL = 10 * 365 * 24 * time.Hour

const sealedPrefix = "sealed:"

// Manager owns the credential lifecycle: it persists the credential on login,
// erases it on logout or any 401, and serves the access token to the
// dispatcher.
type Manager struct {
	logger     types.Logger
	cache      *cache.Manager
	store      *cache.Store
	key        *[32]byte
	clearCache bool
	credential *types.Credential
	mu         sync.RWMutex
}

func NewManager(config types.ConfigManager, logger types.Logger, cacheManager *cache.Manager) (*Manager, error) {
	sessionConfig := config.GetConfig().Session
	if sessionConfig == nil {
		sessionConfig = &types.SessionConfig{}
	}

	m := &Manager{
		logger:     logger,
		cache:      cacheManager,
		clearCache: sessionConfig.ClearCacheOnLogout,
	}

	if sessionConfig.EncryptionKey != "" {
		key, err := parseKey(sessionConfig.EncryptionKey)
		if err != nil {
			return nil, err
		}
		m.key = key
	}

	store, err := cacheManager.Store(types.BackendPersistent)
	if err != nil {
		logger.Warn("Persistent cache unavailable, credential will not survive restarts", zap.Error(err))
		store, err = cacheManager.Store(types.BackendMemory)
		if err != nil {
			return nil, types.WrapError(err, "no cache backend for session")
		}
	}
	m.store = store

	m.load()

	return m, nil
}

func parseKey(encoded string) (*[32]byte, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != 32 {
		return nil, types.Errorf(types.ErrSessionKeyInvalid, "expected 64 hex characters")
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// HandleAuthEvent is registered with the dispatcher through OnAuth.
func (m *Manager) HandleAuthEvent(event types.AuthEvent) {
	switch event.Type {
	case types.AuthLogin:
		if event.Credential == nil {
			return
		}
		m.persist(event.Credential)
	case types.AuthLogout, types.AuthUnauthorized:
		m.erase(event)
	}
}

func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.credential == nil {
		return ""
	}
	return m.credential.AccessToken
}

// User returns the stored user record, if any.
func (m *Manager) User() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.credential == nil {
		return nil
	}
	return m.credential.User
}

func (m *Manager) IsAuthenticated() bool {
	return m.AccessToken() != ""
}

func (m *Manager) persist(credential *types.Credential) {
	token, err := m.seal(credential.AccessToken)
	if err != nil {
		m.logger.Error("Failed to seal access token", zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.credential = &types.Credential{AccessToken: credential.AccessToken, User: credential.User}

	m.store.Write(types.AccessTokenKey, token, credentialTTL)
	if len(credential.User) > 0 {
		m.store.Write(types.UserInfoKey, credential.User, credentialTTL)
	} else {
		m.store.Invalidate(types.UserInfoKey)
	}

	m.logger.Info("Session started")
}

func (m *Manager) erase(event types.AuthEvent) {
	m.mu.Lock()
	m.credential = nil
	m.store.Invalidate(types.AccessTokenKey)
	m.store.Invalidate(types.UserInfoKey)
	m.mu.Unlock()

	if m.clearCache && m.cache != nil {
		m.cache.ClearAll()
	}

	m.logger.Info("Session ended",
		zap.String("reason", event.Type.String()),
		zap.String("operation", event.Operation))
}

func (m *Manager) load() {
	stored, ok := cache.Get[string](m.store, types.AccessTokenKey)
	if !ok || stored == "" {
		return
	}

	token, err := m.open(stored)
	if err != nil {
		m.logger.Warn("Discarding unreadable stored credential", zap.Error(err))
		m.store.Invalidate(types.AccessTokenKey)
		m.store.Invalidate(types.UserInfoKey)
		return
	}

	credential := &types.Credential{AccessToken: token}
	if user, ok := cache.Get[json.RawMessage](m.store, types.UserInfoKey); ok {
		credential.User = user
	}

	m.mu.Lock()
	m.credential = credential
	m.mu.Unlock()

	m.logger.Debug("Session restored")
}

func (m *Manager) seal(token string) (string, error) {
	if m.key == nil {
		return token, nil
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", types.WrapError(types.ErrSessionSealFailed, err.Error())
	}

	sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, m.key)
	return sealedPrefix + hex.EncodeToString(sealed), nil
}

func (m *Manager) open(stored string) (string, error) {
	if m.key == nil {
		if strings.HasPrefix(stored, sealedPrefix) {
			return "", types.Errorf(types.ErrSessionOpenFailed, "stored token is sealed but no key is configured")
		}
		return stored, nil
	}

	if !strings.HasPrefix(stored, sealedPrefix) {
		return "", types.Errorf(types.ErrSessionOpenFailed, "stored token is not sealed")
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", types.Errorf(types.ErrSessionOpenFailed, "malformed sealed token")
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plain, ok := secretbox.Open(nil, raw[24:], &nonce, m.key)
	if !ok {
		return "", types.Errorf(types.ErrSessionOpenFailed, "authentication failed")
	}

	return string(plain), nil
}
