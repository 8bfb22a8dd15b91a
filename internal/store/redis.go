package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/closetiq/closetiq/internal/config"
	"github.com/closetiq/closetiq/internal/governor"
)

const defaultRedisKeyPrefix = "closetiq:credential:"

// RedisTokenStore keeps the cached credential in redis, sealed with
// AES-GCM. Entries expire together with the credential.
type RedisTokenStore struct {
	client *redis.Client
	key    string
	aead   cipher.AEAD
	clock  func() time.Time
}

type sealedCredential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenRedisTokenStore connects to redis and returns a token store for scope.
func OpenRedisTokenStore(ctx context.Context, cfg config.RedisConfig, scope string) (*RedisTokenStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	tokens, err := NewRedisTokenStore(client, cfg.EncryptionKey, cfg.KeyPrefix, scope)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return tokens, nil
}

// NewRedisTokenStore wraps an existing client.
func NewRedisTokenStore(client *redis.Client, encryptionKey, prefix, scope string) (*RedisTokenStore, error) {
	key, err := parseEncryptionKey(encryptionKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}

	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisKeyPrefix
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}

	return &RedisTokenStore{client: client, key: prefix + scope, aead: aead}, nil
}

// Key returns the redis key holding the credential.
func (r *RedisTokenStore) Key() string {
	if r == nil {
		return ""
	}
	return r.key
}

// LoadCredential implements governor.TokenStore.
func (r *RedisTokenStore) LoadCredential(ctx context.Context) (*governor.Credential, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis token store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch credential: %w", err)
	}

	return r.open(value)
}

// SaveCredential implements governor.TokenStore.
func (r *RedisTokenStore) SaveCredential(ctx context.Context, cred *governor.Credential) error {
	if r == nil || r.client == nil {
		return errors.New("redis token store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cred == nil || strings.TrimSpace(cred.Token) == "" {
		return errors.New("credential token is required")
	}

	ttl := cred.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.ClearCredential(ctx)
	}

	value, err := r.seal(cred)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// ClearCredential implements governor.TokenStore.
func (r *RedisTokenStore) ClearCredential(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis token store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Close releases the redis connection pool.
func (r *RedisTokenStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisTokenStore) seal(cred *governor.Credential) (string, error) {
	plaintext, err := json.Marshal(sealedCredential{Token: cred.Token, ExpiresAt: cred.ExpiresAt.UTC()})
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}

	nonce := make([]byte, r.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("seal credential: %w", err)
	}
	sealed := r.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *RedisTokenStore) open(value string) (*governor.Credential, error) {
	sealed, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}

	nonceSize := r.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("sealed credential too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := r.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open credential: %w", err)
	}

	var decoded sealedCredential
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &governor.Credential{Token: decoded.Token, ExpiresAt: decoded.ExpiresAt.UTC()}, nil
}

func (r *RedisTokenStore) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now().UTC()
}

// parseEncryptionKey accepts a raw 32-byte key or its base64 encoding.
func parseEncryptionKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if len(value) == 32 {
		return []byte(value), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	return nil, errors.New("invalid encryption key length: must be 32 bytes")
}
