package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsSdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/chrisdd2/federated-login/appconfig"
	"github.com/chrisdd2/federated-login/internal/services"
	"github.com/chrisdd2/federated-login/internal/services/cache"
	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/internal/services/storage/sqlstore"
)

func openStorage(ctx context.Context, appCfg *appconfig.AppConfig) (storage.Storage, error) {
	switch appCfg.Storage.Type {
	case appconfig.StorageTypeMemory:
		slog.Warn("storage", "type", "memory", "note", "profiles are lost on restart")
		return storage.NewInMemoryStore(), nil
	case appconfig.StorageTypeFile:
		dir := appCfg.Storage.Directory
		if !strings.HasPrefix(dir, "s3://") {
			slog.Info("storage", "type", "file", "dir", dir)
			return storage.NewFileStore(dir, nil)
		}
		s3Config, arn, err := awsContext(ctx, "S3_", appCfg)
		if err != nil {
			return nil, fmt.Errorf("awsContext: %w", err)
		}
		slog.Info("aws", "principal", arn, "user", "s3")
		return storage.NewFileStore(dir, s3.NewFromConfig(s3Config))
	case appconfig.StorageTypePostgres:
		slog.Info("storage", "type", "postgres", "host", appCfg.Storage.Postgres.Host, "database", appCfg.Storage.Postgres.Database)
		return sqlstore.NewPostgresStore(ctx, appCfg)
	case appconfig.StorageTypeSqlite:
		slog.Info("storage", "type", "sqlite", "path", appCfg.Storage.Sqlite.Path)
		return sqlstore.NewSqliteStore(ctx, appCfg)
	}
	return nil, fmt.Errorf("unknown storage type [%s]", appCfg.Storage.Type)
}

// withCache wraps st in a read-through cache and returns the session revocation
// list living next to it, shared through redis when that is the cache.
func withCache(ctx context.Context, appCfg *appconfig.AppConfig, st storage.Storage) (storage.Storage, cache.Revocations, error) {
	ttl := time.Duration(appCfg.Cache.TtlSeconds) * time.Second
	switch appCfg.Cache.Type {
	case appconfig.CacheTypeNone, "":
		return st, cache.NewMemoryRevocations(), nil
	case appconfig.CacheTypeMemory:
		if _, ok := st.(*storage.InMemoryStore); ok {
			return st, cache.NewMemoryRevocations(), nil
		}
		slog.Info("cache", "type", "memory", "ttl", ttl)
		return cache.NewCachedStorage(st, cache.NewMemory(ttl)), cache.NewMemoryRevocations(), nil
	case appconfig.CacheTypeRedis:
		rc := appCfg.Cache.Redis
		c, err := cache.NewRedis(ctx, rc.Addr, rc.Password, rc.Db, rc.Prefix, ttl)
		if err != nil {
			return nil, nil, fmt.Errorf("cache.NewRedis: %w", err)
		}
		slog.Info("cache", "type", "redis", "addr", rc.Addr, "ttl", ttl)
		return cache.NewCachedStorage(st, c), c.Revocations(), nil
	}
	return nil, nil, fmt.Errorf("unknown cache type [%s]", appCfg.Cache.Type)
}

func authServices(ctx context.Context, appCfg *appconfig.AppConfig) ([]services.AuthService, error) {
	idps := []services.AuthService{}
	auth := appCfg.Auth
	if auth.Google.Enabled() {
		redirect := auth.Google.CallbackUrl(appCfg.RootUrl, "/auth/google/return")
		google, err := services.NewGoogle(ctx, auth.Google.ClientId, auth.Google.ClientSecret, redirect)
		if err != nil {
			return nil, err
		}
		idps = append(idps, google)
		slog.Info("enabled", "auth", "google", "redirect", redirect)
	}
	if auth.Twitter.Enabled() {
		redirect := auth.Twitter.CallbackUrl(appCfg.RootUrl, "/auth/twitter/callback")
		idps = append(idps, services.NewTwitter(auth.Twitter.ClientId, auth.Twitter.ClientSecret, redirect))
		slog.Info("enabled", "auth", "twitter", "redirect", redirect)
	}
	if auth.Facebook.Enabled() {
		redirect := auth.Facebook.CallbackUrl(appCfg.RootUrl, "/auth/facebook/callback")
		idps = append(idps, services.NewFacebook(auth.Facebook.ClientId, auth.Facebook.ClientSecret, redirect))
		slog.Info("enabled", "auth", "facebook", "redirect", redirect)
	}
	return idps, nil
}

// awsContext loads the aws config with PREFIX* variables standing in for the plain AWS_* ones.
func awsContext(ctx context.Context, environmentPrefix string, appCfg *appconfig.AppConfig) (awsConfig awsSdk.Config, arn string, err error) {
	s3Cfg := appCfg.Storage.S3
	opts := []func(*config.LoadOptions) error{}
	if s3Cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3Cfg.Region))
	}
	if s3Cfg.AccessKeyId != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s3Cfg.AccessKeyId, s3Cfg.SecretAccessKey, "")))
	}
	cfg, err := appconfig.WithEnvContext(environmentPrefix, func() (awsSdk.Config, error) {
		return config.LoadDefaultConfig(ctx, opts...)
	})
	if err != nil {
		return awsConfig, "", err
	}
	stsCl := sts.NewFromConfig(cfg)
	resp, err := stsCl.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return awsConfig, "", err
	}
	return cfg, awsSdk.ToString(resp.Arn), nil
}

// loadSignKey returns the configured session key, or one generated once and kept in the file cache.
func loadSignKey(appCfg *appconfig.AppConfig, c *fileCache) ([]byte, error) {
	if appCfg.Session.SignKey != "" {
		return []byte(appCfg.Session.SignKey), nil
	}
	buf, _ := c.Read("signkey") // missing or unreadable, generate a new one
	if len(buf) == 0 {
		buf = make([]byte, 120)
		rand.Read(buf)
		buf = base64.StdEncoding.AppendEncode(nil, buf)
		if err := c.Write("signkey", buf); err != nil {
			slog.Warn("signkey", "cache_write_error", err.Error())
		}
	}
	key, err := base64.StdEncoding.AppendDecode(nil, buf)
	if err != nil {
		return nil, fmt.Errorf("signkey decode: %w", err)
	}
	slog.Info("signkey", "size", len(key))
	return key, nil
}

type fileCache struct {
	cacheDir string
}

func NewFileCache(subDir string) (*fileCache, error) {
	c := &fileCache{}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return c, err
	}
	cacheDir := filepath.Join(homeDir, ".cache", subDir)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return c, err
	}
	c.cacheDir = cacheDir
	return c, nil
}

func (c *fileCache) Write(filename string, buf []byte) error {
	if c == nil || c.cacheDir == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(c.cacheDir, filename), buf, 0600)
}

func (c *fileCache) Read(filename string) ([]byte, error) {
	if c == nil || c.cacheDir == "" {
		return []byte{}, nil
	}
	f, err := os.Open(filepath.Join(c.cacheDir, filename))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
