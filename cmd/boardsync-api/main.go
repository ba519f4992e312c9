package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/api"
	"boardsync/docstore"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	var rc *redis.Client
	if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
		rc = redis.NewClient(redisOptions(conn))
	}

	store := buildStore(rc)

	retries := 3
	if v := os.Getenv("CONFLICT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Fatalf("invalid CONFLICT_RETRIES: %v", v)
		}
		retries = n
	}
	m := api.NewMutator(store, retries)

	if rc != nil {
		channel := os.Getenv("INVALIDATION_CHANNEL")
		if channel == "" {
			channel = "board-updates"
		}
		m.SetBroadcaster(api.NewRedisBroadcaster(rc, channel, logger))
	}

	auth := buildAuth()
	var notifier api.Notifier
	if wn := api.NewWebhookNotifier(os.Getenv("HOOK_URL"), os.Getenv("HOOK_TOKEN"), logger); wn != nil {
		notifier = wn
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	api.Register(e, m, store, auth, notifier, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}

func buildStore(rc *redis.Client) docstore.Store {
	backend := os.Getenv("DOC_STORE")
	if backend == "" {
		backend = "github"
	}
	switch backend {
	case "github":
		store, err := docstore.NewGitHub(os.Getenv("GITHUB_TOKEN"), os.Getenv("GITHUB_REPO"), os.Getenv("STATUS_PATH"), nil)
		if err != nil {
			log.Fatalf("github store: %v", err)
		}
		return store
	case "redis":
		if rc == nil {
			log.Fatal("DOC_STORE=redis requires REDIS_CONNECTION_STRING")
		}
		prefix := os.Getenv("REDIS_KEY_PREFIX")
		if prefix == "" {
			prefix = "boardsync"
		}
		return docstore.NewRedis(rc, prefix)
	case "aztables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		table := os.Getenv("DOCUMENT_TABLE")
		if connStr == "" || table == "" {
			log.Fatal("missing aztables config")
		}
		store, err := docstore.NewAzureTables(connStr, table)
		if err != nil {
			log.Fatalf("aztables store: %v", err)
		}
		if err := store.Init(context.Background()); err != nil {
			log.Fatalf("aztables init: %v", err)
		}
		return store
	case "memory":
		return docstore.NewMemory([]byte("{}"))
	default:
		log.Fatalf("unknown DOC_STORE: %s", backend)
		return nil
	}
}

func buildAuth() api.Authenticator {
	if os.Getenv("AUTH_DISABLED") == "1" {
		return api.NoAuth{}
	}
	if secret := os.Getenv("AUTH_TEST_SECRET"); secret != "" {
		return api.NewTestAuth([]byte(secret))
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/")
}

// redisOptions accepts either a redis URL or the Azure-style comma separated
// "host:port,password=...,ssl=true" form.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
