// Command whiteboard runs the collaborative whiteboard server: the
// WebSocket sync protocol, the static single-document asset handler, and
// an optional operator console, wired from environment configuration
// (spec section 6.5). Grounded on launix-de/memcp's main.go: minimal
// startup glue that hands everything off to the library packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dc0d/onexit"

	"github.com/kubux/whiteboard/audit"
	"github.com/kubux/whiteboard/auth"
	"github.com/kubux/whiteboard/boardregistry"
	"github.com/kubux/whiteboard/cache"
	"github.com/kubux/whiteboard/config"
	"github.com/kubux/whiteboard/console"
	"github.com/kubux/whiteboard/persistence"
	"github.com/kubux/whiteboard/protocol"
	"github.com/kubux/whiteboard/staticpage"
)

func main() {
	consolePtr := flag.Bool("console", false, "start the operator console after the server is up")
	flag.Parse()

	cfg := config.FromEnv()

	backend, err := newBackend(cfg)
	if err != nil {
		log.Fatalf("whiteboard: setting up persistence backend: %v", err)
	}

	creds := auth.NewCreateCredentials(cfg.RequireCreateCredential)
	if stop, err := auth.WatchPasswdFile(passwdPath(cfg), creds); err != nil {
		log.Printf("whiteboard: passwd.json watch disabled: %v", err)
	} else {
		defer stop()
	}

	registry, err := loadRegistry(backend)
	if err != nil {
		log.Fatalf("whiteboard: loading board registry: %v", err)
	}

	pages := cache.NewManager[*persistence.PageEntry](cfg.PageCacheSize, cfg.FlushInterval)
	boards := cache.NewManager[*persistence.BoardEntry](cfg.BoardCacheSize, cfg.FlushInterval)

	var auditSink *audit.Sink
	if cfg.AuditDSN != "" {
		auditSink, err = audit.NewSink(cfg.AuditDSN)
		if err != nil {
			log.Printf("whiteboard: audit mirror disabled: %v", err)
			auditSink = nil
		}
	}

	onexit.Register(func() {
		log.Println("whiteboard: flushing caches before exit")
		pages.Shutdown()
		boards.Shutdown()
		if auditSink != nil {
			auditSink.Close()
		}
	})

	srv := protocol.NewServer(cfg, registry, backend, pages, boards, creds, auditSink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.StartPingLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)
	mux.Handle("/", staticAssetHandler())

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
	}
	go func() {
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			log.Printf("whiteboard: listening on :%d (TLS)", cfg.Port)
			if err := httpSrv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("whiteboard: http server: %v", err)
			}
			return
		}
		log.Printf("whiteboard: listening on :%d", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("whiteboard: http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if *consolePtr {
		go func() {
			<-sig
			onexit.Exit(0)
		}()
		if err := console.Run(console.Deps{Boards: registry, Backend: backend, Pages: pages, BoardsFl: boards}); err != nil {
			log.Printf("whiteboard: console exited: %v", err)
		}
		onexit.Exit(0)
		return
	}

	<-sig
	log.Println("whiteboard: signal received, shutting down")
	onexit.Exit(0)
}

func newBackend(cfg config.Config) (persistence.Backend, error) {
	if cfg.S3Bucket != "" {
		return persistence.NewS3Backend(persistence.S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			Prefix:         cfg.S3Prefix,
			ForcePathStyle: cfg.S3ForcePathStyle,
		}), nil
	}
	files, err := persistence.NewFileBackend(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return persistence.NewCompressingBackend(files), nil
}

func passwdPath(cfg config.Config) string {
	return cfg.DataDir + string(os.PathSeparator) + persistence.PasswdKey
}

// loadRegistry populates a fresh Registry from every *.board file in the
// backend, restoring each board's slice of the site-wide deletion map
// (spec section 6.3).
func loadRegistry(backend persistence.Backend) (*boardregistry.Registry, error) {
	registry := boardregistry.New()
	deletionMap, err := persistence.LoadDeletionMap(backend)
	if err != nil {
		return nil, err
	}
	keys, err := backend.List("")
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if len(key) <= len(persistence.BoardExtension) || key[len(key)-len(persistence.BoardExtension):] != persistence.BoardExtension {
			continue
		}
		boardID := key[:len(key)-len(persistence.BoardExtension)]
		entry, err := persistence.NewBoardEntry(backend, boardID, deletionMap)
		if err != nil {
			log.Printf("whiteboard: skipping board %s: %v", boardID, err)
			continue
		}
		if err := registry.Register(entry.Board); err != nil {
			log.Printf("whiteboard: %v", err)
		}
	}
	return registry, nil
}

func staticAssetHandler() http.Handler {
	document := os.Getenv("WHITEBOARD_DOCUMENT")
	if document == "" {
		document = defaultDocument
	}
	sharedModule := os.Getenv("WHITEBOARD_SHARED_MODULE")
	return staticpage.NewHandler(document, sharedModule)
}

const defaultDocument = `<!DOCTYPE html>
<html>
<head><title>whiteboard</title></head>
<body>
<div id="app"></div>
<script src="shared.js"></script>
</body>
</html>
`
