package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"example.com/gflink/internal/archive"
	"example.com/gflink/internal/common"
	"example.com/gflink/internal/link"
	"example.com/gflink/internal/manifest"
	"example.com/gflink/internal/protocol"
	"example.com/gflink/internal/server"
)

// networkHandler applies NetworkParams commands to the link.
func networkHandler(tx *link.Transmitter) link.Handler {
	return link.HandlerFunc(func(pkg protocol.Package) {
		if pkg.Header.Type != protocol.TypeNetworkParams || pkg.Header.Source == protocol.SourceMGP {
			return
		}
		np := protocol.DecodeNetworkParams(pkg.Pairs)
		if err := tx.Reconfigure(np); err != nil {
			log.Printf("link reconfigure: %v", err)
			return
		}
		cfg := tx.Config()
		log.Printf("link reconfigured: host %s in %d out %d", cfg.Host, cfg.PortIn, cfg.PortOut)
	})
}

// writeCaptureManifest stores the digest of a closed capture next to it.
// The item path is the capture's base name so the pair can be moved together.
func writeCaptureManifest(path string) (string, error) {
	m, err := manifest.Build([]string{path})
	if err != nil {
		return "", err
	}
	m.Items[0].Path = filepath.Base(path)
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".manifest.json"
	if err := manifest.Save(m, out); err != nil {
		return "", err
	}
	return out, nil
}

// archiveCapture uploads a closed capture and its manifest when an archive
// bucket is set.
func archiveCapture(ctx context.Context, cfg archive.S3Config, files ...string) {
	if !cfg.Enabled() {
		return
	}
	client, err := archive.NewS3Client(cfg)
	if err != nil {
		log.Printf("archive: %v", err)
		return
	}
	up := archive.NewS3Uploader(client, cfg)
	for _, file := range files {
		if _, err := up.Upload(ctx, file); err != nil {
			log.Printf("archive: %v", err)
			return
		}
	}
}

func main() {
	configPath := flag.String("config", "config/gfd.yaml", "path to configuration file (.yaml or .toml)")
	addr := flag.String("addr", "", "listen address (overrides config addr)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	listenAddr := cfg.Addr
	if *addr != "" {
		listenAddr = *addr
	}

	tr, err := newTracing(cfg)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	metrics := common.NewMetrics()
	metrics.Start()
	disp := link.NewDispatcher()
	disp.SetMetrics(metrics)
	disp.SetTracerProvider(tr.provider)

	srv := server.NewServer(server.Options{TracerProvider: tr.provider})
	defer srv.Close()
	disp.Add(srv)

	var recorder *archive.Recorder
	if cfg.Capture.Directory != "" {
		recorder, err = archive.NewRecorder(cfg.Capture.Directory, time.Now())
		if err != nil {
			log.Fatalf("capture: %v", err)
		}
		disp.Add(recorder)
		log.Printf("recording frames to %s", recorder.Path())
	}

	tx := link.NewTransmitter(cfg.Link, disp)
	disp.Add(networkHandler(tx))
	if err := tx.Start(); err != nil {
		log.Fatalf("link: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	linkDone := make(chan error, 1)
	go func() { linkDone <- tx.Run(ctx) }()

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	log.Printf("gfd listening on %s", listenAddr)

	select {
	case <-ctx.Done():
	case err := <-linkDone:
		if err != nil {
			log.Printf("link: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := tx.Stop(); err != nil {
		log.Printf("link stop: %v", err)
	}
	if err := tr.shutdown(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
	metrics.Stop()
	snap := metrics.Snapshot()
	log.Printf("link totals: frames=%d rejected=%d processed=%s",
		snap.Frames, snap.RejectTotal(), common.FormatBytes(snap.Bytes))

	if recorder != nil {
		disp.Remove(recorder)
		if err := recorder.Close(); err != nil {
			log.Printf("capture close: %v", err)
		} else {
			files := []string{recorder.Path()}
			if mf, err := writeCaptureManifest(recorder.Path()); err != nil {
				log.Printf("capture manifest: %v", err)
			} else {
				files = append(files, mf)
			}
			archiveCtx, cancelArchive := context.WithTimeout(context.Background(), 2*time.Minute)
			archiveCapture(archiveCtx, cfg.Capture.Archive, files...)
			cancelArchive()
		}
	}
	log.Println("gfd stopped")
}
