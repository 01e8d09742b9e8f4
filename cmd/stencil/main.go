package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"stencil/internal/download"
	"stencil/internal/infra"
	"stencil/internal/pipeline"
	"stencil/internal/render"
	"stencil/internal/storage"
	"stencil/internal/studio"
	"stencil/internal/upload"
)

func main() {
	var (
		fileFlag   string
		outFlag    string
		modeFlag   string
		effectFlag string
		userFlag   string
	)

	flag.StringVar(&fileFlag, "file", "", "image file to upload and process")
	flag.StringVar(&outFlag, "out", "", "directory for downloaded results (overrides DOWNLOAD_DIR)")
	flag.StringVar(&modeFlag, "mode", "", "generation mode: image-effects or video-effects (overrides STUDIO_MODE)")
	flag.StringVar(&effectFlag, "effect", "", "effect ID to apply (overrides STUDIO_EFFECT_ID)")
	flag.StringVar(&userFlag, "user", "", "studio user ID (overrides STUDIO_USER_ID)")
	flag.Parse()

	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	if outFlag != "" {
		cfg.DownloadDir = outFlag
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	if effectFlag != "" {
		cfg.EffectID = effectFlag
	}
	if userFlag != "" {
		cfg.UserID = userFlag
	}

	filePath := strings.TrimSpace(fileFlag)
	if filePath == "" {
		exitWithError(errors.New("-file is required"))
	}

	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "stencil").Logger()

	data, err := os.ReadFile(filePath)
	if err != nil {
		exitWithError(fmt.Errorf("failed to read input file: %w", err))
	}
	mimeType := mime.TypeByExtension(filepath.Ext(filePath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	uploader := upload.NewClient(upload.Options{
		APIBaseURL: cfg.APIBaseURL,
		CDNBaseURL: cfg.CDNBaseURL,
		Logger:     &logger,
		Timeout:    cfg.HTTPTimeout,
	})

	jobs, err := studio.NewClient(studio.Options{
		BaseURL:      cfg.APIBaseURL,
		UserID:       cfg.UserID,
		EffectID:     cfg.EffectID,
		Mode:         studio.Mode(cfg.Mode),
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		Logger:       &logger,
		OnProgress: func(polls int) {
			fmt.Println(pipeline.StatusProcessing(polls))
		},
	})
	if err != nil {
		exitWithError(err)
	}

	renderer := render.New(render.Options{})

	store, err := storage.NewFileStore(cfg.DownloadDir)
	if err != nil {
		exitWithError(fmt.Errorf("failed to prepare download directory: %w", err))
	}
	dl, err := download.New(download.Options{
		APIBaseURL: cfg.APIBaseURL,
		Store:      store,
		Renderer:   renderer,
		Logger:     &logger,
	})
	if err != nil {
		exitWithError(err)
	}

	ctrl := pipeline.New(pipeline.Options{
		Uploader:   uploader,
		Jobs:       jobs,
		Renderer:   renderer,
		Downloader: dl,
		OnStatus: func(status string) {
			fmt.Println(status)
		},
		OnAlert: func(message string) {
			fmt.Fprintln(os.Stderr, message)
		},
	})

	ctx := context.Background()

	readURL, err := ctrl.SelectFile(ctx, filepath.Base(filePath), mimeType, data)
	if err != nil {
		exitWithError(fmt.Errorf("upload failed: %w", err))
	}
	logger.Info().Str("url", readURL).Msg("source uploaded")

	artifact, err := ctrl.Generate(ctx)
	if err != nil {
		exitWithError(fmt.Errorf("generation failed: %w", err))
	}
	logger.Info().
		Str("url", artifact.URL).
		Str("kind", string(artifact.Kind)).
		Msg("generation complete")

	saved, err := ctrl.Download(ctx)
	if err != nil {
		exitWithError(fmt.Errorf("download failed: %w", err))
	}

	fmt.Printf("Saved %s via %s (%d bytes)\n", saved.Path, saved.Strategy, saved.Size)
	if saved.Note != "" {
		fmt.Println(saved.Note)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
