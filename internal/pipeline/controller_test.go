package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"stencil/internal/domain"
	"stencil/internal/download"
	"stencil/internal/render"
)

type fakeUploader struct {
	fn func(ctx context.Context, data []byte, mimeType, name string) (string, error)
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, mimeType, name string) (string, error) {
	return f.fn(ctx, data, mimeType, name)
}

type fakeJobs struct {
	submit func(ctx context.Context, sourceURL string) (string, error)
	poll   func(ctx context.Context, jobID string) (*domain.Artifact, error)
}

func (f *fakeJobs) Submit(ctx context.Context, sourceURL string) (string, error) {
	return f.submit(ctx, sourceURL)
}

func (f *fakeJobs) Poll(ctx context.Context, jobID string) (*domain.Artifact, error) {
	return f.poll(ctx, jobID)
}

type fakeDownloader struct {
	gotURL string
	saved  *download.SavedFile
	err    error
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL string) (*download.SavedFile, error) {
	f.gotURL = rawURL
	return f.saved, f.err
}

type observer struct {
	statuses []string
	alerts   []string
}

func (o *observer) options() (func(string), func(string)) {
	return func(s string) { o.statuses = append(o.statuses, s) },
		func(a string) { o.alerts = append(o.alerts, a) }
}

func TestHappyPathScenario(t *testing.T) {
	var submittedURL, polledJob string
	obs := &observer{}
	onStatus, onAlert := obs.options()
	renderer := render.New(render.Options{Now: func() time.Time { return time.UnixMilli(7) }})
	dl := &fakeDownloader{saved: &download.SavedFile{Name: "stencil_ab12cd34.png", Path: "/tmp/x"}}

	c := New(Options{
		Uploader: &fakeUploader{fn: func(ctx context.Context, data []byte, mimeType, name string) (string, error) {
			if name != "photo.png" || mimeType != "image/png" {
				t.Errorf("upload got %q %q", name, mimeType)
			}
			return "https://contents.maxstudio.ai/ab12xy.png", nil
		}},
		Jobs: &fakeJobs{
			submit: func(ctx context.Context, sourceURL string) (string, error) {
				submittedURL = sourceURL
				return "J1", nil
			},
			poll: func(ctx context.Context, jobID string) (*domain.Artifact, error) {
				polledJob = jobID
				return &domain.Artifact{URL: "https://cdn/out/J1.png", Kind: domain.KindImage}, nil
			},
		},
		Renderer:   renderer,
		Downloader: dl,
		OnStatus:   onStatus,
		OnAlert:    onAlert,
	})

	readURL, err := c.SelectFile(context.Background(), "photo.png", "image/png", []byte("bytes"))
	if err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if readURL != "https://contents.maxstudio.ai/ab12xy.png" {
		t.Fatalf("readURL = %q", readURL)
	}
	if c.Phase() != domain.PhaseReady {
		t.Fatalf("phase = %q after upload", c.Phase())
	}

	artifact, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if submittedURL != readURL {
		t.Fatalf("submitted %q, want uploaded url", submittedURL)
	}
	if polledJob != "J1" {
		t.Fatalf("polled job %q", polledJob)
	}
	if c.Phase() != domain.PhaseComplete {
		t.Fatalf("phase = %q after generate", c.Phase())
	}
	if !renderer.ShowingImage() {
		t.Fatal("renderer should show an image")
	}
	if c.ResultURL() != artifact.URL {
		t.Fatalf("result url = %q", c.ResultURL())
	}

	if _, err := c.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if dl.gotURL != "https://cdn/out/J1.png" {
		t.Fatalf("downloader got %q", dl.gotURL)
	}

	want := []string{StatusUploading, StatusReady, StatusSubmitting, StatusQueued, StatusComplete}
	if len(obs.statuses) != len(want) {
		t.Fatalf("statuses = %v", obs.statuses)
	}
	for i, s := range want {
		if obs.statuses[i] != s {
			t.Fatalf("statuses[%d] = %q, want %q", i, obs.statuses[i], s)
		}
	}
	if len(obs.alerts) != 0 {
		t.Fatalf("alerts = %v", obs.alerts)
	}
}

func TestJobFailureReturnsToReadyWithUploadIntact(t *testing.T) {
	obs := &observer{}
	onStatus, onAlert := obs.options()
	c := New(Options{
		Uploader: &fakeUploader{fn: func(context.Context, []byte, string, string) (string, error) {
			return "https://contents.maxstudio.ai/keep.png", nil
		}},
		Jobs: &fakeJobs{
			submit: func(context.Context, string) (string, error) { return "J1", nil },
			poll: func(context.Context, string) (*domain.Artifact, error) {
				return nil, &domain.JobFailedError{Message: "unsupported image"}
			},
		},
		OnStatus: onStatus,
		OnAlert:  onAlert,
	})

	if _, err := c.SelectFile(context.Background(), "photo.png", "image/png", nil); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	_, err := c.Generate(context.Background())
	var failed *domain.JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v", err)
	}
	if len(obs.alerts) != 1 || obs.alerts[0] != "unsupported image" {
		t.Fatalf("alerts = %v, want exactly the service message", obs.alerts)
	}
	if c.Phase() != domain.PhaseReady {
		t.Fatalf("phase = %q, want ready", c.Phase())
	}
	if c.UploadedURL() != "https://contents.maxstudio.ai/keep.png" {
		t.Fatalf("uploaded url = %q, want intact", c.UploadedURL())
	}
	last := obs.statuses[len(obs.statuses)-1]
	if last != StatusReady {
		t.Fatalf("final status = %q", last)
	}
}

func TestGenerateWithoutUploadIsGuarded(t *testing.T) {
	obs := &observer{}
	onStatus, onAlert := obs.options()
	c := New(Options{
		Jobs: &fakeJobs{
			submit: func(context.Context, string) (string, error) {
				t.Fatal("submit must not run without an upload")
				return "", nil
			},
		},
		OnStatus: onStatus,
		OnAlert:  onAlert,
	})
	_, err := c.Generate(context.Background())
	if !errors.Is(err, domain.ErrNoUpload) {
		t.Fatalf("err = %v", err)
	}
	if len(obs.alerts) != 1 {
		t.Fatalf("alerts = %v", obs.alerts)
	}
	if c.Phase() != domain.PhaseIdle {
		t.Fatalf("phase = %q", c.Phase())
	}
}

func TestConcurrentGenerateRejected(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	c := New(Options{
		Uploader: &fakeUploader{fn: func(context.Context, []byte, string, string) (string, error) {
			return "https://cdn/src.png", nil
		}},
		Jobs: &fakeJobs{
			submit: func(context.Context, string) (string, error) {
				close(started)
				<-block
				return "J1", nil
			},
			poll: func(context.Context, string) (*domain.Artifact, error) {
				return &domain.Artifact{URL: "https://cdn/out.png", Kind: domain.KindImage}, nil
			},
		},
	})
	if _, err := c.SelectFile(context.Background(), "a.png", "image/png", nil); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background())
		done <- err
	}()
	<-started

	if _, err := c.Generate(context.Background()); !errors.Is(err, domain.ErrGenerateInFlight) {
		t.Fatalf("second generate err = %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first generate err = %v", err)
	}
}

func TestStaleUploadDoesNotOverwriteNewerSelection(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	c := New(Options{
		Uploader: &fakeUploader{fn: func(ctx context.Context, data []byte, mimeType, name string) (string, error) {
			if name == "slow.png" {
				close(started)
				<-block
				return "https://cdn/slow.png", nil
			}
			return "https://cdn/fast.png", nil
		}},
	})

	slowDone := make(chan error, 1)
	go func() {
		_, err := c.SelectFile(context.Background(), "slow.png", "image/png", nil)
		slowDone <- err
	}()
	<-started

	if _, err := c.SelectFile(context.Background(), "fast.png", "image/png", nil); err != nil {
		t.Fatalf("fast SelectFile: %v", err)
	}
	close(block)
	if err := <-slowDone; !errors.Is(err, domain.ErrSelectionSuperseded) {
		t.Fatalf("slow SelectFile err = %v, want ErrSelectionSuperseded", err)
	}
	if c.UploadedURL() != "https://cdn/fast.png" {
		t.Fatalf("uploaded url = %q, stale upload overwrote newer one", c.UploadedURL())
	}
}

func TestUploadFailureRecoversToIdle(t *testing.T) {
	obs := &observer{}
	onStatus, onAlert := obs.options()
	c := New(Options{
		Uploader: &fakeUploader{fn: func(context.Context, []byte, string, string) (string, error) {
			return "", &domain.UploadError{Stage: domain.UploadStageSign, Err: errors.New("boom")}
		}},
		OnStatus: onStatus,
		OnAlert:  onAlert,
	})
	_, err := c.SelectFile(context.Background(), "a.png", "image/png", nil)
	var uploadErr *domain.UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("err = %v", err)
	}
	if c.Phase() != domain.PhaseIdle {
		t.Fatalf("phase = %q, want idle without a prior upload", c.Phase())
	}
	if len(obs.alerts) != 1 {
		t.Fatalf("alerts = %v", obs.alerts)
	}
}

func TestDownloadWithoutResult(t *testing.T) {
	c := New(Options{Downloader: &fakeDownloader{}})
	if _, err := c.Download(context.Background()); !errors.Is(err, domain.ErrNoResult) {
		t.Fatalf("err = %v", err)
	}
}

func TestDownloadLinkNoteIsSurfaced(t *testing.T) {
	obs := &observer{}
	onStatus, onAlert := obs.options()
	dl := &fakeDownloader{saved: &download.SavedFile{Name: "stencil_x.url", Note: "open the saved link"}}
	c := New(Options{
		Uploader: &fakeUploader{fn: func(context.Context, []byte, string, string) (string, error) {
			return "https://cdn/src.png", nil
		}},
		Jobs: &fakeJobs{
			submit: func(context.Context, string) (string, error) { return "J1", nil },
			poll: func(context.Context, string) (*domain.Artifact, error) {
				return &domain.Artifact{URL: "https://cdn/out.png", Kind: domain.KindImage}, nil
			},
		},
		Downloader: dl,
		OnStatus:   onStatus,
		OnAlert:    onAlert,
	})
	c.SelectFile(context.Background(), "a.png", "image/png", nil)
	c.Generate(context.Background())
	if _, err := c.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(obs.alerts) != 1 || obs.alerts[0] != "open the saved link" {
		t.Fatalf("alerts = %v", obs.alerts)
	}
}

func TestResetClearsEverything(t *testing.T) {
	renderer := render.New(render.Options{})
	c := New(Options{
		Uploader: &fakeUploader{fn: func(context.Context, []byte, string, string) (string, error) {
			return "https://cdn/src.png", nil
		}},
		Jobs: &fakeJobs{
			submit: func(context.Context, string) (string, error) { return "J1", nil },
			poll: func(context.Context, string) (*domain.Artifact, error) {
				return &domain.Artifact{URL: "https://cdn/out.png", Kind: domain.KindImage}, nil
			},
		},
		Renderer: renderer,
	})
	c.SelectFile(context.Background(), "a.png", "image/png", nil)
	c.Generate(context.Background())
	c.Reset()
	if c.Phase() != domain.PhaseIdle {
		t.Fatalf("phase = %q", c.Phase())
	}
	if c.UploadedURL() != "" || c.ResultURL() != "" {
		t.Fatal("reset must clear urls")
	}
	if renderer.Image().Created || renderer.Video().Created {
		t.Fatal("reset must remove rendered mounts")
	}
}
