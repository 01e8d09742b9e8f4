package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"stencil/internal/domain"
)

func TestUploadHappyPath(t *testing.T) {
	var putBody []byte
	var putContentType string
	var signedName string

	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/get-emd-upload-url", func(w http.ResponseWriter, r *http.Request) {
		signedName = r.URL.Query().Get("fileName")
		if signedName == "" {
			http.Error(w, "fileName required", http.StatusBadRequest)
			return
		}
		io.WriteString(w, ts.URL+"/put/"+signedName+"?token=abc")
	})
	mux.HandleFunc("/put/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		putBody, _ = io.ReadAll(r.Body)
		putContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})
	ts = httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(Options{
		APIBaseURL: ts.URL,
		CDNBaseURL: "https://contents.maxstudio.ai",
		HTTPClient: ts.Client(),
	})

	readURL, err := client.Upload(context.Background(), []byte("raw-bytes"), "image/png", "photo.png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := regexp.MustCompile(`^https://contents\.maxstudio\.ai/[A-Za-z0-9]{21}\.png$`)
	if !want.MatchString(readURL) {
		t.Fatalf("readURL = %q, want match %v", readURL, want)
	}
	if !strings.HasSuffix(readURL, "/"+signedName) {
		t.Fatalf("readURL %q does not end with signed name %q", readURL, signedName)
	}
	if !bytes.Equal(putBody, []byte("raw-bytes")) {
		t.Fatalf("put body = %q", putBody)
	}
	if putContentType != "image/png" {
		t.Fatalf("Content-Type = %q", putContentType)
	}
}

func TestUploadDefaultsExtensionToJPG(t *testing.T) {
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/get-emd-upload-url", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ts.URL+"/put/"+r.URL.Query().Get("fileName"))
	})
	mux.HandleFunc("/put/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ts = httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(Options{APIBaseURL: ts.URL, CDNBaseURL: "https://cdn", HTTPClient: ts.Client()})
	readURL, err := client.Upload(context.Background(), []byte("x"), "image/jpeg", "no-extension")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasSuffix(readURL, ".jpg") {
		t.Fatalf("readURL = %q, want .jpg suffix", readURL)
	}
}

func TestUploadGeneratesFreshFilenames(t *testing.T) {
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/get-emd-upload-url", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ts.URL+"/put/"+r.URL.Query().Get("fileName"))
	})
	mux.HandleFunc("/put/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ts = httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(Options{APIBaseURL: ts.URL, CDNBaseURL: "https://cdn", HTTPClient: ts.Client()})
	first, err := client.Upload(context.Background(), []byte("x"), "image/png", "photo.png")
	if err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	second, err := client.Upload(context.Background(), []byte("x"), "image/png", "photo.png")
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if first == second {
		t.Fatalf("re-upload reused filename %q", first)
	}
}

func TestUploadSignFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signing unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(Options{APIBaseURL: ts.URL, HTTPClient: ts.Client()})
	_, err := client.Upload(context.Background(), []byte("x"), "image/png", "photo.png")
	var uploadErr *domain.UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("err = %v, want *domain.UploadError", err)
	}
	if uploadErr.Stage != domain.UploadStageSign {
		t.Fatalf("stage = %q, want sign", uploadErr.Stage)
	}
}

func TestUploadTransferFailure(t *testing.T) {
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/get-emd-upload-url", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ts.URL+"/put/"+r.URL.Query().Get("fileName"))
	})
	mux.HandleFunc("/put/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket full", http.StatusInsufficientStorage)
	})
	ts = httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(Options{APIBaseURL: ts.URL, HTTPClient: ts.Client()})
	_, err := client.Upload(context.Background(), []byte("x"), "image/png", "photo.png")
	var uploadErr *domain.UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("err = %v, want *domain.UploadError", err)
	}
	if uploadErr.Stage != domain.UploadStageTransfer {
		t.Fatalf("stage = %q, want transfer", uploadErr.Stage)
	}
}
