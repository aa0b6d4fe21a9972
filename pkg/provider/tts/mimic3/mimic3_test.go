package mimic3_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/tts/mimic3"
)

func TestSynthesize_SendsQueryAndReturnsWAV(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(make([]byte, 2205*2), 22050, 1)
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tts" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := mimic3.New(srv.URL+"/", mimic3.WithVoice("en_US/vctk_low#p239"), mimic3.WithLengthScale(1.2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, wav) {
		t.Error("returned audio differs from server response")
	}
	if gotQuery["text"][0] != "Hello there" {
		t.Errorf("text = %q", gotQuery["text"])
	}
	if gotQuery["voice"][0] != "en_US/vctk_low#p239" {
		t.Errorf("voice = %q", gotQuery["voice"])
	}
	if gotQuery["lengthScale"][0] != "1.2" {
		t.Errorf("lengthScale = %q", gotQuery["lengthScale"])
	}
	if _, ok := gotQuery["noiseScale"]; ok {
		t.Error("noiseScale sent although unset")
	}
}

func TestSynthesize_Non200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := mimic3.New(srv.URL)
	_, err := p.Synthesize(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not name the status code", err)
	}
}

func TestSynthesize_InvalidWAV(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a wav"))
	}))
	defer srv.Close()

	p, _ := mimic3.New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for non-WAV body")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p, _ := mimic3.New("")
	if _, err := p.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voices" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"key":"en_US/ljspeech_low","language":"en_US","name":"ljspeech_low"}]`))
	}))
	defer srv.Close()

	p, _ := mimic3.New(srv.URL)
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].Key != "en_US/ljspeech_low" {
		t.Errorf("voices = %+v", voices)
	}
}
