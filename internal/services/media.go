package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"cardforge-backend/internal/runpod"
)

const (
	// inlineAudioThreshold is the largest payload we send base64-inline to
	// the speech endpoint; bigger files are staged behind a public URL or
	// shrunk with ffmpeg first.
	inlineAudioThreshold = 10 * 1024 * 1024
	maxDownloadBytes     = 200 * 1024 * 1024
	minTranscriptChars   = 10
)

// MediaService turns uploaded or linked audio/video into a transcript via
// the speech endpoint.
type MediaService struct {
	asr           Transcriber
	storagePath   string
	publicBaseURL string
	httpClient    *http.Client
}

func NewMediaService(asr Transcriber, storagePath, publicBaseURL string) *MediaService {
	return &MediaService{
		asr:           asr,
		storagePath:   storagePath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Transcribe handles exactly one of localPath / remoteURL. Remote media is
// handed to the provider by URL first; uploads go inline when small enough,
// by public URL when one can be built, and through an ffmpeg shrink pass
// otherwise.
func (m *MediaService) Transcribe(ctx context.Context, localPath, remoteURL, lang string) (string, error) {
	if m.asr == nil || !m.asr.Configured() {
		return "", &ExtractError{Code: ErrCodeAudioTranscribe, Message: "transcription endpoint is not configured"}
	}

	if remoteURL != "" {
		text, err := m.transcribeURL(ctx, remoteURL, lang)
		if err == nil {
			return text, nil
		}
		log.Printf("provider could not ingest %s directly (%v), downloading locally", remoteURL, err)

		downloaded, derr := m.download(ctx, remoteURL)
		if derr != nil {
			return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "could not download the media file"}
		}
		defer os.Remove(downloaded)
		localPath = downloaded
	}

	if localPath == "" {
		return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "no media file or URL provided"}
	}
	return m.transcribeFile(ctx, localPath, lang)
}

func (m *MediaService) transcribeFile(ctx context.Context, path, lang string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "media file is missing or unreadable"}
	}

	if info.Size() <= inlineAudioThreshold {
		return m.transcribeInline(ctx, path, lang)
	}

	// Too big to inline. A public base URL lets the provider pull the file
	// itself; otherwise shrink the audio track with ffmpeg and inline that.
	if m.publicBaseURL != "" {
		if rel, rerr := filepath.Rel(m.storagePath, path); rerr == nil && !strings.HasPrefix(rel, "..") {
			text, terr := m.transcribeURL(ctx, m.publicBaseURL+"/"+filepath.ToSlash(rel), lang)
			if terr == nil {
				return text, nil
			}
			log.Printf("provider could not ingest staged media %s: %v", rel, terr)
		}
	}

	shrunk, err := m.extractAudio(ctx, path)
	if err != nil {
		return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "could not extract an audio track from the media file"}
	}
	defer os.Remove(shrunk)

	return m.transcribeInline(ctx, shrunk, lang)
}

func (m *MediaService) transcribeInline(ctx context.Context, path, lang string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "media file is missing or unreadable"}
	}
	if len(data) > inlineAudioThreshold {
		// Even the extracted audio is too large to inline; last resort is
		// another ffmpeg pass, so just fail with guidance.
		return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "media file is too large to transcribe"}
	}

	text, err := m.asr.Transcribe(ctx,
		runpod.ASRInput{AudioBase64: base64.StdEncoding.EncodeToString(data)},
		runpod.ASROptions{Timeout: 120 * time.Second, Language: lang},
	)
	return m.checkTranscript(text, err)
}

func (m *MediaService) transcribeURL(ctx context.Context, mediaURL, lang string) (string, error) {
	text, err := m.asr.Transcribe(ctx,
		runpod.ASRInput{AudioURL: mediaURL},
		runpod.ASROptions{Timeout: 120 * time.Second, Language: lang},
	)
	return m.checkTranscript(text, err)
}

func (m *MediaService) checkTranscript(text string, err error) (string, error) {
	if err != nil {
		return "", &ExtractError{Code: ErrCodeAudioTranscribe, Message: "transcription failed: " + err.Error()}
	}
	text = CleanText(text)
	if len(text) < minTranscriptChars {
		return "", &ExtractError{Code: ErrCodeAudioTranscribe, Message: "transcription produced no usable text"}
	}
	return text, nil
}

func (m *MediaService) download(ctx context.Context, mediaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "media-*"+filepath.Ext(mediaURL))
	if err != nil {
		return "", err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if n > maxDownloadBytes {
		os.Remove(f.Name())
		return "", fmt.Errorf("media exceeds %d MB limit", maxDownloadBytes/(1024*1024))
	}
	return f.Name(), nil
}

// extractAudio transcodes to a small mono mp3 so it fits the inline limit.
func (m *MediaService) extractAudio(ctx context.Context, path string) (string, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", fmt.Errorf("ffmpeg not installed")
	}

	out := filepath.Join(os.TempDir(), "audio-"+uuid.NewString()+".mp3")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", path,
		"-vn", "-ac", "1", "-ar", "16000", "-b:a", "32k",
		out,
	)
	if combined, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg: %v: %s", err, firstLine(string(combined)))
	}
	return out, nil
}
