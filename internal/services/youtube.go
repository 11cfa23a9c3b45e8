package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	urlpkg "net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"

	"cardforge-backend/internal/runpod"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Transcriber is the slice of the ASR client the caption chain needs; the
// worker audio path in media.go shares it.
type Transcriber interface {
	Configured() bool
	Transcribe(ctx context.Context, in runpod.ASRInput, opts runpod.ASROptions) (string, error)
}

type YouTubeService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	asr           Transcriber
	cache         CaptionCache
	cacheTTL      time.Duration
}

func NewYouTubeService(asr Transcriber, cache CaptionCache, cacheTTL time.Duration) *YouTubeService {
	return &YouTubeService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
		asr:           asr,
		cache:         cache,
		cacheTTL:      cacheTTL,
	}
}

// captionStrategy is one rung of the transcript ladder. Each is fully
// failure-isolated: an error or empty result just moves on to the next.
type captionStrategy struct {
	name string
	run  func(ctx context.Context, videoID, videoURL, lang string) (string, error)
}

// Transcript resolves a transcript for the video behind url, trying caption
// sources in order of cost and falling back to audio transcription last.
// Results are cached per (videoID, language).
func (s *YouTubeService) Transcript(ctx context.Context, videoURL, lang string) (string, error) {
	videoID := extractVideoID(videoURL)
	if videoID == "" {
		return "", &ExtractError{Code: ErrCodeVideoProcess, Message: "could not parse a YouTube video id from the URL"}
	}
	if lang == "" {
		lang = "en"
	}

	cacheKey := fmt.Sprintf("captions:%s:%s", videoID, lang)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	strategies := []captionStrategy{
		{name: "yt-dlp", run: s.viaYtDlp},
		{name: "transcript-api", run: s.viaTranscriptAPI},
		{name: "watch-page", run: s.viaWatchPage},
		{name: "caption-tracks", run: s.viaCaptionTracks},
	}

	for _, st := range strategies {
		text, err := st.run(ctx, videoID, videoURL, lang)
		if err != nil {
			log.Printf("captions via %s failed for %s: %v", st.name, videoID, err)
			continue
		}
		text = CleanText(text)
		if text == "" {
			continue
		}
		log.Printf("captions via %s succeeded for %s (%d chars)", st.name, videoID, len(text))
		if s.cache != nil {
			s.cache.Set(ctx, cacheKey, text, s.cacheTTL)
		}
		return text, nil
	}

	// No caption source worked. Transcribing the audio is the last resort,
	// and only when the speech endpoint is actually configured.
	if s.asr == nil || !s.asr.Configured() {
		return "", &ExtractError{Code: ErrCodeYTNoCaptions, Message: "no captions are available for this video"}
	}

	text, err := s.viaAudioTranscription(ctx, videoURL, lang)
	if err != nil {
		log.Printf("audio transcription failed for %s: %v", videoID, err)
		return "", &ExtractError{Code: ErrCodeAudioTranscribe, Message: "no captions available and audio transcription failed"}
	}
	text = CleanText(text)
	if text == "" {
		return "", &ExtractError{Code: ErrCodeAudioTranscribe, Message: "audio transcription produced no text"}
	}
	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, text, s.cacheTTL)
	}
	return text, nil
}

// viaYtDlp shells out to yt-dlp for a WebVTT subtitle download. Cheapest path
// when the binary is installed; absence of the binary is just a miss.
func (s *YouTubeService) viaYtDlp(ctx context.Context, videoID, videoURL, lang string) (string, error) {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return "", fmt.Errorf("yt-dlp not installed")
	}

	dir, err := os.MkdirTemp("", "captions-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--skip-download",
		"--write-subs", "--write-auto-subs",
		"--sub-langs", lang+".*,"+lang,
		"--sub-format", "vtt",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		videoURL,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("yt-dlp: %v: %s", err, firstLine(string(out)))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.vtt"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp produced no subtitle file")
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return "", err
	}
	return ParseSubtitle(string(data)), nil
}

func (s *YouTubeService) viaTranscriptAPI(_ context.Context, videoID, _, lang string) (string, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{lang, lang + "-US", lang + "-GB"})
	if err != nil {
		// any available language beats nothing
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
		if err != nil {
			return "", err
		}
	}
	if len(transcript.Entries) == 0 {
		return "", fmt.Errorf("subtitle track is empty")
	}

	var b strings.Builder
	for _, entry := range transcript.Entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString(" ")
	}
	return b.String(), nil
}

// viaWatchPage scrapes the watch page's player response for a caption track
// URL, then fetches the track as JSON3 with a plain-XML fallback.
func (s *YouTubeService) viaWatchPage(ctx context.Context, videoID, _, _ string) (string, error) {
	pageURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}

	captionURL, err := extractCaptionURL(string(body))
	if err != nil {
		return "", err
	}
	return s.fetchCaptionTrack(ctx, captionURL)
}

// viaCaptionTracks asks the video library for the caption track list, which
// survives some watch-page layout changes the scraper does not.
func (s *YouTubeService) viaCaptionTracks(ctx context.Context, videoID, _, lang string) (string, error) {
	video, err := s.ytClient.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch video metadata: %w", err)
	}
	if len(video.CaptionTracks) == 0 {
		return "", fmt.Errorf("video exposes no caption tracks")
	}

	track := video.CaptionTracks[0]
	for _, t := range video.CaptionTracks {
		if strings.HasPrefix(strings.ToLower(t.LanguageCode), strings.ToLower(lang)) {
			track = t
			break
		}
	}
	return s.fetchCaptionTrack(ctx, track.BaseURL)
}

// fetchCaptionTrack downloads a caption track, preferring the JSON3 format
// and falling back to the legacy timedtext XML.
func (s *YouTubeService) fetchCaptionTrack(ctx context.Context, baseURL string) (string, error) {
	if text, err := s.fetchCaptionBody(ctx, baseURL+"&fmt=json3"); err == nil {
		if parsed, perr := parseCaptionsJSON3(text); perr == nil && parsed != "" {
			return parsed, nil
		}
	}

	body, err := s.fetchCaptionBody(ctx, baseURL)
	if err != nil {
		return "", err
	}
	return parseCaptionsXML(body)
}

func (s *YouTubeService) fetchCaptionBody(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption track returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// viaAudioTranscription streams the lowest-bitrate audio format and sends it
// inline to the speech endpoint.
func (s *YouTubeService) viaAudioTranscription(ctx context.Context, videoURL, lang string) (string, error) {
	video, err := s.ytClient.GetVideoContext(ctx, videoURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch video metadata: %w", err)
	}

	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return "", fmt.Errorf("no audio formats available")
	}

	// Lowest bitrate keeps the payload small; word content survives fine.
	best := formats[0]
	for _, f := range formats {
		if f.Bitrate > 0 && (best.Bitrate == 0 || f.Bitrate < best.Bitrate) {
			best = f
		}
	}

	stream, _, err := s.ytClient.GetStreamContext(ctx, video, &best)
	if err != nil {
		return "", fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	const maxAudioBytes = 48 * 1024 * 1024
	limited := io.LimitReader(stream, maxAudioBytes+1)
	audioBytes, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("failed to read audio stream: %w", err)
	}
	if len(audioBytes) > maxAudioBytes {
		return "", fmt.Errorf("audio stream exceeds %d MB limit", maxAudioBytes/(1024*1024))
	}

	return s.asr.Transcribe(ctx,
		runpod.ASRInput{AudioBase64: base64.StdEncoding.EncodeToString(audioBytes)},
		runpod.ASROptions{Timeout: 120 * time.Second, Language: lang},
	)
}

func extractCaptionURL(pageHTML string) (string, error) {
	re := regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	matches := re.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		re2 := regexp.MustCompile(`"playerCaptionsTracklistRenderer"\s*:\s*\{(?:.*?,)?\s*"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
		matches = re2.FindStringSubmatch(pageHTML)
		if len(matches) < 2 {
			return "", fmt.Errorf("no captions available for this video")
		}
	}

	tracksJSON := matches[1]
	reURL := regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
	urlMatches := reURL.FindStringSubmatch(tracksJSON)
	if len(urlMatches) < 2 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}

	u := urlMatches[1]
	u = strings.ReplaceAll(u, `\u0026`, "&")
	u = strings.ReplaceAll(u, `\/`, "/")

	return u, nil
}

type timedTextXML struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []textXML `xml:"text"`
}

type textXML struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func parseCaptionsXML(data []byte) (string, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", err
	}

	var parts []string
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Text))
		if text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("captions XML empty")
	}
	return strings.Join(parts, " "), nil
}

type captionsJSON3 struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseCaptionsJSON3(data []byte) (string, error) {
	var doc captionsJSON3
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}

	var parts []string
	for _, ev := range doc.Events {
		for _, seg := range ev.Segs {
			text := strings.TrimSpace(seg.UTF8)
			if text != "" && text != "\n" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("captions JSON3 empty")
	}
	return strings.Join(parts, " "), nil
}

func extractVideoID(raw string) string {
	parsed, err := urlpkg.Parse(raw)
	if err == nil {
		host := strings.ToLower(parsed.Host)
		path := strings.Trim(parsed.Path, "/")

		// youtube.com/watch?v=VIDEO_ID
		if strings.Contains(host, "youtube.com") {
			if v := parsed.Query().Get("v"); len(v) == 11 {
				return v
			}

			parts := strings.Split(path, "/")
			if len(parts) >= 2 {
				switch parts[0] {
				case "shorts", "embed", "v":
					if len(parts[1]) == 11 {
						return parts[1]
					}
				}
			}
		}

		// youtu.be/VIDEO_ID
		if strings.Contains(host, "youtu.be") {
			candidate := strings.Split(path, "/")[0]
			if len(candidate) == 11 {
				return candidate
			}
		}
	}

	// Fallback regex for unusual URL forms
	re := regexp.MustCompile(`(?:v=|\/v\/|youtu\.be\/|embed\/|shorts\/)([a-zA-Z0-9_-]{11})`)
	if m := re.FindStringSubmatch(raw); len(m) > 1 {
		return m[1]
	}

	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
