package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	urlpkg "net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"classroom-backend/internal/models"
	"classroom-backend/internal/playback"
)

const (
	PlaybackSourceStream = "stream"
	PlaybackSourceEmbed  = "embed"
	PlaybackSourceDirect = "direct"
)

// PlaybackSource tells the client how to play a video.
type PlaybackSource struct {
	Kind            string `json:"kind"`
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// MediaService loads captions and resolves playable sources for lesson videos.
type MediaService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	primaryLang   string
	secondaryLang string
	logger        zerolog.Logger
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

// timedLine is one caption line before it becomes a cue.
type timedLine struct {
	start float64
	text  string
}

func NewMediaService(primaryLang, secondaryLang string, logger zerolog.Logger) *MediaService {
	if primaryLang == "" {
		primaryLang = "en"
	}
	return &MediaService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
		primaryLang:   primaryLang,
		secondaryLang: secondaryLang,
		logger:        logger.With().Str("component", "media").Logger(),
	}
}

// LoadCues builds the cue list for a YouTube video: primary-language captions, with the
// secondary language attached to each cue when configured and available.
func (s *MediaService) LoadCues(ctx context.Context, videoURL string) ([]models.TranscriptCue, error) {
	videoID := ExtractVideoID(videoURL)
	if videoID == "" {
		return nil, fmt.Errorf("no captions source for %s", videoURL)
	}

	primary, err := s.fetchLines(ctx, videoID, s.primaryLang)
	if err != nil {
		return nil, err
	}

	var secondary []timedLine
	if s.secondaryLang != "" && s.secondaryLang != s.primaryLang {
		secondary, err = s.fetchLines(ctx, videoID, s.secondaryLang)
		if err != nil {
			s.logger.Warn().Err(err).Str("video_id", videoID).Str("lang", s.secondaryLang).Msg("secondary captions unavailable")
			secondary = nil
		}
	}

	cues := buildCues(primary, secondary)
	s.logger.Debug().Str("video_id", videoID).Int("cues", len(cues)).Msg("captions loaded")
	return cues, nil
}

func (s *MediaService) fetchLines(ctx context.Context, videoID, lang string) ([]timedLine, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{lang})
	if err == nil && len(transcript.Entries) > 0 {
		lines := make([]timedLine, 0, len(transcript.Entries))
		for _, entry := range transcript.Entries {
			text := strings.TrimSpace(entry.Text)
			if text == "" {
				continue
			}
			lines = append(lines, timedLine{start: entry.Start, text: text})
		}
		if len(lines) > 0 {
			return lines, nil
		}
	}

	lines, legacyErr := s.getTimedText(ctx, videoID, lang)
	if legacyErr != nil {
		return nil, fmt.Errorf("no %s subtitles via transcript API (%v) and timedtext fallback failed (%v)", lang, err, legacyErr)
	}
	return lines, nil
}

func (s *MediaService) getTimedText(ctx context.Context, videoID, lang string) ([]timedLine, error) {
	pageURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", lang+";q=0.9")

	body, err := s.get(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch YouTube page: %w", err)
	}

	captionURL, err := extractCaptionURL(string(body), lang)
	if err != nil {
		return nil, err
	}

	captionReq, err := http.NewRequestWithContext(ctx, http.MethodGet, captionURL, nil)
	if err != nil {
		return nil, err
	}
	captionBody, err := s.get(captionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}

	lines, err := parseCaptionsXML(captionBody)
	if err != nil {
		return nil, fmt.Errorf("failed to parse captions XML: %w", err)
	}
	return lines, nil
}

func (s *MediaService) get(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var (
	captionTracksRe = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	baseURLRe       = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
)

// extractCaptionURL picks the caption track for lang from a watch page, or the first
// track when that language is missing.
func extractCaptionURL(pageHTML, lang string) (string, error) {
	matches := captionTracksRe.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		return "", fmt.Errorf("no captions available for this video")
	}

	urls := baseURLRe.FindAllStringSubmatch(matches[1], -1)
	if len(urls) == 0 {
		return "", fmt.Errorf("caption track found but baseUrl missing")
	}

	chosen := unescapeCaptionURL(urls[0][1])
	for _, m := range urls {
		u := unescapeCaptionURL(m[1])
		if parsed, err := urlpkg.Parse(u); err == nil && parsed.Query().Get("lang") == lang {
			chosen = u
			break
		}
	}
	return chosen, nil
}

func unescapeCaptionURL(u string) string {
	u = strings.ReplaceAll(u, `\u0026`, "&")
	return strings.ReplaceAll(u, `\/`, "/")
}

func parseCaptionsXML(data []byte) ([]timedLine, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return nil, err
	}

	var lines []timedLine
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Text))
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(t.Start, 64)
		if err != nil || start < 0 {
			continue
		}
		lines = append(lines, timedLine{start: start, text: text})
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("captions XML empty")
	}
	return lines, nil
}

// buildCues turns primary lines into sorted cues and attaches, to each cue, the
// secondary line active at its start.
func buildCues(primary, secondary []timedLine) []models.TranscriptCue {
	sort.SliceStable(primary, func(i, j int) bool { return primary[i].start < primary[j].start })

	cues := make([]models.TranscriptCue, 0, len(primary))
	for _, l := range primary {
		if n := len(cues); n > 0 && cues[n-1].StartSeconds == l.start {
			// same start: join rather than create a duplicate cue
			cues[n-1].TextPrimary += " " + l.text
			continue
		}
		cues = append(cues, models.TranscriptCue{StartSeconds: l.start, TextPrimary: l.text})
	}

	if len(secondary) == 0 {
		return cues
	}

	sort.SliceStable(secondary, func(i, j int) bool { return secondary[i].start < secondary[j].start })
	secondaryCues := make([]models.TranscriptCue, len(secondary))
	for i, l := range secondary {
		secondaryCues[i] = models.TranscriptCue{StartSeconds: l.start, TextPrimary: l.text}
	}

	for i := range cues {
		// allow a little drift between the two tracks
		j := playback.ActiveCueIndex(secondaryCues, cues[i].StartSeconds+0.25)
		if j < 0 {
			continue
		}
		text := secondaryCues[j].TextPrimary
		cues[i].TextSecondary = &text
	}
	return cues
}

// ProbePlayback resolves how a lesson video should be played. Non-YouTube URLs play
// directly. When the YouTube backend cannot produce a stream a PlaybackInitError is
// returned together with an embed source the client can fall back to.
func (s *MediaService) ProbePlayback(ctx context.Context, videoURL string) (*PlaybackSource, error) {
	videoID := ExtractVideoID(videoURL)
	if videoID == "" {
		if strings.TrimSpace(videoURL) == "" {
			return nil, &PlaybackInitError{VideoURL: videoURL, Err: fmt.Errorf("lesson has no media")}
		}
		return &PlaybackSource{Kind: PlaybackSourceDirect, URL: videoURL}, nil
	}

	embed := &PlaybackSource{Kind: PlaybackSourceEmbed, URL: "https://www.youtube.com/embed/" + videoID}

	video, err := s.ytClient.GetVideoContext(ctx, videoID)
	if err != nil {
		return embed, &PlaybackInitError{VideoURL: videoURL, FallbackURL: embed.URL, Err: err}
	}
	embed.Title = video.Title
	embed.DurationSeconds = int(video.Duration.Seconds())

	formats := video.Formats.WithAudioChannels()
	var best *yt.Format
	for i := range formats {
		f := &formats[i]
		if f.QualityLabel == "" {
			continue // audio only
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return embed, &PlaybackInitError{VideoURL: videoURL, FallbackURL: embed.URL, Err: fmt.Errorf("no muxed formats available")}
	}

	streamURL, err := s.ytClient.GetStreamURLContext(ctx, video, best)
	if err != nil {
		return embed, &PlaybackInitError{VideoURL: videoURL, FallbackURL: embed.URL, Err: err}
	}

	return &PlaybackSource{
		Kind:            PlaybackSourceStream,
		URL:             streamURL,
		Title:           video.Title,
		DurationSeconds: embed.DurationSeconds,
	}, nil
}

var videoIDRe = regexp.MustCompile(`(?:v=|\/v\/|youtu\.be\/|embed\/|shorts\/)([a-zA-Z0-9_-]{11})`)

// ExtractVideoID returns the 11 character YouTube id in url, or "".
func ExtractVideoID(url string) string {
	parsed, err := urlpkg.Parse(url)
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

		if host != "" && !strings.Contains(host, "youtube") && !strings.Contains(host, "youtu.be") {
			return ""
		}
	}

	if m := videoIDRe.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}
