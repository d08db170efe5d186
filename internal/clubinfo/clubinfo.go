// Package clubinfo serves excerpts of the club website (schedules,
// prices, location, contact) as model context. The page text is cached
// with a TTL; a local knowledge directory with markdown files takes
// precedence over the live site when present.
package clubinfo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultClubURL  = "https://www.northhybridclub.com"
	clubTextMax     = 12000
	excerptMaxChars = 3500
	excerptMaxLines = 40
)

type Config struct {
	WebsiteURL   string
	TTL          time.Duration
	FetchRetries int
	FetchTimeout time.Duration
	KnowledgeDir string
}

type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	text      string
	fetchedAt time.Time
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.WebsiteURL) == "" {
		cfg.WebsiteURL = defaultClubURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 2
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With("component", "clubinfo"),
	}
}

var clubKeywords = []string{
	"horario", "horarios", "abrís", "abris", "clases", "disciplina", "disciplinas",
	"hyrox", "deka", "donde", "dónde", "ubicación", "ubicacion", "dirección",
	"direccion", "leioa", "bizkaia", "contacto", "whatsapp", "email", "precio",
	"precios", "tarifa", "tarifas", "membresía", "membresia", "sauna", "icebath",
	"presoterapia", "bañera", "hielo",
}

func NeedsClubInfo(message string) bool {
	m := strings.ToLower(message)
	for _, keyword := range clubKeywords {
		if strings.Contains(m, keyword) {
			return true
		}
	}
	return false
}

// ContextIfNeeded returns the INFO_CLUB block when the message asks
// about the club, or an empty string otherwise. Fetch failures are
// returned so the caller can log and degrade.
func (s *Service) ContextIfNeeded(ctx context.Context, message string) (string, error) {
	if !NeedsClubInfo(message) {
		return "", nil
	}
	text, err := s.clubText(ctx)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", nil
	}
	excerpt := pickRelevantExcerpt(text, message)
	if excerpt == "" {
		return "", nil
	}
	return "INFO_CLUB (extracto relevante de la web oficial; úsalo como fuente de verdad):\n" + excerpt + "\nFIN_INFO_CLUB", nil
}

// Invalidate drops the cached text. The knowledge watcher calls this
// when a markdown file changes.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.text = ""
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) clubText(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.text != "" && time.Since(s.fetchedAt) < s.cfg.TTL {
		cached := s.text
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	text := s.loadLocalKnowledge()
	if text == "" {
		var err error
		text, err = s.buildClubText(ctx)
		if err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.text = text
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return text, nil
}

// loadLocalKnowledge concatenates the markdown files of the knowledge
// directory. Returns "" when the directory is unset, missing or empty.
func (s *Service) loadLocalKnowledge() string {
	dir := strings.TrimSpace(s.cfg.KnowledgeDir)
	if dir == "" {
		return ""
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil || len(paths) == 0 {
		return ""
	}
	sort.Strings(paths)

	chunks := make([]string, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("knowledge file unreadable", "path", path, "error", err)
			continue
		}
		if text := strings.TrimSpace(string(content)); text != "" {
			chunks = append(chunks, "FUENTE: "+filepath.Base(path)+"\n"+text)
		}
	}
	return clampRunes(strings.Join(chunks, "\n\n"), clubTextMax)
}

func (s *Service) buildClubText(ctx context.Context) (string, error) {
	base := strings.TrimRight(s.cfg.WebsiteURL, "/")
	pages := []string{base, base + "/qr"}

	chunks := make([]string, 0, len(pages))
	var lastErr error
	for _, url := range pages {
		html, err := s.fetchWithRetry(ctx, url)
		if err != nil {
			s.logger.Warn("club page fetch failed", "url", url, "error", err)
			lastErr = err
			continue
		}
		if text := stripHTMLToText(html); text != "" {
			chunks = append(chunks, "FUENTE: "+url+"\n"+text)
		}
	}
	if len(chunks) == 0 {
		if lastErr != nil {
			return "", fmt.Errorf("fetch club pages: %w", lastErr)
		}
		return "", nil
	}
	return clampRunes(strings.Join(chunks, "\n\n"), clubTextMax), nil
}

func (s *Service) fetchWithRetry(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 400 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		body, err := s.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (s *Service) fetchOnce(ctx context.Context, url string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	res, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", url, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var (
	scriptPattern     = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	stylePattern      = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	blockClosePattern = regexp.MustCompile(`(?i)</(p|div|br|li|h\d|section|article)>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	trailingWSPattern = regexp.MustCompile(`\s+\n`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern   = regexp.MustCompile(`[ \t]{2,}`)
)

func stripHTMLToText(html string) string {
	if html == "" {
		return ""
	}
	text := scriptPattern.ReplaceAllString(html, " ")
	text = stylePattern.ReplaceAllString(text, " ")
	text = blockClosePattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	text = trailingWSPattern.ReplaceAllString(text, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var excerptKeywords = []string{
	"horario", "horarios", "clase", "clases", "disciplin", "hyrox", "deka",
	"ubic", "direc", "leioa", "bizkaia", "precio", "tarifa", "membres",
	"whatsapp", "email", "contact", "instagram", "open", "cerr", "sábado", "domingo",
}

// pickRelevantExcerpt scores each line against the message keywords:
// a keyword present in both the line and the message scores 3, a
// keyword only in the line scores 1. The best lines are returned in
// document order; with no hits the document head is used instead.
func pickRelevantExcerpt(fullText, message string) string {
	msg := strings.ToLower(message)
	rawLines := strings.Split(fullText, "\n")
	lines := make([]string, 0, len(rawLines))
	for _, line := range rawLines {
		if normalized := normalizeLine(line); normalized != "" {
			lines = append(lines, normalized)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	type scoredLine struct {
		idx   int
		line  string
		score int
	}
	scored := make([]scoredLine, 0, len(lines))
	for idx, line := range lines {
		lower := strings.ToLower(line)
		score := 0
		for _, keyword := range excerptKeywords {
			switch {
			case strings.Contains(msg, keyword) && strings.Contains(lower, keyword):
				score += 3
			case strings.Contains(lower, keyword):
				score++
			}
		}
		if strings.Contains(lower, "€") || strings.Contains(lower, "eur") ||
			strings.Contains(lower, "tel") || strings.Contains(lower, "@") {
			score++
		}
		if score > 0 {
			scored = append(scored, scoredLine{idx: idx, line: line, score: score})
		}
	}

	var chosen []string
	if len(scored) > 0 {
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
		if len(scored) > excerptMaxLines {
			scored = scored[:excerptMaxLines]
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].idx < scored[j].idx })
		for _, s := range scored {
			chosen = append(chosen, s.line)
		}
	} else {
		head := lines
		if len(head) > excerptMaxLines {
			head = head[:excerptMaxLines]
		}
		chosen = head
	}

	return clampRunes(strings.Join(chosen, "\n"), excerptMaxChars)
}

var wsPattern = regexp.MustCompile(`\s+`)

func normalizeLine(line string) string {
	return strings.TrimSpace(wsPattern.ReplaceAllString(line, " "))
}

func clampRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
