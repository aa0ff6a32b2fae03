package feed

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
)

const defaultValidatorTimeout = 10 * time.Second

var xmlDeclRe = regexp.MustCompile(`(?i)^\s*<\?xml[^>]*\?>`)

type cachedVerdict struct {
	valid     bool
	checkedAt time.Time
}

// Validator decides whether a URL serves a parseable feed and caches the
// verdict per URL for a TTL. Expired entries are recomputed in place
// rather than evicted eagerly.
type Validator struct {
	mu    sync.Mutex
	cache map[string]cachedVerdict
	ttl   time.Duration

	downloader *downloader
}

// NewValidator creates a validator with the given cache TTL.
func NewValidator(ttl time.Duration, userAgent string) *Validator {
	return &Validator{
		cache:      make(map[string]cachedVerdict),
		ttl:        ttl,
		downloader: newDownloader(defaultValidatorTimeout, userAgent),
	}
}

// Validate reports whether the URL serves a feed with at least one
// extractable entry.
func (v *Validator) Validate(ctx context.Context, url string, headers map[string]string) bool {
	v.mu.Lock()
	entry, ok := v.cache[url]
	v.mu.Unlock()
	if ok && time.Since(entry.checkedAt) < v.ttl {
		log.Debug().Str("url", url).Bool("valid", entry.valid).Msg("Validator cache hit")
		return entry.valid
	}

	valid := v.check(ctx, url, headers)

	v.mu.Lock()
	v.cache[url] = cachedVerdict{valid: valid, checkedAt: time.Now()}
	v.mu.Unlock()

	log.Debug().Str("url", url).Bool("valid", valid).Msg("Feed validated")
	return valid
}

func (v *Validator) check(ctx context.Context, url string, headers map[string]string) bool {
	body, err := v.downloader.fetch(ctx, url, headers)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("Feed validation download failed")
		return false
	}

	parsed, err := parseFeedBytes(body)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("Feed validation parse failed")
		return false
	}
	return len(parsed.Items) > 0
}

// parseFeedBytes parses raw feed bytes. An encoding-declaration mismatch
// gets one retry with the XML declaration stripped; content that still
// parses then is treated as valid rather than rejected over a mislabeled
// charset.
func parseFeedBytes(body []byte) (*gofeed.Feed, error) {
	parser := gofeed.NewParser()
	parsed, err := parser.Parse(bytes.NewReader(body))
	if err == nil {
		return parsed, nil
	}

	if !isEncodingError(err) {
		return nil, err
	}

	stripped := xmlDeclRe.ReplaceAll(body, nil)
	return gofeed.NewParser().Parse(bytes.NewReader(stripped))
}

func isEncodingError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encoding") || strings.Contains(msg, "charset")
}
