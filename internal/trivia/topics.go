// internal/trivia/topics.go
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ddebettencourt/kwizniac-infinite/internal/cache"
)

const (
	pageviewsURL      = "https://wikimedia.org/api/rest_v1/metrics/pageviews/top/en.wikipedia/all-access/%d/%02d/all-days"
	topicUserAgent    = "KwizniacInfinite/1.0 (trivia game; educational)"
	poolTTL           = 24 * time.Hour
	poolSize          = 1000
	monthsToAggregate = 6
	// Once this fraction of the pool has been served, the non-repeat window
	// resets and topics become eligible again.
	usedResetFraction = 0.8
)

// excludedPatterns filter out page titles that make poor trivia subjects:
// meta pages, list/index articles, time-bound pages and disambiguated media.
var excludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Main Page$`),
	regexp.MustCompile(`(?i)^(Special|Wikipedia|File|Portal|Help|Category|Template):`),
	regexp.MustCompile(`(?i)^(List|Index|Outline) of`),
	regexp.MustCompile(`(?i)^(Deaths|Births) in`),
	regexp.MustCompile(`(?i)deaths in \d{4}`),
	regexp.MustCompile(`(?i)\d{4} in `),
	regexp.MustCompile(`(?i)^20\d\d `),
	regexp.MustCompile(`(?i)season \d+`),
	regexp.MustCompile(`(?i)\((TV series|film|song|album)\)`),
	regexp.MustCompile(`(?i)episode`),
	regexp.MustCompile(`(?i)Chapter \d+`),
	regexp.MustCompile(`^.{1,2}$`),
	regexp.MustCompile(`(?i)^(Google|YouTube|Facebook|Instagram|TikTok|Twitter|Reddit|ChatGPT)$`),
	regexp.MustCompile(`(?i)pornograph`),
	regexp.MustCompile(`(?i)^(Pornhub|XVideos|XNXX)$`),
}

// fallbackTopics is the curated pool used whenever the pageviews API is
// unreachable or returns too little data.
var fallbackTopics = []string{
	"Albert Einstein", "Leonardo da Vinci", "Napoleon Bonaparte", "Cleopatra",
	"Julius Caesar", "Abraham Lincoln", "Winston Churchill", "Mahatma Gandhi",
	"Martin Luther King Jr.", "Nelson Mandela", "Queen Elizabeth II", "George Washington",
	"Marie Curie", "Nikola Tesla", "Charles Darwin", "Isaac Newton", "Aristotle",
	"William Shakespeare", "Mozart", "Beethoven", "Michelangelo", "Picasso",
	"Barack Obama", "Michael Jordan", "Muhammad Ali", "Michael Jackson",
	"Elvis Presley", "The Beatles", "Marilyn Monroe", "Oprah Winfrey",
	"Walt Disney", "Steven Spielberg", "Tom Hanks",
	"The Great Wall of China", "The Eiffel Tower", "The Colosseum", "Machu Picchu",
	"The Pyramids of Giza", "The Taj Mahal", "The Statue of Liberty", "Mount Everest",
	"The Grand Canyon", "Niagara Falls", "The Amazon Rainforest", "Antarctica",
	"The Sahara Desert", "The Great Barrier Reef", "Yellowstone National Park",
	"The Internet", "The Telephone", "The Light Bulb", "The Printing Press",
	"Penicillin", "The Airplane", "The Automobile", "Television", "Radio",
	"The Steam Engine", "DNA", "Electricity", "The Telescope", "Vaccines",
	"World War II", "World War I", "The Moon Landing", "The French Revolution",
	"The Renaissance", "The Industrial Revolution", "The American Revolution",
	"The Fall of the Berlin Wall", "The Titanic", "D-Day",
	"The Mona Lisa", "Romeo and Juliet", "Harry Potter", "Star Wars",
	"The Odyssey", "Hamlet", "The Lord of the Rings",
	"Pride and Prejudice", "To Kill a Mockingbird", "1984", "The Great Gatsby",
	"The Sun", "The Moon", "Mars", "Jupiter", "Black Holes", "The Milky Way",
	"Dinosaurs", "The Big Bang", "Photosynthesis", "Evolution",
	"Coca-Cola", "McDonald's", "Apple Inc.", "Amazon", "Disney", "Nike", "Microsoft",
	"The Olympic Games", "The Super Bowl", "The World Cup", "Wimbledon",
	"Pizza", "Chocolate", "Coffee", "Sushi", "Bread", "Rice",
	"Zeus", "Thor", "Hercules", "King Arthur", "Achilles", "Odysseus",
}

// TopicService serves random non-repeating topics from a rolling pool of
// popular Wikipedia articles, refreshed daily, with a curated fallback. An
// optional Redis cache lets restarts reuse a previously fetched pool.
type TopicService struct {
	mu        sync.Mutex
	pool      []string
	fetchedAt time.Time
	used      map[string]struct{}

	client *http.Client
	cache  *cache.Client
	now    func() time.Time
}

func NewTopicService(cacheClient *cache.Client) *TopicService {
	return &TopicService{
		used:   make(map[string]struct{}),
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cacheClient,
		now:    time.Now,
	}
}

// NextTopic returns a random topic that has not been served recently. The
// non-repeat window resets once most of the pool has been exhausted.
func (s *TopicService) NextTopic(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := s.topicsLocked(ctx)
	if len(topics) == 0 {
		return "", fmt.Errorf("topic pool is empty")
	}

	if len(s.used) >= int(float64(len(topics))*usedResetFraction) {
		s.used = make(map[string]struct{})
	}

	topic := topics[rand.Intn(len(topics))]
	for attempts := 0; attempts < 100; attempts++ {
		if _, taken := s.used[topic]; !taken {
			break
		}
		topic = topics[rand.Intn(len(topics))]
	}
	s.used[topic] = struct{}{}
	return topic, nil
}

// topicsLocked returns the current pool, refreshing it when stale. On fetch
// failure the previous pool is kept, falling back to the curated list if
// nothing was ever fetched. Caller holds mu.
func (s *TopicService) topicsLocked(ctx context.Context) []string {
	if len(s.pool) > 0 && s.now().Sub(s.fetchedAt) < poolTTL {
		return s.pool
	}

	if cached, err := s.cache.GetTopicPool(ctx); err != nil {
		log.Warnf("topic pool cache read failed: %v", err)
	} else if len(cached) > 100 {
		s.pool = cached
		s.fetchedAt = s.now()
		return s.pool
	}

	fresh, err := s.fetchPopularTopics(ctx)
	if err != nil || len(fresh) <= 100 {
		if err != nil {
			log.Warnf("failed to fetch popular topics: %v", err)
		}
		if len(s.pool) == 0 {
			log.Info("using fallback curated topic pool")
			s.pool = fallbackTopics
		}
		return s.pool
	}

	s.pool = fresh
	s.fetchedAt = s.now()
	if err := s.cache.SetTopicPool(ctx, fresh, poolTTL); err != nil {
		log.Warnf("topic pool cache write failed: %v", err)
	}
	log.Infof("topic pool refreshed with %d popular topics", len(fresh))
	return s.pool
}

// fetchPopularTopics aggregates the most viewed articles across the last
// several months and keeps the top titles that pass the exclusion filters.
func (s *TopicService) fetchPopularTopics(ctx context.Context) ([]string, error) {
	views := make(map[string]int64)
	fetched := 0

	year, month := s.now().Year(), int(s.now().Month())
	for i := 0; i < monthsToAggregate; i++ {
		month--
		if month == 0 {
			month = 12
			year--
		}
		monthly, err := s.fetchMonthlyTopics(ctx, year, month)
		if err != nil {
			log.Warnf("pageviews fetch for %d/%02d failed: %v", year, month, err)
			continue
		}
		fetched++
		for title, v := range monthly {
			views[title] += v
		}
	}
	if fetched == 0 {
		return nil, fmt.Errorf("no pageview data available")
	}

	titles := make([]string, 0, len(views))
	for title := range views {
		titles = append(titles, title)
	}
	sort.Slice(titles, func(i, j int) bool { return views[titles[i]] > views[titles[j]] })

	if len(titles) > poolSize {
		titles = titles[:poolSize]
	}
	return titles, nil
}

func (s *TopicService) fetchMonthlyTopics(ctx context.Context, year, month int) (map[string]int64, error) {
	url := fmt.Sprintf(pageviewsURL, year, month)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", topicUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pageviews API returned status %d", resp.StatusCode)
	}

	var body struct {
		Items []struct {
			Articles []struct {
				Article string `json:"article"`
				Views   int64  `json:"views"`
			} `json:"articles"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pageviews response: %w", err)
	}
	if len(body.Items) == 0 {
		return nil, fmt.Errorf("pageviews response contained no items")
	}

	monthly := make(map[string]int64)
	for _, a := range body.Items[0].Articles {
		title := strings.ReplaceAll(a.Article, "_", " ")
		if isValidTopic(title) {
			monthly[title] += a.Views
		}
	}
	return monthly, nil
}

func isValidTopic(title string) bool {
	for _, p := range excludedPatterns {
		if p.MatchString(title) {
			return false
		}
	}
	return true
}
