// Package aggregation computes the emotion frequency and tag association summary of a period.
package aggregation

import (
	"sort"
	"time"
)

// DateLayout formats the period boundaries of AggregatedData.
const DateLayout = "2006-01-02"

const topEmotionLimit = 3

// TagKind distinguishes people tags from context tags.
type TagKind string

const (
	TagKindPeople  TagKind = "people"
	TagKindContext TagKind = "context"
)

// Record is the part of a journal entry or mood log the engine reads.
type Record struct {
	ID            string
	CreatedAt     time.Time
	EmotionIDs    []string
	PeopleTagIDs  []string
	ContextTagIDs []string
}

// Range is a closed time interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// DayRange spans whole calendar days from the start of first to the last millisecond of last,
// in the location of first.
func DayRange(first, last time.Time) Range {
	location := first.Location()
	startYear, startMonth, startDay := first.Date()
	last = last.In(location)
	endYear, endMonth, endDay := last.Date()
	return Range{
		Start: time.Date(startYear, startMonth, startDay, 0, 0, 0, 0, location),
		End:   time.Date(endYear, endMonth, endDay, 23, 59, 59, int(999*time.Millisecond), location),
	}
}

// Contains reports whether instant lies within the range, boundaries included.
func (r Range) Contains(instant time.Time) bool {
	return !instant.Before(r.Start) && !instant.After(r.End)
}

// EmotionCount is the number of times an emotion was recorded in the period.
type EmotionCount struct {
	EmotionID string `json:"emotionId"`
	Count     int    `json:"count"`
}

// TagEmotionAssociation summarises the emotions recorded alongside one tag.
type TagEmotionAssociation struct {
	TagID         string   `json:"tagId"`
	TagType       TagKind  `json:"tagType"`
	Frequency     int      `json:"frequency"`
	TopEmotionIDs []string `json:"topEmotionIds"`
}

// AggregatedData is the frozen summary embedded in a periodic review.
type AggregatedData struct {
	PeriodStartDate        string                  `json:"periodStartDate"`
	PeriodEndDate          string                  `json:"periodEndDate"`
	JournalEntryIDs        []string                `json:"journalEntryIds"`
	EmotionLogIDs          []string                `json:"emotionLogIds"`
	EmotionFrequency       []EmotionCount          `json:"emotionFrequency"`
	TagEmotionAssociations []TagEmotionAssociation `json:"tagEmotionAssociations"`
}

type tagKey struct {
	id   string
	kind TagKind
}

type tagTally struct {
	key        tagKey
	records    int
	withMoods  bool
	coEmotions *counter
}

// Aggregate summarises the journal entries and mood logs created within period.
// Entries are read before mood logs, and ties in every ranking keep encounter order.
func Aggregate(entries, moodLogs []Record, period Range) AggregatedData {
	data := AggregatedData{
		PeriodStartDate:        period.Start.Format(DateLayout),
		PeriodEndDate:          period.End.Format(DateLayout),
		JournalEntryIDs:        []string{},
		EmotionLogIDs:          []string{},
		EmotionFrequency:       []EmotionCount{},
		TagEmotionAssociations: []TagEmotionAssociation{},
	}

	emotions := newCounter()
	tallies := make(map[tagKey]*tagTally)
	order := make([]*tagTally, 0)

	visit := func(record Record) {
		for _, emotionID := range record.EmotionIDs {
			emotions.add(emotionID)
		}
		hasMoods := len(record.EmotionIDs) > 0
		seen := make(map[tagKey]bool)
		for _, key := range recordTags(record) {
			if seen[key] {
				continue
			}
			seen[key] = true

			tally, ok := tallies[key]
			if !ok {
				tally = &tagTally{key: key, coEmotions: newCounter()}
				tallies[key] = tally
				order = append(order, tally)
			}
			tally.records++
			if hasMoods {
				tally.withMoods = true
				for _, emotionID := range record.EmotionIDs {
					tally.coEmotions.add(emotionID)
				}
			}
		}
	}

	for _, entry := range entries {
		if period.Contains(entry.CreatedAt) {
			data.JournalEntryIDs = append(data.JournalEntryIDs, entry.ID)
			visit(entry)
		}
	}
	for _, moodLog := range moodLogs {
		if period.Contains(moodLog.CreatedAt) {
			data.EmotionLogIDs = append(data.EmotionLogIDs, moodLog.ID)
			visit(moodLog)
		}
	}

	for _, ranked := range emotions.ranked() {
		data.EmotionFrequency = append(data.EmotionFrequency, EmotionCount{EmotionID: ranked.key, Count: ranked.count})
	}

	for _, tally := range order {
		if !tally.withMoods {
			continue
		}
		top := make([]string, 0, topEmotionLimit)
		for _, ranked := range tally.coEmotions.ranked() {
			if len(top) == topEmotionLimit {
				break
			}
			top = append(top, ranked.key)
		}
		data.TagEmotionAssociations = append(data.TagEmotionAssociations, TagEmotionAssociation{
			TagID:         tally.key.id,
			TagType:       tally.key.kind,
			Frequency:     tally.records,
			TopEmotionIDs: top,
		})
	}
	sort.SliceStable(data.TagEmotionAssociations, func(i, j int) bool {
		return data.TagEmotionAssociations[i].Frequency > data.TagEmotionAssociations[j].Frequency
	})
	return data
}

func recordTags(record Record) []tagKey {
	keys := make([]tagKey, 0, len(record.PeopleTagIDs)+len(record.ContextTagIDs))
	for _, id := range record.PeopleTagIDs {
		keys = append(keys, tagKey{id: id, kind: TagKindPeople})
	}
	for _, id := range record.ContextTagIDs {
		keys = append(keys, tagKey{id: id, kind: TagKindContext})
	}
	return keys
}

// counter counts keys and remembers the order in which they were first seen.
type counter struct {
	counts map[string]int
	order  []string
}

type rankedKey struct {
	key   string
	count int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) ranked() []rankedKey {
	ranked := make([]rankedKey, 0, len(c.order))
	for _, key := range c.order {
		ranked = append(ranked, rankedKey{key: key, count: c.counts[key]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].count > ranked[j].count
	})
	return ranked
}
