package scanner

import (
	"reflect"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
)

func testEntity(name string) common.Entity {
	return common.Entity{
		ID:            common.EntityID(name),
		Namespace:     "test",
		CanonicalName: common.CanonicalName(name),
		DisplayName:   name,
	}
}

func testCatalog(names ...string) *Catalog {
	entities := make([]common.Entity, 0, len(names))
	for _, n := range names {
		entities = append(entities, testEntity(n))
	}
	return NewCatalog(DefaultConfig(), entities, nil)
}

func TestScanExactMentions(t *testing.T) {
	cases := []struct {
		name    string
		catalog []string
		self    string
		text    string
		wantIDs []string
	}{
		{
			name:    "simple mention",
			catalog: []string{"Redis", "Postgres"},
			self:    "api_gateway",
			text:    "The gateway caches sessions in Redis.",
			wantIDs: []string{"redis"},
		},
		{
			name:    "case insensitive",
			catalog: []string{"Redis"},
			self:    "api_gateway",
			text:    "Uses REDIS and redis interchangeably.",
			wantIDs: []string{"redis"},
		},
		{
			name:    "whole word only",
			catalog: []string{"Redis"},
			self:    "api_gateway",
			text:    "The redistribution module is unrelated.",
			wantIDs: []string{},
		},
		{
			name:    "self excluded",
			catalog: []string{"Redis", "Cache Layer"},
			self:    "redis",
			text:    "Redis backs the Cache Layer.",
			wantIDs: []string{"cache_layer"},
		},
		{
			name:    "longest name wins overlap",
			catalog: []string{"Cache", "Cache Layer"},
			self:    "api_gateway",
			text:    "Requests hit the Cache Layer first.",
			wantIDs: []string{"cache_layer"},
		},
		{
			name:    "canonical name with underscores matches spaced form",
			catalog: []string{"Message Broker"},
			self:    "api_gateway",
			text:    "Events flow through the message broker.",
			wantIDs: []string{"message_broker"},
		},
		{
			name:    "naive plural",
			catalog: []string{"Worker"},
			self:    "api_gateway",
			text:    "Three Workers pull from the queue.",
			wantIDs: []string{"worker"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := testCatalog(tc.catalog...)
			result := catalog.Scan(tc.self, tc.text)
			got := MentionedIDs(result.Mentions)
			if len(got) == 0 && len(tc.wantIDs) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.wantIDs) {
				t.Errorf("mentioned ids = %v, want %v", got, tc.wantIDs)
			}
		})
	}
}

func TestScanOffsets(t *testing.T) {
	catalog := testCatalog("Redis")
	text := "Sessions live in Redis now."
	result := catalog.Scan("api_gateway", text)

	if len(result.Mentions) != 1 {
		t.Fatalf("got %d mentions, want 1", len(result.Mentions))
	}
	m := result.Mentions[0]
	if text[m.Start:m.End] != "Redis" {
		t.Errorf("offsets [%d:%d] select %q, want %q", m.Start, m.End, text[m.Start:m.End], "Redis")
	}
	if m.Fuzzy || m.Confidence != 1.0 {
		t.Errorf("exact mention flagged fuzzy=%v confidence=%v", m.Fuzzy, m.Confidence)
	}
}

func TestScanFuzzyMultiWord(t *testing.T) {
	text := "Events go through the Mesage Broker."

	producer := testEntity("Producer")
	producer.Description = text
	consumer := testEntity("Consumer")
	consumer.Description = "Acks flow back to the Mesage Broker."

	// The misspelling repeats across the corpus, so it clears the floor.
	catalog := NewCatalog(DefaultConfig(), []common.Entity{
		testEntity("Message Broker"), testEntity("Redis"), producer, consumer,
	}, nil)
	result := catalog.Scan("producer", text)

	var fuzzy *Mention
	for i := range result.Mentions {
		if result.Mentions[i].Fuzzy {
			fuzzy = &result.Mentions[i]
		}
	}
	if fuzzy == nil {
		t.Fatal("expected a fuzzy mention for misspelled multi-word name")
	}
	if fuzzy.EntityID != "message_broker" {
		t.Errorf("fuzzy entity = %s, want message_broker", fuzzy.EntityID)
	}
	if fuzzy.Confidence >= 1.0 || fuzzy.Confidence < 0.88 {
		t.Errorf("fuzzy confidence = %v, want [0.88, 1.0)", fuzzy.Confidence)
	}
}

func TestScanFuzzyRequiresCorpusRepeat(t *testing.T) {
	text := "Events go through the Mesage Broker."
	producer := testEntity("Producer")
	producer.Description = text

	// One stray occurrence in the whole corpus stays a near-miss.
	once := NewCatalog(DefaultConfig(), []common.Entity{
		testEntity("Message Broker"), producer,
	}, nil)
	for _, m := range once.Scan("producer", text).Mentions {
		if m.Fuzzy {
			t.Errorf("got fuzzy mention %+v from a single corpus occurrence", m)
		}
	}

	// A second occurrence reaches the default floor of two.
	consumer := testEntity("Consumer")
	consumer.Description = "Acks flow back to the Mesage Broker."
	twice := NewCatalog(DefaultConfig(), []common.Entity{
		testEntity("Message Broker"), producer, consumer,
	}, nil)
	var fuzzy bool
	for _, m := range twice.Scan("producer", text).Mentions {
		if m.Fuzzy && m.EntityID == "message_broker" {
			fuzzy = true
		}
	}
	if !fuzzy {
		t.Error("expected a fuzzy mention once the span repeats across the corpus")
	}
}

func TestScanFuzzyDoesNotShadowExact(t *testing.T) {
	catalog := testCatalog("Message Broker")
	result := catalog.Scan("api_gateway", "The Message Broker is a message broker.")

	for _, m := range result.Mentions {
		if m.Fuzzy {
			t.Errorf("got fuzzy mention %+v despite exact matches", m)
		}
	}
}

func TestScanIdempotent(t *testing.T) {
	catalog := testCatalog("Redis", "Message Broker", "Cache Layer")
	text := "The Cache Layer talks to Redis and the Message Broker. GraphQL stays unknown."

	first := catalog.Scan("api_gateway", text)
	second := catalog.Scan("api_gateway", text)
	if !reflect.DeepEqual(first, second) {
		t.Error("scanning the same text twice gave different results")
	}
}

func TestFindCandidates(t *testing.T) {
	cases := []struct {
		name      string
		catalog   []string
		blacklist []string
		text      string
		want      []string
	}{
		{
			name:    "capitalized run",
			catalog: []string{"Redis"},
			text:    "Redis feeds the Billing Engine nightly.",
			want:    []string{"Billing Engine"},
		},
		{
			name:    "acronym",
			catalog: []string{"Redis"},
			text:    "Exposed via GRPC to clients.",
			want:    []string{"GRPC"},
		},
		{
			name:    "sentence start single word skipped",
			catalog: []string{},
			text:    "Sessions are cached. Workers poll the queue.",
			want:    []string{},
		},
		{
			name:    "mid sentence single word kept",
			catalog: []string{},
			text:    "The data lands in Clickhouse eventually.",
			want:    []string{"Clickhouse"},
		},
		{
			name:      "blacklist suppressed",
			catalog:   []string{},
			blacklist: []string{"Clickhouse"},
			text:      "The data lands in Clickhouse eventually.",
			want:      []string{},
		},
		{
			name:    "known names excluded",
			catalog: []string{"Billing Engine"},
			text:    "The Billing Engine runs nightly.",
			want:    []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entities := make([]common.Entity, 0, len(tc.catalog))
			for _, n := range tc.catalog {
				entities = append(entities, testEntity(n))
			}
			var blacklist []common.BlacklistEntry
			for _, n := range tc.blacklist {
				blacklist = append(blacklist, common.BlacklistEntry{Namespace: "test", Name: n})
			}
			catalog := NewCatalog(DefaultConfig(), entities, blacklist)
			got := catalog.Scan("self", tc.text).Candidates
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("candidates = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"message broker", "message broker", 1.0, 1.0},
		{"mesage broker", "message broker", 0.9, 0.99},
		{"queue", "message broker", 0.0, 0.3},
	}
	for _, tc := range cases {
		got := similarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("similarity(%q, %q) = %v, want within [%v, %v]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}
