package dedupe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
)

func entity(name, description string) common.Entity {
	return common.Entity{
		ID:            common.EntityID(name),
		Namespace:     "test",
		CanonicalName: common.CanonicalName(name),
		DisplayName:   name,
		Description:   description,
	}
}

func TestFindDuplicates(t *testing.T) {
	cases := []struct {
		name      string
		entities  []common.Entity
		threshold float64
		wantPairs [][2]string
	}{
		{
			name: "near identical descriptions",
			entities: []common.Entity{
				entity("Message Queue", "Buffers events between producers and consumers with at-least-once delivery"),
				entity("Message Queueing", "Buffers events between producers and consumers with at-least-once delivery"),
				entity("Billing", "Charges customers monthly based on usage records"),
			},
			threshold: 0.8,
			wantPairs: [][2]string{{"message_queue", "message_queueing"}},
		},
		{
			name: "unrelated entities produce nothing",
			entities: []common.Entity{
				entity("Redis", "In-memory key value store used for session caching"),
				entity("Billing", "Charges customers monthly based on usage records"),
			},
			threshold: 0.5,
			wantPairs: nil,
		},
		{
			name: "same description different names still scores",
			entities: []common.Entity{
				entity("Auth Service", "Validates credentials and issues signed tokens for API access"),
				entity("Login Service", "Validates credentials and issues signed tokens for API access"),
			},
			threshold: 0.6,
			wantPairs: [][2]string{{"auth_service", "login_service"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := New(tc.threshold)
			got, err := d.FindDuplicates(context.Background(), tc.entities)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.wantPairs) {
				t.Fatalf("got %d candidates %+v, want %d", len(got), got, len(tc.wantPairs))
			}
			for i, want := range tc.wantPairs {
				if got[i].EntityA != want[0] || got[i].EntityB != want[1] {
					t.Errorf("candidate %d = (%s, %s), want (%s, %s)", i, got[i].EntityA, got[i].EntityB, want[0], want[1])
				}
			}
		})
	}
}

func TestFindDuplicatesSymmetric(t *testing.T) {
	a := entity("Message Queue", "Buffers events between producers and consumers")
	b := entity("Message Queueing", "Buffers events between producers and consumers")
	d := New(0.6)

	forward, err := d.FindDuplicates(context.Background(), []common.Entity{a, b})
	if err != nil {
		t.Fatal(err)
	}
	reverse, err := d.FindDuplicates(context.Background(), []common.Entity{b, a})
	if err != nil {
		t.Fatal(err)
	}
	if len(forward) != 1 || len(reverse) != 1 {
		t.Fatalf("got %d and %d candidates, want 1 each", len(forward), len(reverse))
	}
	if forward[0] != reverse[0] {
		t.Errorf("order changed the result: %+v vs %+v", forward[0], reverse[0])
	}
	if forward[0].EntityA >= forward[0].EntityB {
		t.Errorf("pair not ordered: %+v", forward[0])
	}
}

func TestFindDuplicatesCancellation(t *testing.T) {
	var entities []common.Entity
	for _, name := range []string{"One", "Two", "Three", "Four"} {
		entities = append(entities, entity(name+" Service", "Shared description so every pair is blocked and scored"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(0.5)
	_, err := d.FindDuplicates(ctx, entities)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got err %v, want context.Canceled", err)
	}
}

func TestScoreBlendsNameAndDescription(t *testing.T) {
	d := New(0)

	same := d.Score(
		entity("Cache", "Stores hot values in memory"),
		entity("Cache", "Stores hot values in memory"),
	)
	if same != 1.0 {
		t.Errorf("identical entities score %v, want 1.0", same)
	}

	nameOnly := d.Score(
		entity("Cache Layer", "Stores hot values in memory"),
		entity("Cache Layers", strings.Repeat("different description entirely about billing invoices ", 1)),
	)
	if nameOnly >= same || nameOnly <= 0 {
		t.Errorf("name-only similarity %v out of range (0, 1)", nameOnly)
	}
}
