package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"mkulima/internal/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Latest: &domain.PredictionRecord{County: "Bungoma", FarmSize: 3},
		ProfitAnalysis: &domain.ProfitAnalysis{
			Crop:           "beans",
			PredictedYield: 0.49,
			Profit:         domain.ProfitBreakdown{TotalProfit: 105000},
			ProfitMargin:   71.43,
		},
	}
}

func newMockSlack(t *testing.T) (*Sharer, *[]map[string]string) {
	t.Helper()
	var posts []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		switch path {
		case "chat.postMessage":
			_ = r.ParseForm()
			posts = append(posts, map[string]string{
				"channel": r.Form.Get("channel"),
				"text":    r.Form.Get("text"),
				"blocks":  r.Form.Get("blocks"),
			})
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C_FARM", "ts": "1700000000.000100"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return NewSharer("xoxb-test", "C_FARM", slack.OptionAPIURL(server.URL+"/api/")), &posts
}

func TestShareInsightPostsBlocks(t *testing.T) {
	sharer, posts := newMockSlack(t)

	ts, err := sharer.ShareInsight(context.Background(), sampleSnapshot(), "1. Expected Yield and Profitability\nGood.")
	if err != nil {
		t.Fatalf("ShareInsight returned error: %v", err)
	}
	if ts != "1700000000.000100" {
		t.Fatalf("unexpected ts: %q", ts)
	}
	if len(*posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(*posts))
	}
	post := (*posts)[0]
	if post["channel"] != "C_FARM" || post["text"] != "Mkulima insight: beans in Bungoma" {
		t.Fatalf("unexpected post: %+v", post)
	}
	for _, want := range []string{"Beans in Bungoma", "KES 105000.00", "71.43%", "Expected Yield and Profitability"} {
		if !strings.Contains(post["blocks"], want) {
			t.Errorf("blocks missing %q: %s", want, post["blocks"])
		}
	}
}

func TestShareInsightRequiresAnalysis(t *testing.T) {
	sharer, posts := newMockSlack(t)
	snap := sampleSnapshot()
	snap.ProfitAnalysis = nil
	if _, err := sharer.ShareInsight(context.Background(), snap, "text"); err == nil {
		t.Fatal("expected error without profit analysis")
	}
	if len(*posts) != 0 {
		t.Fatal("nothing should be posted")
	}
}

func TestPostText(t *testing.T) {
	sharer, posts := newMockSlack(t)
	if err := sharer.PostText(context.Background(), "Maintenance complete"); err != nil {
		t.Fatalf("PostText: %v", err)
	}
	if (*posts)[0]["text"] != "Maintenance complete" {
		t.Fatalf("unexpected post: %+v", (*posts)[0])
	}
}

func TestBuildInsightBlocksSplitsLongInsight(t *testing.T) {
	long := strings.Repeat("Rotate maize with beans.\n", 300)
	blocks := BuildInsightBlocks(sampleSnapshot(), long, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	sections := 0
	for _, b := range blocks {
		if sb, ok := b.(*slack.SectionBlock); ok && sb.Text != nil {
			sections++
			if len(sb.Text.Text) > maxSectionText {
				t.Fatalf("section too long: %d", len(sb.Text.Text))
			}
		}
	}
	if sections < 3 {
		t.Fatalf("expected insight split into several sections, got %d", sections)
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("", 10); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
	got := splitText("abcdefghijkl", 5)
	if len(got) != 3 || got[0] != "abcde" || got[2] != "kl" {
		t.Fatalf("unexpected chunks: %q", got)
	}
	got = splitText("one\ntwo three", 8)
	if got[0] != "one" {
		t.Fatalf("expected split at newline, got %q", got)
	}
}
