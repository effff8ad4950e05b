// Package slackbot posts farmer insights and maintenance summaries to a
// Slack channel.
package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"mkulima/internal/domain"
	"mkulima/internal/httpx"
)

// Slack rejects section text longer than 3000 characters.
const maxSectionText = 3000

type Sharer struct {
	api       *slack.Client
	channelID string
}

func NewSharer(token, channelID string, opts ...slack.Option) *Sharer {
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return &Sharer{api: slack.New(token, opts...), channelID: channelID}
}

// ShareInsight posts the insight with a summary of the prediction it was
// generated from and returns the message timestamp.
func (s *Sharer) ShareInsight(ctx context.Context, snap domain.Snapshot, insight string) (string, error) {
	if snap.Latest == nil || snap.ProfitAnalysis == nil {
		return "", fmt.Errorf("nothing to share: prediction and profit analysis are required")
	}
	blocks := BuildInsightBlocks(snap, insight, time.Now())
	fallback := fmt.Sprintf("Mkulima insight: %s in %s", snap.ProfitAnalysis.Crop, snap.Latest.County)

	_, ts, err := s.api.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(fallback, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		log.Printf("slack share error channel=%s: %v", s.channelID, err)
		return "", fmt.Errorf("post insight to slack: %w", err)
	}
	log.Printf("slack share posted channel=%s ts=%s county=%s crop=%s", s.channelID, ts, snap.Latest.County, snap.ProfitAnalysis.Crop)
	return ts, nil
}

// PostText posts a plain message, used for maintenance summaries.
func (s *Sharer) PostText(ctx context.Context, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack post error channel=%s: %v", s.channelID, err)
		return err
	}
	return nil
}

func BuildInsightBlocks(snap domain.Snapshot, insight string, at time.Time) []slack.Block {
	latest, analysis := snap.Latest, snap.ProfitAnalysis

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType,
				fmt.Sprintf("%s in %s", titleCase(analysis.Crop), latest.County), false, false),
		),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Farm size*\n%g acres", latest.FarmSize), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Predicted yield*\n%g t/acre", analysis.PredictedYield), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Estimated profit*\nKES %.2f", analysis.Profit.TotalProfit), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Profit margin*\n%.2f%%", analysis.ProfitMargin), false, false),
		}, nil),
		slack.NewDividerBlock(),
	}
	for _, chunk := range splitText(strings.TrimSpace(insight), maxSectionText) {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, chunk, false, false), nil, nil,
		))
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, "Shared from Mkulima on "+at.Format("Jan 2, 2006"), false, false),
	))
	return blocks
}

// splitText cuts text into chunks of at most limit bytes, preferring line
// breaks.
func splitText(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
