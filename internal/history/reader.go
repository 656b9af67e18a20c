// Package history reads session transcripts for resume/fork backfill. The
// reader is strictly read-only; it reconstructs the same message shapes the
// live event stream delivers so both feed one accumulation path.
package history

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/beacon/pkg/models"
)

// maxLineSize bounds one transcript line. Tool results with large file dumps
// routinely exceed bufio's default.
const maxLineSize = 10 * 1024 * 1024

// Reader parses transcript JSONL files. When a replayed assistant message
// carries no usage block (old transcripts predate usage reporting), the
// reader estimates token counts with a cl100k tokenizer so accumulated
// totals stay roughly honest.
type Reader struct {
	codec tokenizer.Codec
}

// NewReader builds a Reader. Tokenizer initialization failure only disables
// estimation.
func NewReader() *Reader {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, token estimation disabled")
		codec = nil
	}
	return &Reader{codec: codec}
}

// transcriptLine is the per-line envelope of a transcript file.
type transcriptLine struct {
	Type        string            `json:"type"`
	IsSidechain bool              `json:"isSidechain"`
	Timestamp   string            `json:"timestamp"`
	Message     transcriptMessage `json:"message"`
}

type transcriptMessage struct {
	Role    string           `json:"role"`
	Model   string           `json:"model"`
	Content json.RawMessage  `json:"content"`
	Usage   *transcriptUsage `json:"usage"`
}

type transcriptUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// transcriptBlock is one content block. The shape is a union keyed by Type:
// text, thinking, tool_use, tool_result, image.
type transcriptBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	Source    *struct {
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source"`
}

// Messages returns the session's message history in transcript order, one
// record per logical turn. A tool-using assistant turn is written to the
// transcript as several assistant entries interleaved with tool-result user
// entries; consecutive assistant entries are merged back into a single
// assistant message, and the tool results are attached to it in call order.
// Only a user text entry starts a new turn. Sidechain entries are skipped.
func (r *Reader) Messages(ctx context.Context, transcriptPath string) ([]models.HistoryMessage, error) {
	file, err := os.Open(transcriptPath)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		messages  []models.HistoryMessage
		callNames = map[string]string{} // tool_use id -> tool name
	)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry transcriptLine
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Debug().Err(err).Msg("Skipping unparseable transcript line")
			continue
		}
		if entry.IsSidechain || (entry.Type != "user" && entry.Type != "assistant") {
			continue
		}

		blocks, err := decodeContent(entry.Message.Content)
		if err != nil {
			log.Debug().Err(err).Msg("Skipping transcript entry with bad content")
			continue
		}

		switch entry.Type {
		case "assistant":
			msg := models.HistoryMessage{
				Role:      models.RoleAssistant,
				Model:     entry.Message.Model,
				CreatedAt: parseTimestamp(entry.Timestamp),
			}
			for _, b := range blocks {
				switch b.Type {
				case "text":
					msg.Parts = append(msg.Parts, models.TextContent{Text: b.Text})
				case "thinking":
					msg.Parts = append(msg.Parts, models.ThinkingContent{Text: b.Thinking})
				case "tool_use":
					callNames[b.ID] = b.Name
					msg.Parts = append(msg.Parts, models.ToolCallContent{ID: b.ID, Name: b.Name, Arguments: b.Input})
				case "image":
					if b.Source != nil {
						msg.Parts = append(msg.Parts, models.ImageContent{Data: b.Source.Data, MimeType: b.Source.MediaType})
					}
				}
			}
			if entry.Message.Usage != nil {
				msg.Usage.PromptTokens = entry.Message.Usage.InputTokens
				msg.Usage.CompletionTokens = entry.Message.Usage.OutputTokens
			}
			if msg.Usage.IsZero() {
				msg.Usage.CompletionTokens = r.estimate(extractPlain(msg.Parts))
			}
			if i := lastAssistant(messages); i == len(messages)-1 && i >= 0 {
				// Continuation of the current turn: the host stopped to run
				// tools and resumed in a fresh transcript entry.
				mergeTurn(&messages[i], msg)
			} else {
				messages = append(messages, msg)
			}

		case "user":
			var parts models.PartList
			for _, b := range blocks {
				switch b.Type {
				case "text":
					parts = append(parts, models.TextContent{Text: b.Text})
				case "tool_result":
					result := models.ToolResultContent{
						ToolName: callNames[b.ToolUseID],
						Content:  decodeResultContent(b.Content),
					}
					if i := lastAssistant(messages); i >= 0 {
						messages[i].ToolResults = append(messages[i].ToolResults, result)
					}
				}
			}
			if len(parts) > 0 {
				messages = append(messages, models.HistoryMessage{
					Role:      models.RoleUser,
					Parts:     parts,
					CreatedAt: parseTimestamp(entry.Timestamp),
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return messages, nil
}

// LastTurn returns the transcript's final assistant turn — all of its entries
// merged, with attached tool results. ok is false when the transcript holds
// none.
func (r *Reader) LastTurn(ctx context.Context, transcriptPath string) (models.HistoryMessage, bool, error) {
	messages, err := r.Messages(ctx, transcriptPath)
	if err != nil {
		return models.HistoryMessage{}, false, err
	}
	if i := lastAssistant(messages); i >= 0 {
		return messages[i], true, nil
	}
	return models.HistoryMessage{}, false, nil
}

// estimate counts tokens in text, or approximates by length when no
// tokenizer is available.
func (r *Reader) estimate(text string) int64 {
	if text == "" {
		return 0
	}
	if r.codec != nil {
		if n, err := r.codec.Count(text); err == nil {
			return int64(n)
		}
	}
	return int64(len(text) / 4)
}

// decodeContent accepts both content shapes: a bare string (early user
// entries) or a block array.
func decodeContent(raw json.RawMessage) ([]transcriptBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return []transcriptBlock{{Type: "text", Text: plain}}, nil
	}
	var blocks []transcriptBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// decodeResultContent flattens a tool_result's content (string or block
// array) into text/image parts.
func decodeResultContent(raw json.RawMessage) models.PartList {
	if len(raw) == 0 {
		return nil
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return models.PartList{models.TextContent{Text: plain}}
	}
	var blocks []transcriptBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	var parts models.PartList
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, models.TextContent{Text: b.Text})
		case "image":
			if b.Source != nil {
				parts = append(parts, models.ImageContent{Data: b.Source.Data, MimeType: b.Source.MediaType})
			}
		}
	}
	return parts
}

func extractPlain(parts models.PartList) string {
	var out string
	for _, p := range parts {
		switch v := p.(type) {
		case models.TextContent:
			out += v.Text
		case models.ThinkingContent:
			out += v.Text
		}
	}
	return out
}

// mergeTurn folds a continuation entry into the turn it belongs to. The turn
// keeps its starting timestamp; usage sums across entries.
func mergeTurn(turn *models.HistoryMessage, next models.HistoryMessage) {
	turn.Parts = append(turn.Parts, next.Parts...)
	turn.Usage.PromptTokens += next.Usage.PromptTokens
	turn.Usage.CompletionTokens += next.Usage.CompletionTokens
	if next.Model != "" {
		turn.Model = next.Model
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = next.CreatedAt
	}
}

func lastAssistant(messages []models.HistoryMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return i
		}
	}
	return -1
}

func parseTimestamp(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
