package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// completionRequest is the payload for the OpenAI-compatible /v1/completions.
type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stream      bool     `json:"stream"`
}

func newCompletionRequest(model, prompt string, p Params) completionRequest {
	return completionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.effectiveTemperature(),
		TopP:        p.TopP,
		TopK:        p.TopK,
		Stop:        p.Stop,
		Seed:        p.Seed,
		Stream:      true,
	}
}

// streamChoice covers both completion chunks (text) and chat chunks (delta.content).
type streamChoice struct {
	Text  string `json:"text"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type streamResponse struct {
	Object  string         `json:"object"`
	Choices []streamChoice `json:"choices"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// streamCompletion posts req to baseURL and forwards streamed fragments to onToken.
func streamCompletion(ctx context.Context, cli *http.Client, baseURL, apiKey string, req completionRequest, onToken func(string) error, log zerolog.Logger) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := cli.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, ErrDependencyUnavailable("llama server unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, upstreamError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	st := &streamState{onToken: onToken}
	r := bufio.NewReader(resp.Body)
	for {
		line, rerr := r.ReadString('\n')
		done, err := st.handle(strings.TrimSpace(line), log)
		if err != nil {
			return st.result(), err
		}
		if done {
			break
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return st.result(), ctx.Err()
			}
			log.Warn().Err(rerr).Msg("stream read error")
			return st.result(), rerr
		}
	}
	return st.result(), nil
}

// streamState accumulates fragments of one streamed completion.
type streamState struct {
	onToken func(string) error
	sb      strings.Builder
	final   Result
}

func (st *streamState) result() Result {
	r := st.final
	r.Content = st.sb.String()
	return r
}

func (st *streamState) emit(frag string) error {
	if frag == "" {
		return nil
	}
	st.sb.WriteString(frag)
	if st.onToken == nil {
		return nil
	}
	return st.onToken(frag)
}

// handle processes one line; done is true after the [DONE] sentinel.
func (st *streamState) handle(line string, log zerolog.Logger) (done bool, err error) {
	if line == "" || strings.HasPrefix(line, ":") {
		return false, nil
	}
	data := line
	if rest, ok := strings.CutPrefix(line, "data:"); ok {
		data = strings.TrimSpace(rest)
	}
	if data == "[DONE]" {
		return true, nil
	}
	var msg streamResponse
	if err := json.Unmarshal([]byte(data), &msg); err == nil && len(msg.Choices) > 0 {
		c := msg.Choices[0]
		frag := c.Text
		if frag == "" {
			frag = c.Delta.Content
		}
		if err := st.emit(frag); err != nil {
			return false, err
		}
		if c.FinishReason != "" {
			st.final.FinishReason = c.FinishReason
		}
		if msg.Usage != nil {
			st.final.Usage = Usage{
				PromptTokens:     msg.Usage.PromptTokens,
				CompletionTokens: msg.Usage.CompletionTokens,
				TotalTokens:      msg.Usage.TotalTokens,
			}
		}
		return false, nil
	}
	// llama.cpp native /completion streams {"content": "..."} objects.
	var native struct {
		Content string `json:"content"`
		Stop    bool   `json:"stop"`
	}
	if err := json.Unmarshal([]byte(data), &native); err == nil && (native.Content != "" || native.Stop) {
		if err := st.emit(native.Content); err != nil {
			return false, err
		}
		if native.Stop {
			st.final.FinishReason = "stop"
		}
		return false, nil
	}
	log.Debug().Str("line", line).Msg("unknown stream line")
	return false, nil
}
