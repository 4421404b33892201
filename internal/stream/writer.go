package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

type outChunk struct {
	Choices []outChoice `json:"choices"`
}

type outChoice struct {
	Delta outDelta `json:"delta"`
}

type outDelta struct {
	Content string `json:"content"`
}

// WriteDelta writes content as one chat-completion chunk event.
func WriteDelta(w io.Writer, content string) error {
	data, err := json.Marshal(outChunk{Choices: []outChoice{{Delta: outDelta{Content: content}}}})
	if err != nil {
		return fmt.Errorf("stream: marshal delta: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteDone writes the terminating sentinel event.
func WriteDone(w io.Writer) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", sentinel)
	return err
}

// WriteError writes a named error event. Decoders skip it as it carries no
// delta.
func WriteError(w io.Writer, message string) error {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return fmt.Errorf("stream: marshal error: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	return err
}
