package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding that governs all token budgets.
// Every reported token count in the index is measured with it.
const DefaultEncoding = "cl100k_base"

// Counter counts BPE tokens with a tiktoken encoding. The encoding is
// built once on first use and shared for the process lifetime.
type Counter struct {
	encoding string
	once     sync.Once
	tke      *tiktoken.Tiktoken
	initErr  error
}

// NewCounter returns a counter for the given encoding name, or for
// DefaultEncoding when name is empty. The encoding itself is not loaded
// until the first Count call.
func NewCounter(name string) *Counter {
	if name == "" {
		name = DefaultEncoding
	}
	return &Counter{encoding: name}
}

func (c *Counter) init() {
	c.tke, c.initErr = tiktoken.GetEncoding(c.encoding)
	if c.initErr != nil {
		c.initErr = fmt.Errorf("load encoding %q: %w", c.encoding, c.initErr)
	}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) (int, error) {
	c.once.Do(c.init)
	if c.initErr != nil {
		return 0, c.initErr
	}
	return len(c.tke.Encode(text, nil, nil)), nil
}

// Encoding returns the name of the governing encoding.
func (c *Counter) Encoding() string { return c.encoding }
