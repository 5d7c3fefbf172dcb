package exchange

import (
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/sjson"
)

// buildBody renders the chat-completion request. sjson escapes the prompt, so
// quotes and control characters cannot break the document.
func buildBody(model, prompt string, maxTokens int) ([]byte, error) {
	msg, err := sjson.SetBytes([]byte(`{}`), "role", "user")
	if err != nil {
		return nil, err
	}
	if msg, err = sjson.SetBytes(msg, "content", prompt); err != nil {
		return nil, err
	}

	body, err := sjson.SetBytes([]byte(`{}`), "model", model)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetRawBytes(body, "messages", append(append([]byte{'['}, msg...), ']')); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "max_tokens", maxTokens); err != nil {
		return nil, err
	}
	return body, nil
}

// fitBody builds the request body within budget bytes. With truncate set the
// prompt is cut on a rune boundary until the body fits; otherwise an oversized
// body fails with ErrInputOverflow. truncated reports whether the prompt was cut.
func fitBody(model, prompt string, maxTokens, budget int, truncate bool) (body []byte, truncated bool, err error) {
	body, err = buildBody(model, prompt, maxTokens)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	if budget <= 0 || len(body) <= budget {
		return body, false, nil
	}
	if !truncate {
		return nil, false, fmt.Errorf("%w: %d bytes, budget %d", ErrInputOverflow, len(body), budget)
	}

	fits := func(n int) bool {
		b, err := buildBody(model, prompt[:runeFloor(prompt, n)], maxTokens)
		return err == nil && len(b) <= budget
	}
	if !fits(0) {
		return nil, false, fmt.Errorf("%w: empty prompt needs more than %d bytes", ErrInputOverflow, budget)
	}

	lo, hi := 0, len(prompt)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	body, err = buildBody(model, prompt[:runeFloor(prompt, lo)], maxTokens)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	return body, true, nil
}

// runeFloor moves n back to the start of the rune it falls in.
func runeFloor(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
