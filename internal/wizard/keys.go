package wizard

import (
	"context"

	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/model"
)

// imeProcessKeyCode is reported for keystrokes consumed by an input method.
const imeProcessKeyCode = 229

// KeyEvent is a keydown inside the form.
type KeyEvent struct {
	Key       string `json:"key"`
	KeyCode   int    `json:"key_code,omitempty"`
	Composing bool   `json:"composing,omitempty"`
	// Target is the name of the focused input, if any.
	Target string `json:"target,omitempty"`
}

// HandleKey treats Enter and Tab as "continue": Submit on the last step,
// Next otherwise. It reports whether the key was acted on. Keys are ignored
// during IME composition, while the form's popup is hidden, and for Enter
// inside a multi-line field.
func (s *Session) HandleKey(ctx context.Context, ev KeyEvent, popupVisible bool, jar cookies.Jar) (bool, *Outcome, error) {
	if ev.Composing || ev.KeyCode == imeProcessKeyCode {
		return false, nil, nil
	}
	if ev.Key != "Enter" && ev.Key != "Tab" {
		return false, nil, nil
	}
	if !popupVisible {
		return false, nil, nil
	}

	s.mu.Lock()
	multiline := s.fields[ev.Target].Type == model.FieldTextarea
	last := s.current == len(s.form.Steps)-1
	s.mu.Unlock()

	if ev.Key == "Enter" && multiline {
		return false, nil, nil
	}
	if last {
		out, err := s.Submit(ctx, jar)
		return true, out, err
	}
	return true, nil, s.Next(ctx)
}
