package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultSound is the chime used when a message carries no sound hint.
const DefaultSound = "Glass"

// Sound plays an audible cue only. No text is shown, so it sits near the
// bottom of the chain, just above the log fallback.
type Sound struct {
	path string
}

func NewSound() *Sound {
	path, err := exec.LookPath("afplay")
	if err != nil {
		return &Sound{}
	}
	return &Sound{path: path}
}

func (s *Sound) Name() string { return "sound" }

func (s *Sound) Available() bool { return s.path != "" }

func (s *Sound) Send(ctx context.Context, msg Message) error {
	if s.path == "" {
		return fmt.Errorf("afplay not installed")
	}
	name := msg.Sound
	if name == "" || strings.ContainsAny(name, `/\.`) {
		name = DefaultSound
	}
	file := fmt.Sprintf("/System/Library/Sounds/%s.aiff", name)
	cmd := exec.CommandContext(ctx, s.path, file)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("afplay: %w", err)
	}
	return nil
}
