package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrate/internal/audio/player"
)

var playCmd = &cobra.Command{
	Use:     "play FILE",
	Short:   "Play an MP3 or WAV file",
	Example: paragraph("narrate play media/voiceovers/intro.mp3"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := expandPath(args[0])
		if err := player.Play(cmd.Context(), path); err != nil {
			return fmt.Errorf("unable to play %s: %w", path, err)
		}
		return nil
	},
}
