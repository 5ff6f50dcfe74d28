package main

import (
	"encoding/base64"
	"fmt"
	"os"
)

// stepBar prints a single-line, carriage-return-updated progress indicator,
// the CLI-side equivalent of this codebase's progress.StepBar for a
// process with no terminal-graphics dependency of its own.
type stepBar struct {
	started bool
}

func newStepBar() *stepBar {
	return &stepBar{}
}

func (b *stepBar) set(step, total int) {
	b.started = true
	fmt.Printf("\rGenerating: step %d/%d", step, total)
}

func (b *stepBar) done() {
	if b.started {
		fmt.Println()
	}
}

// displayImageInTerminal attempts to render an image inline using the
// iTerm2/WezTerm or Kitty/Ghostty graphics protocols, mirroring this
// codebase's terminal image display convention. Returns false silently
// when the surrounding terminal doesn't advertise support.
func displayImageInTerminal(imagePath string) bool {
	termProgram := os.Getenv("TERM_PROGRAM")
	kittyWindowID := os.Getenv("KITTY_WINDOW_ID")
	weztermPane := os.Getenv("WEZTERM_PANE")
	ghostty := os.Getenv("GHOSTTY_RESOURCES_DIR")

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return false
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	switch {
	case termProgram == "iTerm.app" || termProgram == "WezTerm" || weztermPane != "":
		fmt.Printf("\033]1337;File=inline=1;preserveAspectRatio=1:%s\a\n", encoded)
		return true

	case kittyWindowID != "" || ghostty != "" || termProgram == "ghostty":
		const chunkSize = 4096
		for i := 0; i < len(encoded); i += chunkSize {
			end := i + chunkSize
			if end > len(encoded) {
				end = len(encoded)
			}
			chunk := encoded[i:end]
			switch {
			case i == 0 && end >= len(encoded):
				fmt.Printf("\033_Ga=T,f=100,m=0;%s\033\\", chunk)
			case i == 0:
				fmt.Printf("\033_Ga=T,f=100,m=1;%s\033\\", chunk)
			case end >= len(encoded):
				fmt.Printf("\033_Gm=0;%s\033\\", chunk)
			default:
				fmt.Printf("\033_Gm=1;%s\033\\", chunk)
			}
		}
		fmt.Println()
		return true

	default:
		return false
	}
}
