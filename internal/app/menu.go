package app

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const DefaultTerminalWidth = 120

type StartChoice string

const (
	ChoiceDataset  StartChoice = "Dataset"
	ChoiceUpload   StartChoice = "Upload"
	ChoiceTrain    StartChoice = "Train"
	ChoicePredict  StartChoice = "Predict"
	ChoiceGallery  StartChoice = "Gallery"
	ChoiceModels   StartChoice = "Models"
	ChoiceHistory  StartChoice = "History"
	ChoiceSettings StartChoice = "Settings"
	ChoiceQuit     StartChoice = "Exit"
)

func StartMenuItems() []string {
	items := StartMenuConfig().Items
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value)
	}
	return out
}

var startupTips = []string{
	"Tip: upload a few images per label before training.",
	"Tip: `visionctl train --all` trains on every uploaded label.",
	"Tip: press q any time to return or quit.",
	"Tip: use j/k if arrow keys are awkward in your terminal.",
	"Tip: set VISIONCTL_API_BASE_URL to target another service.",
	"Tip: `visionctl history` lists every prediction you reviewed.",
}

func StartupTips() []string {
	out := make([]string, len(startupTips))
	copy(out, startupTips)
	return out
}

// StartupTip returns the tip for index, wrapping around.
func StartupTip(index int) string {
	if index < 0 {
		index = 0
	}
	return startupTips[index%len(startupTips)]
}

// StartMenuConfig returns the home screen menu.
func StartMenuConfig() MenuConfig {
	item := func(choice StartChoice, desc string) MenuItem {
		return MenuItem{Label: string(choice), Description: desc, Value: string(choice)}
	}
	return MenuConfig{
		Title: "visionctl",
		Intro: []string{"Loading dataset...", StartupTip(0)},
		Items: []MenuItem{
			item(ChoiceDataset, "Reload uploaded data, training data and models"),
			item(ChoiceUpload, "Upload a labeled image"),
			item(ChoiceTrain, "Train a model on uploaded labels"),
			item(ChoicePredict, "Classify an image and compare with training data"),
			item(ChoiceGallery, "Browse the images of a label"),
			item(ChoiceModels, "Search and filter trained models"),
			item(ChoiceHistory, "Review past predictions"),
			item(ChoiceSettings, "Show effective configuration"),
			item(ChoiceQuit, "Exit visionctl"),
		},
		Controls: "up/down or j/k move · enter select · esc/q quit",
	}
}

func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if raw := strings.TrimSpace(os.Getenv("COLUMNS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultTerminalWidth
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
