package action

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyConfirmer prompts on the terminal using the survey library.
type SurveyConfirmer struct {
	interactive bool
}

func NewSurveyConfirmer(interactive bool) *SurveyConfirmer {
	return &SurveyConfirmer{interactive: interactive}
}

func (s *SurveyConfirmer) Confirm(message string) (bool, error) {
	if !s.interactive {
		return false, fmt.Errorf("cannot prompt in non-interactive mode")
	}
	var approved bool
	prompt := &survey.Confirm{
		Message: message + "?",
		Default: false,
	}
	if err := survey.AskOne(prompt, &approved); err != nil {
		return false, err
	}
	return approved, nil
}

// SelectOne prompts for one value out of a fixed option set.
func SelectOne(message string, options []string) (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: message,
		Options: options,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return choice, nil
}
