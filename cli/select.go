package cli

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

var ErrNoChoices = errors.New("nothing to choose from")

// Select lets the user pick one of choices. Typing filters the list by
// case-insensitive prefix.
func Select(label string, choices ...string) (string, error) {
	if len(choices) == 0 {
		return "", ErrNoChoices
	}

	sel := &promptui.Select{
		Label:    label,
		Items:    choices,
		Searcher: prefixSearcher(choices),
	}

	_, value, err := sel.Run()
	if err != nil {
		return "", err
	}

	return value, nil
}

func prefixSearcher(choices []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if len(input) == 0 {
			return true
		}

		return strings.HasPrefix(strings.ToLower(choices[index]), strings.ToLower(input))
	}
}
