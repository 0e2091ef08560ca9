package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type commandKind int

const (
	cmdChoose commandKind = iota
	cmdTake
	cmdInventory
	cmdEndings
	cmdNewGame
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	arg  string
}

var errEmptyCommand = errors.New("empty command")

// parseCommand reads one line of player input. A single character picks the
// choice with that label; "take" accepts an item number from the scene
// listing or an item id.
func parseCommand(input string) (command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return command{}, errEmptyCommand
	}

	if strings.HasPrefix(input, "/") {
		switch strings.ToLower(input) {
		case "/inventory", "/i":
			return command{kind: cmdInventory}, nil
		case "/endings", "/e":
			return command{kind: cmdEndings}, nil
		case "/new", "/restart":
			return command{kind: cmdNewGame}, nil
		case "/help", "/h":
			return command{kind: cmdHelp}, nil
		case "/quit", "/q":
			return command{kind: cmdQuit}, nil
		}
		return command{}, fmt.Errorf("unknown command %q", input)
	}

	fields := strings.Fields(input)
	if verb := strings.ToLower(fields[0]); verb == "take" || verb == "get" {
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: take <number>")
		}
		return command{kind: cmdTake, arg: fields[1]}, nil
	}

	if utf8.RuneCountInString(input) == 1 {
		return command{kind: cmdChoose, arg: strings.ToUpper(input)}, nil
	}
	return command{}, fmt.Errorf("type a choice letter, take <number>, or /help")
}

// itemIndex turns a 1-based item number into an index below n.
func itemIndex(arg string, n int) (int, bool) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
