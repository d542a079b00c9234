// Package command classifies free-form chat text into game commands. The
// classification is context-free: a bare integer is resolved into a pass
// target or a duel answer by whichever session is active downstream.
package command

import (
	"strconv"
	"strings"
)

// Kind tags a parsed command.
type Kind int

const (
	Noise Kind = iota
	Join
	Number
	StartDuel
	StartElimination
)

func (k Kind) String() string {
	switch k {
	case Join:
		return "join"
	case Number:
		return "number"
	case StartDuel:
		return "start-duel"
	case StartElimination:
		return "start-elimination"
	default:
		return "noise"
	}
}

// Command is the result of classifying one message.
type Command struct {
	Kind  Kind
	Value int // set for Number
}

// Join synonyms, including the localized forms viewers actually type.
var joinWords = map[string]bool{
	"join":   true,
	"play":   true,
	"jugar":  true,
	"unirme": true,
	"unirse": true,
}

var duelWords = map[string]bool{
	"duel":  true,
	"duelo": true,
}

var eliminationWords = map[string]bool{
	"bomb":  true,
	"bomba": true,
}

// Parse classifies text case-insensitively, tolerating an optional leading
// "!" and surrounding whitespace. Anything unrecognized is Noise.
func Parse(text string) Command {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimPrefix(t, "!")
	if t == "" {
		return Command{Kind: Noise}
	}

	if joinWords[t] {
		return Command{Kind: Join}
	}
	if duelWords[t] {
		return Command{Kind: StartDuel}
	}
	if eliminationWords[t] {
		return Command{Kind: StartElimination}
	}
	if n, err := strconv.Atoi(t); err == nil && n >= 0 {
		return Command{Kind: Number, Value: n}
	}
	return Command{Kind: Noise}
}
