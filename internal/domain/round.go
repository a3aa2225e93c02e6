package domain

import (
	"strings"
)

// Choice 是一次出拳的符号。
type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
)

// Choices 列出全部合法符号，顺序固定。
var Choices = []Choice{Rock, Paper, Scissors}

// beats[x] 是 x 能击败的符号
var beats = map[Choice]Choice{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Valid 判断符号是否属于 {rock, paper, scissors}。
func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

// ParseChoice 解析客户端提交的符号 (忽略大小写和首尾空白)。
func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrInvalidChoice
	}
	return c, nil
}

// Outcome 是单回合的裁决结果，以第一个参数的视角表示。
type Outcome string

const (
	Draw       Outcome = "draw"
	FirstWins  Outcome = "firstWins"
	SecondWins Outcome = "secondWins"
)

// Resolve 裁决一对同时出拳。纯函数，没有任何状态，单人模式也可直接复用。
// 调用方需保证两个符号都合法；非法符号按平局处理。
func Resolve(a, b Choice) Outcome {
	if a == b || !a.Valid() || !b.Valid() {
		return Draw
	}
	if beats[a] == b {
		return FirstWins
	}
	return SecondWins
}
