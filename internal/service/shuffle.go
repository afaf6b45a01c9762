package service

import (
	"math/rand/v2"
	"oabt_client/internal/model"
)

// Rand 洗牌用的随机源，测试里注入固定种子
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Shuffle 原地 Fisher–Yates，每种排列等概率
func Shuffle[T any](r Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// shuffleQuestions 返回打乱后的副本：题目顺序和每题的选项顺序各自独立打乱
func shuffleQuestions(r Rand, src []model.Question) []model.Question {
	out := make([]model.Question, len(src))
	for i, q := range src {
		out[i] = q.Clone()
		Shuffle(r, out[i].Options)
	}
	Shuffle(r, out)
	return out
}
