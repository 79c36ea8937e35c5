package dexscan

import (
	"math"
	"unicode/utf8"
)

// stringEntropy 字符分布熵 E(S) = -Σ p(c)·log(p(c))
// p(c) 由串内字符计数估计
func stringEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log(p)
	}
	return entropy
}

// normalizedEntropy 以 log(|S|) 归一化到 [0,1]
// 空串为 0，单字符串为 1（单字符串的最大熵即自身）
func normalizedEntropy(s string) float64 {
	length := utf8.RuneCountInString(s)
	switch length {
	case 0:
		return 0
	case 1:
		return 1
	default:
		return stringEntropy(s) / math.Log(float64(length))
	}
}
