// Package gamble предоставляет функции для работы с вероятностями и случайными выборами
package gamble

import (
	"crypto/rand"
	"math/big"
)

// Rarity представляет редкость выпадающего персонажа
type Rarity string

const (
	Common    Rarity = "common"
	Rare      Rarity = "rare"
	Legendary Rarity = "legendary"
)

// RollRarity генерирует случайную редкость на основе вероятностей:
// - Common: 0-79 (80% шанс)
// - Rare: 80-94 (15% шанс)
// - Legendary: 95-100 (5% шанс)
func RollRarity() Rarity {
	// Генерируем криптографически безопасное случайное число от 0 до 100
	max := big.NewInt(101) // 0-100 включительно
	randomBig, err := rand.Int(rand.Reader, max)
	if err != nil {
		// В случае ошибки возвращаем common как fallback
		return Common
	}

	randomNum := int(randomBig.Int64())

	// Определяем редкость по диапазонам
	switch {
	case randomNum <= 79:
		return Common
	case randomNum <= 94:
		return Rare
	default:
		return Legendary
	}
}

// RandomInt генерирует случайное число от 0 до n-1
func RandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	randomBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0 // fallback
	}
	return int(randomBig.Int64())
}

// Shuffle перемешивает слайс с использованием crypto/rand
func Shuffle[T any](items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := RandomInt(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
