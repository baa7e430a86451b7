package models

import (
	"fmt"
	"strings"
	"time"

	"tg-collector-bot/gamble"
)

// Rarity представляет каноничный числовой тир редкости персонажа.
// Исходные данные бывают числом, строкой или эмодзи — всё нормализуется
// через ParseRarity на границе, дальше по движку ходит только числовой тир.
type Rarity int

const (
	RarityCommon    Rarity = 1
	RarityRare      Rarity = 2
	RarityLegendary Rarity = 3
)

// ParseRarity нормализует редкость из любого входного представления.
func ParseRarity(raw string) (Rarity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "common", "⚪", "⚪️":
		return RarityCommon, nil
	case "2", "rare", "🟣":
		return RarityRare, nil
	case "3", "legendary", "🟡":
		return RarityLegendary, nil
	}
	return 0, fmt.Errorf("unknown rarity %q", raw)
}

// Emoji возвращает эмодзи для отображения редкости.
func (r Rarity) Emoji() string {
	switch r {
	case RarityRare:
		return "🟣"
	case RarityLegendary:
		return "🟡"
	default:
		return "⚪"
	}
}

// String возвращает название редкости.
func (r Rarity) String() string {
	switch r {
	case RarityRare:
		return "rare"
	case RarityLegendary:
		return "legendary"
	default:
		return "common"
	}
}

// Valid проверяет, что тир известен движку.
func (r Rarity) Valid() bool {
	return r >= RarityCommon && r <= RarityLegendary
}

// FromGambleRarity конвертирует редкость из пакета gamble в каноничный тир.
func FromGambleRarity(r gamble.Rarity) Rarity {
	switch r {
	case gamble.Rare:
		return RarityRare
	case gamble.Legendary:
		return RarityLegendary
	default:
		return RarityCommon
	}
}

// CharacterDefinition — запись каталога персонажей.
type CharacterDefinition struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Anime    string `json:"anime"`
	Rarity   Rarity `json:"rarity"`
	ImageRef string `json:"imageRef"`
}

// CharacterInstance — один принадлежащий пользователю экземпляр персонажа.
// Пользователь может держать несколько одинаковых экземпляров: количество
// вхождений в массиве и есть количество во владении. При удалении экземпляры
// сравниваются по CharacterID (убирается первый совпавший).
type CharacterInstance struct {
	CharacterID int64  `json:"characterId"`
	Name        string `json:"name"`
	Anime       string `json:"anime"`
	Rarity      Rarity `json:"rarity"`
	ImageRef    string `json:"imageRef"`
}

// Instance создает экземпляр из определения каталога.
func (d *CharacterDefinition) Instance() CharacterInstance {
	return CharacterInstance{
		CharacterID: d.ID,
		Name:        d.Name,
		Anime:       d.Anime,
		Rarity:      d.Rarity,
		ImageRef:    d.ImageRef,
	}
}

// UserRecord — документ пользователя: идентичность, баланс и массив
// принадлежащих персонажей в порядке получения.
type UserRecord struct {
	ID         int64               `json:"id"`
	Username   string              `json:"username"`
	Balance    int64               `json:"balance"`
	Characters []CharacterInstance `json:"characters"`
	Favorites  []int64             `json:"favorites"`
	LastDaily  time.Time           `json:"lastDaily"`
}

// OwnsCharacter проверяет, есть ли у пользователя экземпляр с данным id.
func (u *UserRecord) OwnsCharacter(characterID int64) bool {
	for _, c := range u.Characters {
		if c.CharacterID == characterID {
			return true
		}
	}
	return false
}

// CountCharacter возвращает количество экземпляров с данным id.
func (u *UserRecord) CountCharacter(characterID int64) int {
	n := 0
	for _, c := range u.Characters {
		if c.CharacterID == characterID {
			n++
		}
	}
	return n
}

// CodeKind — тип награды redeem-кода.
type CodeKind string

const (
	CodeKindCurrency  CodeKind = "currency"
	CodeKindCharacter CodeKind = "character"
)

// RedeemCode — одноразовый или многоразовый код на валюту или персонажа.
// Инвариант: len(UsedBy) <= MaxUses; по достижении лимита Active = false.
type RedeemCode struct {
	Code        string   `json:"code"`
	Kind        CodeKind `json:"kind"`
	Amount      int64    `json:"amount"`
	CharacterID int64    `json:"characterId"`
	MaxUses     int      `json:"maxUses"`
	Active      bool     `json:"active"`
	UsedBy      []int64  `json:"usedBy"`
}

// RecoveryRecord — запись recovery sink: персонаж, которого не удалось
// безопасно положить ни одной из сторон неудавшегося трансфера.
// Нормальный поток эти записи никогда не читает, это люк для оператора.
type RecoveryRecord struct {
	ID        string            `json:"id"`
	Character CharacterInstance `json:"character"`
	FromID    int64             `json:"fromId"`
	ToID      int64             `json:"toId"`
	Context   string            `json:"context"`
	At        time.Time         `json:"at"`
}

// LeaderboardEntry — строка таблицы лидеров по балансу.
type LeaderboardEntry struct {
	UserID   int64
	Username string
	Balance  int64
}
